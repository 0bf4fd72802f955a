package keyspace

import "sort"

// ScoredMember pairs a sorted-set member with its score.
type ScoredMember struct {
	Member string
	Score  float64
}

// SortedSet keeps unique members ordered by score, ties broken by
// lexical member order. Not synchronized; the command executor
// serializes access.
type SortedSet struct {
	members map[string]float64
}

func NewSortedSet() *SortedSet {
	return &SortedSet{members: make(map[string]float64)}
}

// Add inserts or updates members. Returns the number of new members.
func (z *SortedSet) Add(members ...ScoredMember) int {
	added := 0
	for _, m := range members {
		if _, exists := z.members[m.Member]; !exists {
			added++
		}
		z.members[m.Member] = m.Score
	}
	return added
}

// Score returns the score of a member.
func (z *SortedSet) Score(member string) (float64, bool) {
	score, exists := z.members[member]
	return score, exists
}

// IncrBy adds increment to the score of member, creating it when absent.
// Returns the new score.
func (z *SortedSet) IncrBy(member string, increment float64) float64 {
	z.members[member] += increment
	return z.members[member]
}

// Remove deletes members. Returns the number removed.
func (z *SortedSet) Remove(members ...string) int {
	removed := 0
	for _, m := range members {
		if _, exists := z.members[m]; exists {
			delete(z.members, m)
			removed++
		}
	}
	return removed
}

func (z *SortedSet) Card() int {
	return len(z.members)
}

// sorted returns all members ordered by score ascending, then member.
func (z *SortedSet) sorted() []ScoredMember {
	all := make([]ScoredMember, 0, len(z.members))
	for m, s := range z.members {
		all = append(all, ScoredMember{Member: m, Score: s})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score < all[j].Score
		}
		return all[i].Member < all[j].Member
	})
	return all
}

// Rank returns the 0-based ascending rank of member.
func (z *SortedSet) Rank(member string) (int, bool) {
	if _, exists := z.members[member]; !exists {
		return -1, false
	}
	for i, m := range z.sorted() {
		if m.Member == member {
			return i, true
		}
	}
	return -1, false
}

// RevRank returns the 0-based descending rank of member.
func (z *SortedSet) RevRank(member string) (int, bool) {
	rank, ok := z.Rank(member)
	if !ok {
		return -1, false
	}
	return len(z.members) - 1 - rank, true
}

// Range returns members between rank start and stop inclusive.
// Negative ranks count from the highest score.
func (z *SortedSet) Range(start, stop int) []ScoredMember {
	all := z.sorted()
	start, stop, ok := clampRange(start, stop, len(all))
	if !ok {
		return nil
	}
	return append([]ScoredMember(nil), all[start:stop+1]...)
}

// RevRange returns members between rank start and stop inclusive,
// counted from the highest score downwards.
func (z *SortedSet) RevRange(start, stop int) []ScoredMember {
	all := z.sorted()
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	start, stop, ok := clampRange(start, stop, len(all))
	if !ok {
		return nil
	}
	return append([]ScoredMember(nil), all[start:stop+1]...)
}

// RangeByScore returns members with min <= score <= max in ascending order.
// offset and count page through the result; count < 0 means unbounded.
func (z *SortedSet) RangeByScore(min, max float64, offset, count int) []ScoredMember {
	var result []ScoredMember
	for _, m := range z.sorted() {
		if m.Score < min || m.Score > max {
			continue
		}
		if offset > 0 {
			offset--
			continue
		}
		result = append(result, m)
		if count >= 0 && len(result) >= count {
			break
		}
	}
	return result
}

// Count returns the number of members with min <= score <= max.
func (z *SortedSet) Count(min, max float64) int {
	count := 0
	for _, s := range z.members {
		if s >= min && s <= max {
			count++
		}
	}
	return count
}

// RemoveRangeByRank removes members between rank start and stop inclusive.
// Returns the number removed.
func (z *SortedSet) RemoveRangeByRank(start, stop int) int {
	victims := z.Range(start, stop)
	for _, m := range victims {
		delete(z.members, m.Member)
	}
	return len(victims)
}

// RemoveRangeByScore removes members with min <= score <= max.
// Returns the number removed.
func (z *SortedSet) RemoveRangeByScore(min, max float64) int {
	removed := 0
	for m, s := range z.members {
		if s >= min && s <= max {
			delete(z.members, m)
			removed++
		}
	}
	return removed
}

// PopMin removes and returns up to count lowest-scoring members.
func (z *SortedSet) PopMin(count int) []ScoredMember {
	if count <= 0 {
		return nil
	}
	popped := z.Range(0, count-1)
	for _, m := range popped {
		delete(z.members, m.Member)
	}
	return popped
}

// PopMax removes and returns up to count highest-scoring members.
func (z *SortedSet) PopMax(count int) []ScoredMember {
	if count <= 0 {
		return nil
	}
	popped := z.RevRange(0, count-1)
	for _, m := range popped {
		delete(z.members, m.Member)
	}
	return popped
}

// All returns every member with its score, ordered ascending.
func (z *SortedSet) All() []ScoredMember {
	return z.sorted()
}

// Clone returns a deep copy for snapshot isolation.
func (z *SortedSet) Clone() *SortedSet {
	members := make(map[string]float64, len(z.members))
	for m, s := range z.members {
		members[m] = s
	}
	return &SortedSet{members: members}
}

func clampRange(start, stop, n int) (int, int, bool) {
	if n == 0 {
		return 0, 0, false
	}
	if start < 0 {
		start = n + start
	}
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}
