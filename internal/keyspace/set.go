package keyspace

import "math/rand"

// Set is an unordered collection of unique string members.
// Add/Rem/IsMember are O(1); inter/union/diff are linear in the inputs.
// Not synchronized; the command executor serializes access.
type Set struct {
	members map[string]struct{}
}

func NewSet() *Set {
	return &Set{members: make(map[string]struct{})}
}

// Add adds members. Returns the number actually added.
func (s *Set) Add(members ...string) int {
	added := 0
	for _, m := range members {
		if _, exists := s.members[m]; !exists {
			s.members[m] = struct{}{}
			added++
		}
	}
	return added
}

// Rem removes members. Returns the number actually removed.
func (s *Set) Rem(members ...string) int {
	removed := 0
	for _, m := range members {
		if _, exists := s.members[m]; exists {
			delete(s.members, m)
			removed++
		}
	}
	return removed
}

func (s *Set) IsMember(member string) bool {
	_, exists := s.members[member]
	return exists
}

func (s *Set) Card() int {
	return len(s.members)
}

func (s *Set) Members() []string {
	result := make([]string, 0, len(s.members))
	for m := range s.members {
		result = append(result, m)
	}
	return result
}

// RandMember returns up to count random members without removing them.
// A negative count allows repeats, as in Redis.
func (s *Set) RandMember(count int) []string {
	if count == 0 || len(s.members) == 0 {
		return nil
	}

	all := s.Members()
	if count < 0 {
		result := make([]string, -count)
		for i := range result {
			result[i] = all[rand.Intn(len(all))]
		}
		return result
	}

	rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	if count > len(all) {
		count = len(all)
	}
	return all[:count]
}

// Pop removes and returns up to count random members.
func (s *Set) Pop(count int) []string {
	if count <= 0 || len(s.members) == 0 {
		return nil
	}

	picked := s.RandMember(count)
	for _, m := range picked {
		delete(s.members, m)
	}
	return picked
}

// Inter returns members present in this set and every other.
func (s *Set) Inter(others ...*Set) []string {
	var result []string
outer:
	for m := range s.members {
		for _, o := range others {
			if !o.IsMember(m) {
				continue outer
			}
		}
		result = append(result, m)
	}
	return result
}

// Union returns members present in this set or any other.
func (s *Set) Union(others ...*Set) []string {
	seen := make(map[string]struct{}, len(s.members))
	for m := range s.members {
		seen[m] = struct{}{}
	}
	for _, o := range others {
		for m := range o.members {
			seen[m] = struct{}{}
		}
	}

	result := make([]string, 0, len(seen))
	for m := range seen {
		result = append(result, m)
	}
	return result
}

// Diff returns members of this set absent from every other.
func (s *Set) Diff(others ...*Set) []string {
	var result []string
outer:
	for m := range s.members {
		for _, o := range others {
			if o.IsMember(m) {
				continue outer
			}
		}
		result = append(result, m)
	}
	return result
}

// Clone returns a deep copy for snapshot isolation.
func (s *Set) Clone() *Set {
	members := make(map[string]struct{}, len(s.members))
	for m := range s.members {
		members[m] = struct{}{}
	}
	return &Set{members: members}
}
