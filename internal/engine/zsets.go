package engine

import (
	"math"
	"strconv"
	"strings"

	"github.com/duskdb/duskdb/internal/keyspace"
	"github.com/duskdb/duskdb/internal/resp"
)

// scoreBound is one end of a score interval. Exclusive bounds come from the
// "(score" syntax; -inf and +inf parse to the float infinities.
type scoreBound struct {
	value     float64
	exclusive bool
}

func parseBound(s string) (scoreBound, error) {
	b := scoreBound{}
	if strings.HasPrefix(s, "(") {
		b.exclusive = true
		s = s[1:]
	}
	switch strings.ToLower(s) {
	case "-inf":
		b.value = math.Inf(-1)
		return b, nil
	case "inf", "+inf":
		b.value = math.Inf(1)
		return b, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return b, err
	}
	b.value = v
	return b, nil
}

func (b scoreBound) admitsMin(score float64) bool {
	if b.exclusive {
		return score > b.value
	}
	return score >= b.value
}

func (b scoreBound) admitsMax(score float64) bool {
	if b.exclusive {
		return score < b.value
	}
	return score <= b.value
}

func formatScore(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func cmdZAdd(inv *invocation) resp.Value {
	key := inv.argStr(0)
	if (len(inv.args)-1)%2 != 0 {
		return syntaxError()
	}

	members := make([]keyspace.ScoredMember, 0, (len(inv.args)-1)/2)
	for i := 1; i < len(inv.args); i += 2 {
		score, err := strconv.ParseFloat(inv.argStr(i), 64)
		if err != nil {
			return errorReply(keyspace.ErrValueNotFloat)
		}
		members = append(members, keyspace.ScoredMember{Member: inv.argStr(i + 1), Score: score})
	}

	e, err := inv.typedOrCreate(key, keyspace.KindZSet)
	if err != nil {
		return errorReply(err)
	}

	newMembers := 0
	for _, m := range members {
		if _, exists := e.ZSet.Score(m.Member); !exists {
			newMembers++
		}
	}
	if err := inv.e.ks.CanGrow(e.ZSet.Card(), newMembers); err != nil {
		inv.e.ks.RemoveIfEmpty(key, e)
		return errorReply(err)
	}

	added := e.ZSet.Add(members...)
	inv.logSelf()
	return resp.MakeInteger(int64(added))
}

func cmdZRem(inv *invocation) resp.Value {
	key := inv.argStr(0)

	e, err := inv.typed(key, keyspace.KindZSet)
	if err != nil {
		return errorReply(err)
	}
	if e == nil {
		return resp.MakeInteger(0)
	}

	members := make([]string, 0, len(inv.args)-1)
	for i := 1; i < len(inv.args); i++ {
		members = append(members, inv.argStr(i))
	}

	removed := e.ZSet.Remove(members...)
	if removed > 0 {
		inv.e.ks.RemoveIfEmpty(key, e)
		inv.logSelf()
	}
	return resp.MakeInteger(int64(removed))
}

func cmdZScore(inv *invocation) resp.Value {
	e, err := inv.typed(inv.argStr(0), keyspace.KindZSet)
	if err != nil {
		return errorReply(err)
	}
	if e == nil {
		return resp.MakeNilBulkString()
	}
	score, ok := e.ZSet.Score(inv.argStr(1))
	if !ok {
		return resp.MakeNilBulkString()
	}
	return resp.MakeBulkString(formatScore(score))
}

func cmdZIncrBy(inv *invocation) resp.Value {
	key := inv.argStr(0)

	delta, perr := strconv.ParseFloat(inv.argStr(1), 64)
	if perr != nil {
		return errorReply(keyspace.ErrValueNotFloat)
	}

	e, err := inv.typedOrCreate(key, keyspace.KindZSet)
	if err != nil {
		return errorReply(err)
	}

	member := inv.argStr(2)
	old, existed := e.ZSet.Score(member)
	if !existed {
		if err := inv.e.ks.CanGrow(e.ZSet.Card(), 1); err != nil {
			inv.e.ks.RemoveIfEmpty(key, e)
			return errorReply(err)
		}
	}

	score := e.ZSet.IncrBy(member, delta)
	if math.IsNaN(score) {
		// Failed command, put the member back the way it was
		if existed {
			e.ZSet.Add(keyspace.ScoredMember{Member: member, Score: old})
		} else {
			e.ZSet.Remove(member)
			inv.e.ks.RemoveIfEmpty(key, e)
		}
		return resp.MakeError("ERR resulting score is not a number (NaN)")
	}
	inv.logSelf()
	return resp.MakeBulkString(formatScore(score))
}

func cmdZCard(inv *invocation) resp.Value {
	e, err := inv.typed(inv.argStr(0), keyspace.KindZSet)
	if err != nil {
		return errorReply(err)
	}
	if e == nil {
		return resp.MakeInteger(0)
	}
	return resp.MakeInteger(int64(e.ZSet.Card()))
}

func cmdZRank(inv *invocation) resp.Value {
	return zsetRank(inv, false)
}

func cmdZRevRank(inv *invocation) resp.Value {
	return zsetRank(inv, true)
}

func zsetRank(inv *invocation, reverse bool) resp.Value {
	e, err := inv.typed(inv.argStr(0), keyspace.KindZSet)
	if err != nil {
		return errorReply(err)
	}
	if e == nil {
		return resp.MakeNilBulkString()
	}

	var rank int
	var ok bool
	if reverse {
		rank, ok = e.ZSet.RevRank(inv.argStr(1))
	} else {
		rank, ok = e.ZSet.Rank(inv.argStr(1))
	}
	if !ok {
		return resp.MakeNilBulkString()
	}
	return resp.MakeInteger(int64(rank))
}

func cmdZRange(inv *invocation) resp.Value {
	return zsetRange(inv, false)
}

func cmdZRevRange(inv *invocation) resp.Value {
	return zsetRange(inv, true)
}

func zsetRange(inv *invocation, reverse bool) resp.Value {
	withScores := false
	if len(inv.args) == 4 {
		if !strings.EqualFold(inv.argStr(3), "withscores") {
			return syntaxError()
		}
		withScores = true
	}

	start, err1 := strconv.Atoi(inv.argStr(1))
	stop, err2 := strconv.Atoi(inv.argStr(2))
	if err1 != nil || err2 != nil {
		return notIntegerError()
	}

	e, err := inv.typed(inv.argStr(0), keyspace.KindZSet)
	if err != nil {
		return errorReply(err)
	}
	if e == nil {
		return resp.MakeArray(nil)
	}

	var members []keyspace.ScoredMember
	if reverse {
		members = e.ZSet.RevRange(start, stop)
	} else {
		members = e.ZSet.Range(start, stop)
	}
	return scoredArray(members, withScores)
}

func cmdZRangeByScore(inv *invocation) resp.Value {
	minBound, err1 := parseBound(inv.argStr(1))
	maxBound, err2 := parseBound(inv.argStr(2))
	if err1 != nil || err2 != nil {
		return resp.MakeError("ERR min or max is not a float")
	}

	withScores := false
	offset, count := 0, -1
	for i := 3; i < len(inv.args); i++ {
		switch strings.ToLower(inv.argStr(i)) {
		case "withscores":
			withScores = true
		case "limit":
			if i+2 >= len(inv.args) {
				return syntaxError()
			}
			var perr1, perr2 error
			offset, perr1 = strconv.Atoi(inv.argStr(i + 1))
			count, perr2 = strconv.Atoi(inv.argStr(i + 2))
			if perr1 != nil || perr2 != nil {
				return notIntegerError()
			}
			i += 2
		default:
			return syntaxError()
		}
	}

	e, err := inv.typed(inv.argStr(0), keyspace.KindZSet)
	if err != nil {
		return errorReply(err)
	}
	if e == nil {
		return resp.MakeArray(nil)
	}

	matched := zsetScoreRange(e.ZSet, minBound, maxBound)

	if offset > 0 {
		if offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[offset:]
		}
	}
	if count >= 0 && count < len(matched) {
		matched = matched[:count]
	}
	return scoredArray(matched, withScores)
}

// zsetScoreRange collects members inside the bounds in score order,
// honoring exclusive ends.
func zsetScoreRange(z *keyspace.SortedSet, min, max scoreBound) []keyspace.ScoredMember {
	candidates := z.RangeByScore(min.value, max.value, 0, -1)
	matched := candidates[:0:0]
	for _, m := range candidates {
		if min.admitsMin(m.Score) && max.admitsMax(m.Score) {
			matched = append(matched, m)
		}
	}
	return matched
}

func cmdZCount(inv *invocation) resp.Value {
	minBound, err1 := parseBound(inv.argStr(1))
	maxBound, err2 := parseBound(inv.argStr(2))
	if err1 != nil || err2 != nil {
		return resp.MakeError("ERR min or max is not a float")
	}

	e, err := inv.typed(inv.argStr(0), keyspace.KindZSet)
	if err != nil {
		return errorReply(err)
	}
	if e == nil {
		return resp.MakeInteger(0)
	}
	return resp.MakeInteger(int64(len(zsetScoreRange(e.ZSet, minBound, maxBound))))
}

func cmdZRemRangeByRank(inv *invocation) resp.Value {
	key := inv.argStr(0)

	start, err1 := strconv.Atoi(inv.argStr(1))
	stop, err2 := strconv.Atoi(inv.argStr(2))
	if err1 != nil || err2 != nil {
		return notIntegerError()
	}

	e, err := inv.typed(key, keyspace.KindZSet)
	if err != nil {
		return errorReply(err)
	}
	if e == nil {
		return resp.MakeInteger(0)
	}

	removed := e.ZSet.RemoveRangeByRank(start, stop)
	if removed > 0 {
		inv.e.ks.RemoveIfEmpty(key, e)
		inv.logSelf()
	}
	return resp.MakeInteger(int64(removed))
}

func cmdZRemRangeByScore(inv *invocation) resp.Value {
	key := inv.argStr(0)

	minBound, err1 := parseBound(inv.argStr(1))
	maxBound, err2 := parseBound(inv.argStr(2))
	if err1 != nil || err2 != nil {
		return resp.MakeError("ERR min or max is not a float")
	}

	e, err := inv.typed(key, keyspace.KindZSet)
	if err != nil {
		return errorReply(err)
	}
	if e == nil {
		return resp.MakeInteger(0)
	}

	matched := zsetScoreRange(e.ZSet, minBound, maxBound)
	if len(matched) == 0 {
		return resp.MakeInteger(0)
	}
	members := make([]string, len(matched))
	for i, m := range matched {
		members[i] = m.Member
	}
	removed := e.ZSet.Remove(members...)
	inv.e.ks.RemoveIfEmpty(key, e)
	inv.logSelf()
	return resp.MakeInteger(int64(removed))
}

func cmdZPopMin(inv *invocation) resp.Value {
	return zsetPop(inv, false)
}

func cmdZPopMax(inv *invocation) resp.Value {
	return zsetPop(inv, true)
}

func zsetPop(inv *invocation, popMax bool) resp.Value {
	key := inv.argStr(0)

	count := 1
	if len(inv.args) == 2 {
		n, perr := strconv.Atoi(inv.argStr(1))
		if perr != nil || n < 0 {
			return resp.MakeError("ERR value is out of range, must be positive")
		}
		count = n
	}

	e, err := inv.typed(key, keyspace.KindZSet)
	if err != nil {
		return errorReply(err)
	}
	if e == nil || count == 0 {
		return resp.MakeArray(nil)
	}

	var popped []keyspace.ScoredMember
	if popMax {
		popped = e.ZSet.PopMax(count)
	} else {
		popped = e.ZSet.PopMin(count)
	}
	if len(popped) > 0 {
		inv.e.ks.RemoveIfEmpty(key, e)
		inv.logSelf()
	}
	return scoredArray(popped, true)
}

func scoredArray(members []keyspace.ScoredMember, withScores bool) resp.Value {
	size := len(members)
	if withScores {
		size *= 2
	}
	out := make([]resp.Value, 0, size)
	for _, m := range members {
		out = append(out, resp.MakeBulkString(m.Member))
		if withScores {
			out = append(out, resp.MakeBulkString(formatScore(m.Score)))
		}
	}
	return resp.MakeArray(out)
}
