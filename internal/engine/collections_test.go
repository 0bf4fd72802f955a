package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskdb/duskdb/internal/resp"
)

func arrayStrings(t *testing.T, v resp.Value) []string {
	t.Helper()
	require.Equal(t, byte(resp.TypeArray), v.Type, "unexpected reply: %s", v.String)
	out := make([]string, len(v.Array))
	for i, el := range v.Array {
		out[i] = string(el.String)
	}
	return out
}

func TestListCommands(t *testing.T) {
	e := newTestEngine(t)

	assertInt(t, do(e, "RPUSH", "l", "a", "b", "c"), 3)
	assertInt(t, do(e, "LLEN", "l"), 3)

	assertBulk(t, do(e, "LINDEX", "l", "0"), "a")
	assertBulk(t, do(e, "LINDEX", "l", "-1"), "c")
	assertNil(t, do(e, "LINDEX", "l", "10"))

	assertOK(t, do(e, "LSET", "l", "1", "B"))
	assertBulk(t, do(e, "LINDEX", "l", "1"), "B")
	assertError(t, do(e, "LSET", "l", "10", "x"), "index out of range")
	assertError(t, do(e, "LSET", "missing", "0", "x"), "no such key")

	assertInt(t, do(e, "LINSERT", "l", "BEFORE", "B", "a2"), 4)
	assert.Equal(t, []string{"a", "a2", "B", "c"}, arrayStrings(t, do(e, "LRANGE", "l", "0", "-1")))
	assertInt(t, do(e, "LINSERT", "l", "AFTER", "nope", "x"), -1)
	assertInt(t, do(e, "LINSERT", "missing", "BEFORE", "p", "x"), 0)

	assertBulk(t, do(e, "LPOP", "l"), "a")
	assertBulk(t, do(e, "RPOP", "l"), "c")
	assertNil(t, do(e, "LPOP", "missing"))

	assertOK(t, do(e, "LTRIM", "l", "0", "0"))
	assert.Equal(t, []string{"a2"}, arrayStrings(t, do(e, "LRANGE", "l", "0", "-1")))
}

func TestListPopDeletesEmptyKey(t *testing.T) {
	e := newTestEngine(t)

	assertInt(t, do(e, "RPUSH", "l", "only"), 1)
	assertBulk(t, do(e, "LPOP", "l"), "only")
	assertInt(t, do(e, "EXISTS", "l"), 0)
}

func TestLRem(t *testing.T) {
	e := newTestEngine(t)

	do(e, "RPUSH", "l", "a", "b", "a", "c", "a")

	assertInt(t, do(e, "LREM", "l", "2", "a"), 2)
	assert.Equal(t, []string{"b", "c", "a"}, arrayStrings(t, do(e, "LRANGE", "l", "0", "-1")))

	do(e, "DEL", "l")
	do(e, "RPUSH", "l", "a", "b", "a", "c", "a")
	assertInt(t, do(e, "LREM", "l", "-1", "a"), 1)
	assert.Equal(t, []string{"a", "b", "a", "c"}, arrayStrings(t, do(e, "LRANGE", "l", "0", "-1")))

	assertInt(t, do(e, "LREM", "l", "0", "a"), 2)
	assert.Equal(t, []string{"b", "c"}, arrayStrings(t, do(e, "LRANGE", "l", "0", "-1")))
}

func TestPushXVariants(t *testing.T) {
	e := newTestEngine(t)

	assertInt(t, do(e, "LPUSHX", "missing", "v"), 0)
	assertInt(t, do(e, "RPUSHX", "missing", "v"), 0)
	assertInt(t, do(e, "EXISTS", "missing"), 0)

	do(e, "RPUSH", "l", "a")
	assertInt(t, do(e, "LPUSHX", "l", "front"), 2)
	assertInt(t, do(e, "RPUSHX", "l", "back"), 3)
	assert.Equal(t, []string{"front", "a", "back"}, arrayStrings(t, do(e, "LRANGE", "l", "0", "-1")))
}

func TestHashCommands(t *testing.T) {
	e := newTestEngine(t)

	assertInt(t, do(e, "HSET", "h", "f1", "v1", "f2", "v2"), 2)
	assertInt(t, do(e, "HSET", "h", "f1", "updated", "f3", "v3"), 1)

	assertBulk(t, do(e, "HGET", "h", "f1"), "updated")
	assertNil(t, do(e, "HGET", "h", "nope"))
	assertNil(t, do(e, "HGET", "missing", "f"))

	assertInt(t, do(e, "HLEN", "h"), 3)
	assertInt(t, do(e, "HEXISTS", "h", "f2"), 1)
	assertInt(t, do(e, "HEXISTS", "h", "nope"), 0)

	keys := arrayStrings(t, do(e, "HKEYS", "h"))
	assert.ElementsMatch(t, []string{"f1", "f2", "f3"}, keys)
	vals := arrayStrings(t, do(e, "HVALS", "h"))
	assert.ElementsMatch(t, []string{"updated", "v2", "v3"}, vals)

	all := arrayStrings(t, do(e, "HGETALL", "h"))
	assert.Len(t, all, 6)

	assertInt(t, do(e, "HSETNX", "h", "f1", "ignored"), 0)
	assertBulk(t, do(e, "HGET", "h", "f1"), "updated")
	assertInt(t, do(e, "HSETNX", "h", "f4", "v4"), 1)

	assertInt(t, do(e, "HDEL", "h", "f1", "f2", "nope"), 2)
	assertInt(t, do(e, "HLEN", "h"), 2)
}

func TestHashDeleteEmptiesKey(t *testing.T) {
	e := newTestEngine(t)

	do(e, "HSET", "h", "f", "v")
	assertInt(t, do(e, "HDEL", "h", "f"), 1)
	assertInt(t, do(e, "EXISTS", "h"), 0)
}

func TestHIncrBy(t *testing.T) {
	e := newTestEngine(t)

	assertInt(t, do(e, "HINCRBY", "h", "count", "5"), 5)
	assertInt(t, do(e, "HINCRBY", "h", "count", "-3"), 2)

	do(e, "HSET", "h", "text", "abc")
	assertError(t, do(e, "HINCRBY", "h", "text", "1"), "not an integer")
}

func TestSetCommands(t *testing.T) {
	e := newTestEngine(t)

	assertInt(t, do(e, "SADD", "s", "a", "b", "c"), 3)
	assertInt(t, do(e, "SADD", "s", "a", "d"), 1)
	assertInt(t, do(e, "SCARD", "s"), 4)

	assertInt(t, do(e, "SISMEMBER", "s", "a"), 1)
	assertInt(t, do(e, "SISMEMBER", "s", "zz"), 0)
	assertInt(t, do(e, "SISMEMBER", "missing", "a"), 0)

	members := arrayStrings(t, do(e, "SMEMBERS", "s"))
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, members)

	assertInt(t, do(e, "SREM", "s", "a", "zz"), 1)
	assertInt(t, do(e, "SCARD", "s"), 3)
}

func TestSetAlgebra(t *testing.T) {
	e := newTestEngine(t)

	do(e, "SADD", "s1", "a", "b", "c")
	do(e, "SADD", "s2", "b", "c", "d")

	assert.ElementsMatch(t, []string{"b", "c"}, arrayStrings(t, do(e, "SINTER", "s1", "s2")))
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, arrayStrings(t, do(e, "SUNION", "s1", "s2")))
	assert.ElementsMatch(t, []string{"a"}, arrayStrings(t, do(e, "SDIFF", "s1", "s2")))

	// Absent keys act as empty sets
	assert.Empty(t, arrayStrings(t, do(e, "SINTER", "s1", "missing")))
	assert.ElementsMatch(t, []string{"a", "b", "c"}, arrayStrings(t, do(e, "SDIFF", "s1", "missing")))

	// But a wrong-typed operand fails the whole command
	do(e, "SET", "str", "v")
	assertError(t, do(e, "SINTER", "s1", "str"), "WRONGTYPE")
}

func TestSPop(t *testing.T) {
	e := newTestEngine(t)

	do(e, "SADD", "s", "a", "b", "c")

	res := do(e, "SPOP", "s")
	require.Equal(t, byte(resp.TypeBulkString), res.Type)
	assert.Contains(t, []string{"a", "b", "c"}, string(res.String))
	assertInt(t, do(e, "SCARD", "s"), 2)

	popped := arrayStrings(t, do(e, "SPOP", "s", "5"))
	assert.Len(t, popped, 2)
	assertInt(t, do(e, "EXISTS", "s"), 0)

	assertNil(t, do(e, "SPOP", "missing"))
}

func TestSRandMember(t *testing.T) {
	e := newTestEngine(t)

	do(e, "SADD", "s", "a", "b", "c")

	res := do(e, "SRANDMEMBER", "s")
	assert.Contains(t, []string{"a", "b", "c"}, string(res.String))
	assertInt(t, do(e, "SCARD", "s"), 3)

	picked := arrayStrings(t, do(e, "SRANDMEMBER", "s", "2"))
	assert.Len(t, picked, 2)

	// A negative count allows repeats and can exceed the cardinality
	picked = arrayStrings(t, do(e, "SRANDMEMBER", "s", "-10"))
	assert.Len(t, picked, 10)
}

func TestZAddScoreRank(t *testing.T) {
	e := newTestEngine(t)

	assertInt(t, do(e, "ZADD", "z", "1", "one", "2", "two", "3", "three"), 3)
	assertInt(t, do(e, "ZADD", "z", "10", "one"), 0) // score update, not an add
	assertInt(t, do(e, "ZCARD", "z"), 3)

	assertBulk(t, do(e, "ZSCORE", "z", "one"), "10")
	assertNil(t, do(e, "ZSCORE", "z", "missing"))

	assertInt(t, do(e, "ZRANK", "z", "two"), 0)
	assertInt(t, do(e, "ZRANK", "z", "one"), 2)
	assertInt(t, do(e, "ZREVRANK", "z", "one"), 0)
	assertNil(t, do(e, "ZRANK", "z", "nope"))
}

func TestZRange(t *testing.T) {
	e := newTestEngine(t)

	do(e, "ZADD", "z", "1", "a", "2", "b", "3", "c")

	assert.Equal(t, []string{"a", "b", "c"}, arrayStrings(t, do(e, "ZRANGE", "z", "0", "-1")))
	assert.Equal(t, []string{"c", "b", "a"}, arrayStrings(t, do(e, "ZREVRANGE", "z", "0", "-1")))
	assert.Equal(t, []string{"a", "b"}, arrayStrings(t, do(e, "ZRANGE", "z", "0", "1")))

	withScores := arrayStrings(t, do(e, "ZRANGE", "z", "0", "-1", "WITHSCORES"))
	assert.Equal(t, []string{"a", "1", "b", "2", "c", "3"}, withScores)
}

func TestZRangeByScore(t *testing.T) {
	e := newTestEngine(t)

	do(e, "ZADD", "z", "1", "a", "2", "b", "3", "c", "4", "d")

	assert.Equal(t, []string{"b", "c"}, arrayStrings(t, do(e, "ZRANGEBYSCORE", "z", "2", "3")))
	assert.Equal(t, []string{"c"}, arrayStrings(t, do(e, "ZRANGEBYSCORE", "z", "(2", "3")))
	assert.Equal(t, []string{"a", "b", "c", "d"}, arrayStrings(t, do(e, "ZRANGEBYSCORE", "z", "-inf", "+inf")))
	assert.Equal(t, []string{"b", "c"}, arrayStrings(t, do(e, "ZRANGEBYSCORE", "z", "-inf", "+inf", "LIMIT", "1", "2")))

	assertInt(t, do(e, "ZCOUNT", "z", "2", "3"), 2)
	assertInt(t, do(e, "ZCOUNT", "z", "(2", "(3"), 0)
}

func TestZIncrBy(t *testing.T) {
	e := newTestEngine(t)

	assertBulk(t, do(e, "ZINCRBY", "z", "5", "m"), "5")
	assertBulk(t, do(e, "ZINCRBY", "z", "2.5", "m"), "7.5")
}

func TestZRemovals(t *testing.T) {
	e := newTestEngine(t)

	do(e, "ZADD", "z", "1", "a", "2", "b", "3", "c", "4", "d")

	assertInt(t, do(e, "ZREM", "z", "a", "nope"), 1)
	assertInt(t, do(e, "ZREMRANGEBYRANK", "z", "0", "0"), 1)
	assert.Equal(t, []string{"c", "d"}, arrayStrings(t, do(e, "ZRANGE", "z", "0", "-1")))

	assertInt(t, do(e, "ZREMRANGEBYSCORE", "z", "3", "3"), 1)
	assert.Equal(t, []string{"d"}, arrayStrings(t, do(e, "ZRANGE", "z", "0", "-1")))

	assertInt(t, do(e, "ZREM", "z", "d"), 1)
	assertInt(t, do(e, "EXISTS", "z"), 0)
}

func TestZPop(t *testing.T) {
	e := newTestEngine(t)

	do(e, "ZADD", "z", "1", "a", "2", "b", "3", "c")

	popped := arrayStrings(t, do(e, "ZPOPMIN", "z"))
	assert.Equal(t, []string{"a", "1"}, popped)

	popped = arrayStrings(t, do(e, "ZPOPMAX", "z", "2"))
	assert.Equal(t, []string{"c", "3", "b", "2"}, popped)
	assertInt(t, do(e, "EXISTS", "z"), 0)
}

func TestZIncrByNaNRestoresMember(t *testing.T) {
	e := newTestEngine(t)

	assertInt(t, do(e, "ZADD", "z", "inf", "m"), 1)
	assertError(t, do(e, "ZINCRBY", "z", "-inf", "m"), "not a number")

	// the failed increment must leave the member at its old score
	assertBulk(t, do(e, "ZSCORE", "z", "m"), "inf")
	assertInt(t, do(e, "ZCARD", "z"), 1)

	// on a fresh key the failed increment must not leave the key behind
	assertError(t, do(e, "ZINCRBY", "fresh", "nan", "n"), "not a number")
	assertInt(t, do(e, "EXISTS", "fresh"), 0)
}
