package keyspace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupStates(t *testing.T) {
	k := New(0, 0)
	now := time.Now()

	_, st := k.Lookup("missing", now)
	assert.Equal(t, StatusAbsent, st)

	require.NoError(t, k.SetString("live", []byte("v"), 0))
	e, st := k.Lookup("live", now)
	assert.Equal(t, StatusLive, st)
	assert.Equal(t, []byte("v"), e.Str)

	require.NoError(t, k.SetString("dead", []byte("v"), now.Add(-time.Second).UnixNano()))
	_, st = k.Lookup("dead", now)
	assert.Equal(t, StatusExpired, st)

	// The expired entry was purged: a second lookup reports absent
	_, st = k.Lookup("dead", now)
	assert.Equal(t, StatusAbsent, st)
}

func TestIsLiveDoesNotMutate(t *testing.T) {
	k := New(0, 0)
	now := time.Now()

	require.NoError(t, k.SetString("dead", []byte("v"), now.Add(-time.Second).UnixNano()))

	assert.False(t, k.IsLive("dead", now))

	// Unlike Lookup, IsLive leaves the entry in place
	_, st := k.Lookup("dead", now)
	assert.Equal(t, StatusExpired, st)
}

func TestOverwriteReplacesKind(t *testing.T) {
	k := New(0, 0)
	now := time.Now()

	e := k.Create("k", KindSet)
	e.Set.Add("m")

	require.NoError(t, k.SetString("k", []byte("v"), 0))
	kind, st := k.KindOf("k", now)
	require.Equal(t, StatusLive, st)
	assert.Equal(t, KindString, kind)
}

func TestExpiryManagement(t *testing.T) {
	k := New(0, 0)
	now := time.Now()
	deadline := now.Add(time.Hour).UnixNano()

	require.NoError(t, k.SetString("k", []byte("v"), 0))

	assert.True(t, k.SetExpiry("k", deadline, now))
	e, _ := k.Lookup("k", now)
	assert.Equal(t, deadline, e.ExpireAt)

	assert.True(t, k.ClearExpiry("k", now))
	assert.Zero(t, e.ExpireAt)

	// Clearing a key with no expiry reports false
	assert.False(t, k.ClearExpiry("k", now))
	assert.False(t, k.SetExpiry("missing", deadline, now))
}

func TestDeleteAndLen(t *testing.T) {
	k := New(0, 0)
	now := time.Now()

	k.SetString("a", []byte("1"), 0)
	k.SetString("b", []byte("2"), 0)
	k.SetString("expired", []byte("3"), now.Add(-time.Second).UnixNano())

	assert.Equal(t, 2, k.Len(now))
	assert.ElementsMatch(t, []string{"a", "b"}, k.Keys(now))

	assert.True(t, k.Delete("a", now))
	assert.False(t, k.Delete("a", now))
	// Deleting an expired entry removes it but reports no live deletion
	assert.False(t, k.Delete("expired", now))

	assert.Equal(t, 1, k.Len(now))
}

func TestRemoveIfEmpty(t *testing.T) {
	k := New(0, 0)
	now := time.Now()

	e := k.Create("h", KindHash)
	e.Hash.Set("f", []byte("v"))
	k.RemoveIfEmpty("h", e)
	assert.True(t, k.IsLive("h", now))

	e.Hash.Del("f")
	k.RemoveIfEmpty("h", e)
	assert.False(t, k.IsLive("h", now))

	// Empty strings stay: only aggregates vanish when emptied
	k.SetString("s", nil, 0)
	se, _ := k.Lookup("s", now)
	k.RemoveIfEmpty("s", se)
	assert.True(t, k.IsLive("s", now))
}

func TestSampleVolatile(t *testing.T) {
	k := New(0, 0)
	now := time.Now()

	for _, key := range []string{"d1", "d2", "d3"} {
		k.SetString(key, []byte("v"), now.Add(-time.Second).UnixNano())
	}
	k.SetString("alive", []byte("v"), now.Add(time.Hour).UnixNano())
	k.SetString("forever", []byte("v"), 0)

	expired, sampled := k.SampleVolatile(100, now)
	assert.Equal(t, 4, sampled) // the persistent key is never sampled
	assert.ElementsMatch(t, []string{"d1", "d2", "d3"}, expired)

	// Sampling inspects, it does not delete
	_, st := k.Lookup("d1", now)
	assert.Equal(t, StatusExpired, st)
}

func TestValueAndCollectionLimits(t *testing.T) {
	k := New(4, 3)

	assert.Error(t, k.CheckValueSize(5))
	assert.NoError(t, k.CheckValueSize(4))
	assert.Error(t, k.SetString("k", []byte("toolong"), 0))

	assert.NoError(t, k.CanGrow(2, 1))
	assert.Error(t, k.CanGrow(2, 2))

	unlimited := New(0, 0)
	assert.NoError(t, unlimited.CheckValueSize(1<<20))
	assert.NoError(t, unlimited.CanGrow(1<<20, 1<<20))
}

func TestEntryIncrBy(t *testing.T) {
	e := &Entry{Kind: KindString}

	n, err := e.IncrBy(5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, "5", string(e.Str))

	e.Str = []byte("abc")
	_, err = e.IncrBy(1)
	assert.ErrorIs(t, err, ErrValueNotInteger)

	e.Str = []byte("9223372036854775807")
	_, err = e.IncrBy(1)
	assert.ErrorIs(t, err, ErrOverflow)

	e.Str = []byte("-9223372036854775808")
	_, err = e.IncrBy(-1)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestEntryCloneIsDeep(t *testing.T) {
	e := &Entry{Kind: KindList, List: NewList()}
	e.List.RPush([]byte("a"))

	cloned := e.Clone()
	e.List.RPush([]byte("b"))

	assert.Equal(t, 1, cloned.List.Len())
	assert.Equal(t, 2, e.List.Len())
}

func TestExpiryDeadlineInstantIsExpired(t *testing.T) {
	k := New(0, 0)
	now := time.Now()

	require.NoError(t, k.SetString("k", []byte("v"), now.UnixNano()))

	// a lookup at exactly the deadline must not observe the entry
	_, st := k.Lookup("k", now)
	assert.Equal(t, StatusExpired, st)
}
