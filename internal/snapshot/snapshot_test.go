package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/duskdb/duskdb/internal/keyspace"
)

func newTestManager(t *testing.T, retain int) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir(), retain, zap.NewNop())
	require.NoError(t, err)
	return m
}

func sampleEntries() []Entry {
	list := keyspace.NewList()
	list.RPush([]byte("a"), []byte("b"), []byte("c"))

	hash := keyspace.NewHash()
	hash.Set("field", []byte("value"))
	hash.Set("other", []byte("42"))

	set := keyspace.NewSet()
	set.Add("x", "y")

	zset := keyspace.NewSortedSet()
	zset.Add(
		keyspace.ScoredMember{Member: "low", Score: 1.5},
		keyspace.ScoredMember{Member: "high", Score: 99},
	)

	return []Entry{
		{Key: "greeting", Value: &keyspace.Entry{Kind: keyspace.KindString, Str: []byte("hello")}},
		{Key: "volatile", Value: &keyspace.Entry{
			Kind:     keyspace.KindString,
			Str:      []byte("soon gone"),
			ExpireAt: time.Now().Add(time.Hour).UnixNano(),
		}},
		{Key: "queue", Value: &keyspace.Entry{Kind: keyspace.KindList, List: list}},
		{Key: "profile", Value: &keyspace.Entry{Kind: keyspace.KindHash, Hash: hash}},
		{Key: "tags", Value: &keyspace.Entry{Kind: keyspace.KindSet, Set: set}},
		{Key: "board", Value: &keyspace.Entry{Kind: keyspace.KindZSet, ZSet: zset}},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := newTestManager(t, 3)

	original := sampleEntries()
	_, err := m.Save(original, 42)
	require.NoError(t, err)

	loaded, seq, err := m.LoadNewest()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), seq)
	require.Len(t, loaded, len(original))

	byKey := make(map[string]*keyspace.Entry, len(loaded))
	for _, e := range loaded {
		byKey[e.Key] = e.Value
	}

	assert.Equal(t, []byte("hello"), byKey["greeting"].Str)
	assert.Zero(t, byKey["greeting"].ExpireAt)
	assert.Equal(t, original[1].Value.ExpireAt, byKey["volatile"].ExpireAt)

	require.Equal(t, keyspace.KindList, byKey["queue"].Kind)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, byKey["queue"].List.Range(0, -1))

	require.Equal(t, keyspace.KindHash, byKey["profile"].Kind)
	v, ok := byKey["profile"].Hash.Get("field")
	require.True(t, ok)
	assert.Equal(t, []byte("value"), v)
	assert.Equal(t, 2, byKey["profile"].Hash.Len())

	require.Equal(t, keyspace.KindSet, byKey["tags"].Kind)
	assert.True(t, byKey["tags"].Set.IsMember("x"))
	assert.Equal(t, 2, byKey["tags"].Set.Card())

	require.Equal(t, keyspace.KindZSet, byKey["board"].Kind)
	score, ok := byKey["board"].ZSet.Score("high")
	require.True(t, ok)
	assert.Equal(t, float64(99), score)
}

func TestLoadNewestPrefersLatestGeneration(t *testing.T) {
	m := newTestManager(t, 3)

	_, err := m.Save([]Entry{{Key: "k", Value: &keyspace.Entry{Kind: keyspace.KindString, Str: []byte("old")}}}, 10)
	require.NoError(t, err)
	_, err = m.Save([]Entry{{Key: "k", Value: &keyspace.Entry{Kind: keyspace.KindString, Str: []byte("new")}}}, 20)
	require.NoError(t, err)

	loaded, seq, err := m.LoadNewest()
	require.NoError(t, err)
	assert.Equal(t, uint64(20), seq)
	require.Len(t, loaded, 1)
	assert.Equal(t, []byte("new"), loaded[0].Value.Str)
}

func TestCorruptNewestFallsBackToOlder(t *testing.T) {
	m := newTestManager(t, 3)

	_, err := m.Save([]Entry{{Key: "k", Value: &keyspace.Entry{Kind: keyspace.KindString, Str: []byte("good")}}}, 10)
	require.NoError(t, err)
	newest, err := m.Save([]Entry{{Key: "k", Value: &keyspace.Entry{Kind: keyspace.KindString, Str: []byte("bad")}}}, 20)
	require.NoError(t, err)

	data, err := os.ReadFile(newest)
	require.NoError(t, err)
	data[len(data)/2] ^= 0xff
	require.NoError(t, os.WriteFile(newest, data, 0o644))

	loaded, seq, err := m.LoadNewest()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), seq)
	require.Len(t, loaded, 1)
	assert.Equal(t, []byte("good"), loaded[0].Value.Str)
}

func TestLoadNewestEmptyDir(t *testing.T) {
	m := newTestManager(t, 3)

	_, _, err := m.LoadNewest()
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestRetainPrunesOldGenerations(t *testing.T) {
	m := newTestManager(t, 2)

	for i := 1; i <= 5; i++ {
		_, err := m.Save(nil, uint64(i*10))
		require.NoError(t, err)
	}

	files, err := filepath.Glob(filepath.Join(m.dir, "snap-*.dusk"))
	require.NoError(t, err)
	assert.Len(t, files, 2)

	_, seq, err := m.LoadNewest()
	require.NoError(t, err)
	assert.Equal(t, uint64(50), seq)
}

func TestTruncatedFileRejected(t *testing.T) {
	m := newTestManager(t, 1)

	path, err := m.Save(sampleEntries(), 7)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-10], 0o644))

	_, _, err = m.LoadNewest()
	assert.ErrorIs(t, err, ErrNoSnapshot)
}
