package engine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/duskdb/duskdb/internal/config"
	"github.com/duskdb/duskdb/internal/resp"
	"github.com/duskdb/duskdb/internal/wal"
)

func persistentConfig(dir string) *config.Config {
	cfg := config.Default()
	cfg.GC.Enabled = false
	cfg.Persistence.WAL.Enabled = true
	cfg.Persistence.WAL.Dir = filepath.Join(dir, "wal")
	cfg.Persistence.WAL.Fsync = "no"
	cfg.Persistence.Snapshot.Enabled = true
	cfg.Persistence.Snapshot.Dir = filepath.Join(dir, "snapshots")
	cfg.Persistence.Snapshot.Interval = 0
	cfg.Persistence.Snapshot.WALGrowthMax = 0
	cfg.Persistence.Snapshot.CheckInterval = time.Hour
	return cfg
}

func openPersistent(t *testing.T, dir string) *Engine {
	t.Helper()
	e, err := New(persistentConfig(dir), zap.NewNop())
	require.NoError(t, err)
	return e
}

func TestRecoveryFromWAL(t *testing.T) {
	dir := t.TempDir()

	e := openPersistent(t, dir)
	assertOK(t, do(e, "SET", "str", "value"))
	assertInt(t, do(e, "RPUSH", "list", "a", "b"), 2)
	assertInt(t, do(e, "HSET", "hash", "f", "v"), 1)
	assertInt(t, do(e, "SADD", "set", "m1", "m2"), 2)
	assertInt(t, do(e, "ZADD", "zset", "1.5", "member"), 1)
	assertInt(t, do(e, "DEL", "str"), 1)
	require.NoError(t, e.Close())

	e2 := openPersistent(t, dir)
	defer e2.Close()

	assertNil(t, do(e2, "GET", "str"))
	assert.Equal(t, []string{"a", "b"}, arrayStrings(t, do(e2, "LRANGE", "list", "0", "-1")))
	assertBulk(t, do(e2, "HGET", "hash", "f"), "v")
	assertInt(t, do(e2, "SCARD", "set"), 2)
	assertBulk(t, do(e2, "ZSCORE", "zset", "member"), "1.5")
}

func TestRecoveryFromSnapshotPlusWALTail(t *testing.T) {
	dir := t.TempDir()

	e := openPersistent(t, dir)
	assertOK(t, do(e, "SET", "before", "snapshot"))
	assertOK(t, do(e, "SAVE"))
	assertOK(t, do(e, "SET", "after", "snapshot"))
	assertInt(t, do(e, "DEL", "before"), 1)
	require.NoError(t, e.Close())

	e2 := openPersistent(t, dir)
	defer e2.Close()

	assertNil(t, do(e2, "GET", "before"))
	assertBulk(t, do(e2, "GET", "after"), "snapshot")
}

func TestRecoveryPreservesExpiry(t *testing.T) {
	dir := t.TempDir()

	e := openPersistent(t, dir)
	assertOK(t, do(e, "SET", "keeper", "v", "EX", "3600"))
	assertOK(t, do(e, "SET", "goner", "v", "PX", "30"))
	require.NoError(t, e.Close())

	time.Sleep(50 * time.Millisecond)

	e2 := openPersistent(t, dir)
	defer e2.Close()

	assertBulk(t, do(e2, "GET", "keeper"), "v")
	ttl := do(e2, "TTL", "keeper")
	assert.Greater(t, ttl.Integer, int64(3500))

	// The short-lived key died while the process was down
	assertNil(t, do(e2, "GET", "goner"))
}

func TestRecoveryDoesNotResurrectLazilyExpiredKey(t *testing.T) {
	dir := t.TempDir()

	e := openPersistent(t, dir)
	assertOK(t, do(e, "SET", "k", "v", "PX", "30"))
	time.Sleep(50 * time.Millisecond)
	// The lookup purges the dead key and records the deletion
	assertNil(t, do(e, "GET", "k"))
	require.NoError(t, e.Close())

	e2 := openPersistent(t, dir)
	defer e2.Close()

	assertInt(t, do(e2, "EXISTS", "k"), 0)
}

func TestRecoveryReplaysResolvedSPop(t *testing.T) {
	dir := t.TempDir()

	e := openPersistent(t, dir)
	do(e, "SADD", "s", "a", "b", "c")
	res := do(e, "SPOP", "s")
	require.Equal(t, byte(resp.TypeBulkString), res.Type)
	popped := string(res.String)
	remaining := arrayStrings(t, do(e, "SMEMBERS", "s"))
	require.NoError(t, e.Close())

	e2 := openPersistent(t, dir)
	defer e2.Close()

	// Replay removes exactly the member the original call picked
	assertInt(t, do(e2, "SISMEMBER", "s", popped), 0)
	assert.ElementsMatch(t, remaining, arrayStrings(t, do(e2, "SMEMBERS", "s")))
}

func TestRecoveryAfterFlush(t *testing.T) {
	dir := t.TempDir()

	e := openPersistent(t, dir)
	assertOK(t, do(e, "SET", "a", "1"))
	assertOK(t, do(e, "SET", "b", "2"))
	assertOK(t, do(e, "FLUSHDB"))
	assertOK(t, do(e, "SET", "c", "3"))
	require.NoError(t, e.Close())

	e2 := openPersistent(t, dir)
	defer e2.Close()

	assertInt(t, do(e2, "DBSIZE"), 1)
	assertBulk(t, do(e2, "GET", "c"), "3")
}

func TestBGSaveFollowedByRestart(t *testing.T) {
	dir := t.TempDir()

	e := openPersistent(t, dir)
	assertOK(t, do(e, "SET", "k", "v"))

	res := do(e, "BGSAVE")
	require.Equal(t, byte(resp.TypeSimpleString), res.Type)

	// Wait for the background write to land
	require.Eventually(t, func() bool {
		files, err := filepath.Glob(filepath.Join(dir, "snapshots", "snap-*.dusk"))
		return err == nil && len(files) > 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, e.Close())

	e2 := openPersistent(t, dir)
	defer e2.Close()
	assertBulk(t, do(e2, "GET", "k"), "v")
}

func TestActiveSweepRemovesExpiredKeys(t *testing.T) {
	dir := t.TempDir()

	cfg := persistentConfig(dir)
	cfg.GC.Enabled = true
	cfg.GC.Interval = 10 * time.Millisecond

	e, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	for _, k := range []string{"v1", "v2", "v3"} {
		assertOK(t, do(e, "SET", k, "x", "PX", "20"))
	}
	assertOK(t, do(e, "SET", "stable", "x"))

	require.Eventually(t, func() bool {
		return e.KeyCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, e.Close())

	// The sweep logged its deletions, so a restart agrees
	e2 := openPersistent(t, dir)
	defer e2.Close()
	assertInt(t, do(e2, "DBSIZE"), 1)
	assertBulk(t, do(e2, "GET", "stable"), "x")
}

func TestSnapshotTruncatesWAL(t *testing.T) {
	dir := t.TempDir()

	cfg := persistentConfig(dir)
	cfg.Persistence.WAL.SegmentMaxBytes = 128

	e, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		assertOK(t, do(e, "SET", "key", "some padding to force segment rotation"))
	}
	before, err := filepath.Glob(filepath.Join(dir, "wal", "wal-*.log"))
	require.NoError(t, err)
	require.Greater(t, len(before), 2)

	assertOK(t, do(e, "SAVE"))

	after, err := filepath.Glob(filepath.Join(dir, "wal", "wal-*.log"))
	require.NoError(t, err)
	assert.Less(t, len(after), len(before))

	require.NoError(t, e.Close())

	e2 := openPersistent(t, dir)
	defer e2.Close()
	assertBulk(t, do(e2, "GET", "key"), "some padding to force segment rotation")
}

// PERSIST hitting a lazily expired key must record the deletion, so the log
// carries a DEL for the key even though the command itself replied 0.
func TestPersistOnExpiredKeyLogsDeletion(t *testing.T) {
	dir := t.TempDir()
	cfg := persistentConfig(dir)

	e := openPersistent(t, dir)
	assertOK(t, do(e, "SET", "k", "v", "PX", "5"))
	time.Sleep(20 * time.Millisecond)
	assertInt(t, do(e, "PERSIST", "k"), 0)
	require.NoError(t, e.Close())

	l, err := wal.Open(cfg.Persistence.WAL.Dir, "no", cfg.Persistence.WAL.SegmentMaxBytes, zap.NewNop())
	require.NoError(t, err)
	defer l.Close()

	var deleted []string
	require.NoError(t, l.Replay(0, func(rec wal.Record) error {
		name, args, perr := resp.ParseCommand(rec.Payload)
		require.NoError(t, perr)
		if name == "del" {
			deleted = append(deleted, string(args[0].String))
		}
		return nil
	}))
	assert.Contains(t, deleted, "k")

	e2 := openPersistent(t, dir)
	defer e2.Close()
	assertInt(t, do(e2, "EXISTS", "k"), 0)
}

func TestSetExSurvivesRestartWithExpiry(t *testing.T) {
	dir := t.TempDir()

	e := openPersistent(t, dir)
	assertOK(t, do(e, "SETEX", "k", "3600", "v"))
	require.NoError(t, e.Close())

	e2 := openPersistent(t, dir)
	defer e2.Close()
	assertBulk(t, do(e2, "GET", "k"), "v")
	ttl := do(e2, "TTL", "k")
	require.Equal(t, byte(resp.TypeInteger), ttl.Type)
	assert.Greater(t, ttl.Integer, int64(3500))
}

func TestSetBitSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	e := openPersistent(t, dir)
	assertInt(t, do(e, "SETBIT", "bits", "10", "1"), 0)
	assertInt(t, do(e, "SETBIT", "bits", "4", "1"), 0)
	require.NoError(t, e.Close())

	e2 := openPersistent(t, dir)
	defer e2.Close()
	assertInt(t, do(e2, "GETBIT", "bits", "10"), 1)
	assertInt(t, do(e2, "GETBIT", "bits", "4"), 1)
	assertInt(t, do(e2, "BITCOUNT", "bits"), 2)
}
