// Package engine executes commands against the keyspace under a single
// global lock, giving every command an atomic, linearizable view. Writes
// are recorded in the write-ahead log before the reply is released, and a
// background sweep removes expired keys through the same logged path, so a
// restart replays to exactly the state clients observed.
package engine

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/duskdb/duskdb/internal/config"
	"github.com/duskdb/duskdb/internal/keyspace"
	"github.com/duskdb/duskdb/internal/metrics"
	"github.com/duskdb/duskdb/internal/resp"
	"github.com/duskdb/duskdb/internal/snapshot"
	"github.com/duskdb/duskdb/internal/wal"
)

// Engine owns the keyspace and serializes every command against it.
type Engine struct {
	mu  sync.Mutex
	ks  *keyspace.Keyspace
	cfg *config.Config

	log   *wal.Log          // nil when the WAL is disabled
	snaps *snapshot.Manager // nil when snapshots are disabled

	logger *zap.Logger

	replaying bool // recovery in progress; suppress WAL writes

	// Snapshot bookkeeping has its own lock so writeSnapshot can run while
	// a handler holds the command lock.
	snapMu           sync.Mutex
	lastSnapshotSeq  uint64
	lastSnapshotTime time.Time
	walSizeAtSnap    int64
	snapshotting     atomic.Bool

	started  time.Time
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds an engine, recovers state from the newest snapshot plus the
// WAL tail, and starts the background sweep and snapshot triggers.
func New(cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	e := &Engine{
		ks:       keyspace.New(cfg.Engine.MaxValueBytes, cfg.Engine.MaxCollectionSize),
		cfg:      cfg,
		logger:   logger,
		started:  time.Now(),
		stopChan: make(chan struct{}),
	}

	if cfg.Persistence.Snapshot.Enabled {
		m, err := snapshot.NewManager(cfg.Persistence.Snapshot.Dir, cfg.Persistence.Snapshot.Retain, logger)
		if err != nil {
			return nil, err
		}
		e.snaps = m
	}

	if err := e.recover(); err != nil {
		return nil, err
	}

	if cfg.Persistence.WAL.Enabled {
		l, err := wal.Open(cfg.Persistence.WAL.Dir, cfg.Persistence.WAL.Fsync,
			cfg.Persistence.WAL.SegmentMaxBytes, logger)
		if err != nil {
			return nil, err
		}
		e.log = l
		e.walSizeAtSnap = l.Size()

		if err := e.replayLog(); err != nil {
			return nil, err
		}
	}

	e.lastSnapshotTime = time.Now()

	if cfg.GC.Enabled {
		e.wg.Add(1)
		go e.sweepLoop()
	}
	if e.snaps != nil {
		e.wg.Add(1)
		go e.snapshotLoop()
	}

	return e, nil
}

// recover installs the newest valid snapshot into the keyspace.
func (e *Engine) recover() error {
	if e.snaps == nil {
		return nil
	}

	entries, seq, err := e.snaps.LoadNewest()
	if err != nil {
		if err == snapshot.ErrNoSnapshot {
			e.logger.Info("no snapshot found, starting empty")
			return nil
		}
		return err
	}

	for _, se := range entries {
		e.ks.SetEntry(se.Key, se.Value)
	}
	e.lastSnapshotSeq = seq

	e.logger.Info("snapshot restored",
		zap.Uint64("last_seq", seq),
		zap.Int("keys", len(entries)),
	)
	return nil
}

// replayLog re-executes WAL records past the snapshot point through the
// normal dispatch path. Replayed commands use the timestamp recorded at
// append time, so expiration decisions repeat exactly.
func (e *Engine) replayLog() error {
	started := time.Now()
	replayed := 0

	e.replaying = true
	err := e.log.Replay(e.lastSnapshotSeq, func(rec wal.Record) error {
		name, args, parseErr := resp.ParseCommand(rec.Payload)
		if parseErr != nil {
			return fmt.Errorf("engine: malformed WAL record %d: %w", rec.Seq, parseErr)
		}
		reply := e.dispatch(name, args, time.UnixMilli(rec.Timestamp))
		if reply.Type == resp.TypeError {
			e.logger.Warn("WAL record rejected during replay",
				zap.Uint64("seq", rec.Seq),
				zap.String("command", name),
				zap.ByteString("error", reply.String),
			)
		}
		replayed++
		return nil
	})
	e.replaying = false
	if err != nil {
		return err
	}

	e.logger.Info("WAL replay complete",
		zap.Int("records", replayed),
		zap.Uint64("through_seq", e.log.LastSeq()),
		zap.Duration("took", time.Since(started)),
	)
	return nil
}

// Execute runs one command and returns its reply. Safe for concurrent use;
// commands are applied one at a time in lock acquisition order.
func (e *Engine) Execute(name string, args []resp.Value) resp.Value {
	started := time.Now()

	e.mu.Lock()
	reply := e.dispatch(name, args, started)
	e.mu.Unlock()

	cmdLabel := strings.ToLower(name)
	status := "ok"
	if reply.Type == resp.TypeError {
		status = "error"
	}
	metrics.CommandsTotal.WithLabelValues(cmdLabel, status).Inc()
	metrics.CommandDuration.WithLabelValues(cmdLabel).Observe(time.Since(started).Seconds())

	return reply
}

// dispatch validates, applies and logs one command. Caller holds e.mu.
func (e *Engine) dispatch(name string, args []resp.Value, now time.Time) resp.Value {
	lower := strings.ToLower(name)
	cmd, ok := commands[lower]
	if !ok {
		return resp.MakeError(fmt.Sprintf("ERR unknown command '%s'", name))
	}
	if len(args) < cmd.minArgs || (cmd.maxArgs >= 0 && len(args) > cmd.maxArgs) {
		return resp.MakeErrorWrongNumberOfArguments(lower)
	}

	inv := &invocation{e: e, name: lower, args: args, now: now}
	reply := cmd.handler(inv)

	if len(inv.ops) > 0 {
		if err := e.appendWAL(inv.ops); err != nil {
			e.logger.Error("WAL append failed", zap.String("command", lower), zap.Error(err))
			return resp.MakeError("ERR write-ahead log failure")
		}
	}

	return reply
}

// appendWAL persists the resolved operations a handler recorded.
// Caller holds e.mu, so record order matches application order.
func (e *Engine) appendWAL(ops [][]byte) error {
	if e.log == nil || e.replaying {
		return nil
	}
	if _, err := e.log.Append(ops...); err != nil {
		return err
	}
	metrics.WALAppendsTotal.Add(float64(len(ops)))
	metrics.WALSizeBytes.Set(float64(e.log.Size()))
	return nil
}

// sweepLoop actively removes expired keys. Each tick samples volatile keys
// and deletes the dead ones through the logged path; when a large fraction
// of the sample was dead the sweep repeats immediately, bounded by the
// configured round limit.
func (e *Engine) sweepLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.GC.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.sweepTick()
		case <-e.stopChan:
			return
		}
	}
}

func (e *Engine) sweepTick() {
	for round := 0; round < e.cfg.GC.MaxRounds; round++ {
		now := time.Now()

		e.mu.Lock()
		expired, sampled := e.ks.SampleVolatile(e.cfg.GC.SamplesPerCheck, now)

		ops := make([][]byte, 0, len(expired))
		for _, key := range expired {
			e.ks.Delete(key, now)
			payload, err := resp.SerializeCommand("del", []resp.Value{resp.MakeBulkString(key)})
			if err == nil {
				ops = append(ops, payload)
			}
		}
		if err := e.appendWAL(ops); err != nil {
			e.logger.Error("WAL append failed during expiration sweep", zap.Error(err))
		}
		live := e.ks.Len(now)
		e.mu.Unlock()

		metrics.KeysLive.Set(float64(live))
		if len(expired) > 0 {
			metrics.KeysExpiredTotal.Add(float64(len(expired)))
			e.logger.Debug("expired keys swept",
				zap.Int("removed", len(expired)),
				zap.Int("sampled", sampled),
				zap.Int("round", round+1),
			)
		}

		if sampled == 0 || float64(len(expired))/float64(sampled) < e.cfg.GC.MatchThreshold {
			return
		}
	}
}

// snapshotLoop evaluates the snapshot triggers: elapsed time since the last
// snapshot and WAL growth since the last snapshot.
func (e *Engine) snapshotLoop() {
	defer e.wg.Done()

	interval := e.cfg.Persistence.Snapshot.CheckInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if trigger := e.snapshotDue(); trigger != "" {
				if err := e.Snapshot(trigger); err != nil {
					e.logger.Error("scheduled snapshot failed",
						zap.String("trigger", trigger), zap.Error(err))
				}
			}
		case <-e.stopChan:
			return
		}
	}
}

func (e *Engine) snapshotDue() string {
	cfg := e.cfg.Persistence.Snapshot

	e.snapMu.Lock()
	elapsed := time.Since(e.lastSnapshotTime)
	var growth int64
	if e.log != nil {
		growth = e.log.Size() - e.walSizeAtSnap
	}
	e.snapMu.Unlock()

	if cfg.Interval > 0 && elapsed >= cfg.Interval {
		return "interval"
	}
	if cfg.WALGrowthMax > 0 && growth >= cfg.WALGrowthMax {
		return "wal_growth"
	}
	return ""
}

// Snapshot writes a point-in-time snapshot. The dataset copy is taken under
// the command lock; serialization and disk IO happen outside it. Concurrent
// requests collapse: a snapshot already in flight makes this a no-op.
func (e *Engine) Snapshot(trigger string) error {
	if !e.snapshotting.CompareAndSwap(false, true) {
		return nil
	}
	defer e.snapshotting.Store(false)

	if e.snaps == nil {
		return fmt.Errorf("engine: snapshots are disabled")
	}

	e.mu.Lock()
	view, seq := e.snapshotViewLocked()
	e.mu.Unlock()

	return e.writeSnapshot(view, seq, trigger)
}

// snapshotViewLocked deep-copies the live dataset. Caller holds e.mu.
func (e *Engine) snapshotViewLocked() ([]snapshot.Entry, uint64) {
	now := time.Now()
	view := make([]snapshot.Entry, 0, e.ks.Len(now))
	e.ks.ForEach(now, func(key string, entry *keyspace.Entry) bool {
		view = append(view, snapshot.Entry{Key: key, Value: entry.Clone()})
		return true
	})

	var seq uint64
	if e.log != nil {
		seq = e.log.LastSeq()
	}
	return view, seq
}

// writeSnapshot persists a copied view and retires the WAL segments it
// makes redundant.
func (e *Engine) writeSnapshot(view []snapshot.Entry, seq uint64, trigger string) error {
	started := time.Now()

	if _, err := e.snaps.Save(view, seq); err != nil {
		return err
	}

	if e.log != nil {
		if err := e.log.TruncateThrough(seq); err != nil {
			e.logger.Warn("WAL truncation after snapshot failed", zap.Error(err))
		}
	}

	e.snapMu.Lock()
	e.lastSnapshotSeq = seq
	e.lastSnapshotTime = time.Now()
	if e.log != nil {
		e.walSizeAtSnap = e.log.Size()
	}
	e.snapMu.Unlock()

	metrics.SnapshotsTotal.WithLabelValues(trigger).Inc()
	metrics.SnapshotDuration.Observe(time.Since(started).Seconds())
	if e.log != nil {
		metrics.WALSizeBytes.Set(float64(e.log.Size()))
	}
	return nil
}

// Healthy reports whether background WAL flushing is keeping up.
// Always true when the WAL is disabled.
func (e *Engine) Healthy() bool {
	return e.log == nil || e.log.Healthy()
}

// KeyCount returns the number of live keys.
func (e *Engine) KeyCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ks.Len(time.Now())
}

// Stats reports operational counters for the introspection endpoints.
func (e *Engine) Stats() map[string]any {
	e.mu.Lock()
	keys := e.ks.Len(time.Now())
	e.mu.Unlock()

	e.snapMu.Lock()
	snapSeq := e.lastSnapshotSeq
	e.snapMu.Unlock()

	stats := map[string]any{
		"keys":              keys,
		"uptime_seconds":    int64(time.Since(e.started).Seconds()),
		"last_snapshot_seq": snapSeq,
	}
	if e.log != nil {
		stats["wal_last_seq"] = e.log.LastSeq()
		stats["wal_size_bytes"] = e.log.Size()
		stats["wal_healthy"] = e.log.Healthy()
	}
	return stats
}

// Close stops the background loops and flushes the WAL.
func (e *Engine) Close() error {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.wg.Wait()

	if e.log != nil {
		return e.log.Close()
	}
	return nil
}
