package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/duskdb/duskdb/internal/resp"
)

// Version is stamped by the build; the fallback marks development builds.
var Version = "dev"

func cmdPing(inv *invocation) resp.Value {
	if len(inv.args) == 1 {
		return resp.MakeBulkBytes(copyBytes(inv.arg(0)))
	}
	return resp.MakeSimpleString("PONG")
}

func cmdEcho(inv *invocation) resp.Value {
	return resp.MakeBulkBytes(copyBytes(inv.arg(0)))
}

// cmdCommand exists so client libraries probing the command table at
// connect time get a sane answer instead of an unknown-command error.
func cmdCommand(inv *invocation) resp.Value {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]resp.Value, len(names))
	for i, name := range names {
		out[i] = resp.MakeBulkString(name)
	}
	return resp.MakeArray(out)
}

// cmdSave writes a snapshot synchronously, blocking every other command
// until the file is on disk.
func cmdSave(inv *invocation) resp.Value {
	e := inv.e
	if e.snaps == nil {
		return resp.MakeError("ERR snapshots are disabled")
	}
	if !e.snapshotting.CompareAndSwap(false, true) {
		return resp.MakeError("ERR a snapshot is already in progress")
	}
	defer e.snapshotting.Store(false)

	view, seq := e.snapshotViewLocked()
	if err := e.writeSnapshot(view, seq, "save"); err != nil {
		e.logger.Error("SAVE failed", zap.Error(err))
		return resp.MakeError("ERR snapshot failed")
	}
	return resp.MakeSimpleString("OK")
}

// cmdBGSave copies the dataset under the command lock and writes it out on
// a background goroutine.
func cmdBGSave(inv *invocation) resp.Value {
	e := inv.e
	if e.snaps == nil {
		return resp.MakeError("ERR snapshots are disabled")
	}
	if !e.snapshotting.CompareAndSwap(false, true) {
		return resp.MakeError("ERR a snapshot is already in progress")
	}

	view, seq := e.snapshotViewLocked()
	go func() {
		defer e.snapshotting.Store(false)
		if err := e.writeSnapshot(view, seq, "bgsave"); err != nil {
			e.logger.Error("BGSAVE failed", zap.Error(err))
		}
	}()
	return resp.MakeSimpleString("Background saving started")
}

func cmdInfo(inv *invocation) resp.Value {
	e := inv.e

	var b strings.Builder
	fmt.Fprintf(&b, "# Server\r\n")
	fmt.Fprintf(&b, "version:%s\r\n", Version)
	fmt.Fprintf(&b, "uptime_in_seconds:%d\r\n", int64(time.Since(e.started).Seconds()))
	fmt.Fprintf(&b, "\r\n# Keyspace\r\n")
	fmt.Fprintf(&b, "keys:%d\r\n", e.ks.Len(inv.now))
	fmt.Fprintf(&b, "\r\n# Persistence\r\n")

	e.snapMu.Lock()
	fmt.Fprintf(&b, "last_snapshot_seq:%d\r\n", e.lastSnapshotSeq)
	e.snapMu.Unlock()

	if e.log != nil {
		fmt.Fprintf(&b, "wal_last_seq:%d\r\n", e.log.LastSeq())
		fmt.Fprintf(&b, "wal_size_bytes:%d\r\n", e.log.Size())
		fmt.Fprintf(&b, "wal_healthy:%t\r\n", e.log.Healthy())
	}
	return resp.MakeBulkString(b.String())
}
