package engine

import (
	"path"
	"strconv"
	"time"

	"github.com/duskdb/duskdb/internal/keyspace"
	"github.com/duskdb/duskdb/internal/resp"
)

func cmdDel(inv *invocation) resp.Value {
	deleted := int64(0)
	for i := range inv.args {
		key := inv.argStr(i)
		if inv.e.ks.Delete(key, inv.now) {
			deleted++
			inv.logOp("del", []byte(key))
		}
	}
	return resp.MakeInteger(deleted)
}

func cmdExists(inv *invocation) resp.Value {
	count := int64(0)
	for i := range inv.args {
		if inv.e.ks.IsLive(inv.argStr(i), inv.now) {
			count++
		}
	}
	return resp.MakeInteger(count)
}

func cmdType(inv *invocation) resp.Value {
	kind, st := inv.e.ks.KindOf(inv.argStr(0), inv.now)
	if st == keyspace.StatusExpired {
		inv.logOp("del", inv.arg(0))
	}
	if st != keyspace.StatusLive {
		return resp.MakeSimpleString("none")
	}
	return resp.MakeSimpleString(kind.String())
}

func cmdKeys(inv *invocation) resp.Value {
	pattern := inv.argStr(0)

	var matched []resp.Value
	for _, key := range inv.e.ks.Keys(inv.now) {
		ok, err := path.Match(pattern, key)
		if err != nil {
			return resp.MakeError("ERR invalid pattern")
		}
		if ok {
			matched = append(matched, resp.MakeBulkString(key))
		}
	}
	return resp.MakeArray(matched)
}

// cmdRename moves the value and its expiry to the destination key,
// replacing any value stored there.
func cmdRename(inv *invocation) resp.Value {
	src, dst := inv.argStr(0), inv.argStr(1)

	e, live := inv.lookup(src)
	if !live {
		return errorReply(keyspace.ErrNoSuchKey)
	}

	inv.e.ks.Delete(src, inv.now)
	inv.e.ks.SetEntry(dst, e)
	inv.logSelf()
	return resp.MakeSimpleString("OK")
}

func cmdExpire(inv *invocation) resp.Value {
	return applyExpire(inv, time.Second, false)
}

func cmdPExpire(inv *invocation) resp.Value {
	return applyExpire(inv, time.Millisecond, false)
}

func cmdExpireAt(inv *invocation) resp.Value {
	return applyExpire(inv, time.Second, true)
}

func cmdPExpireAt(inv *invocation) resp.Value {
	return applyExpire(inv, time.Millisecond, true)
}

// applyExpire implements the four expire variants. The deadline is logged
// as an absolute PEXPIREAT. A deadline at or before now deletes the key
// immediately, matching what a lookup would do an instant later.
func applyExpire(inv *invocation, unit time.Duration, absolute bool) resp.Value {
	key := inv.argStr(0)

	n, err := strconv.ParseInt(inv.argStr(1), 10, 64)
	if err != nil {
		return notIntegerError()
	}

	var at int64
	if absolute {
		at = n * int64(unit)
	} else {
		at = inv.now.Add(time.Duration(n) * unit).UnixNano()
	}

	if _, live := inv.lookup(key); !live {
		return resp.MakeInteger(0)
	}

	if at <= inv.now.UnixNano() {
		inv.e.ks.Delete(key, inv.now)
		inv.logOp("del", []byte(key))
		return resp.MakeInteger(1)
	}

	inv.e.ks.SetExpiry(key, at, inv.now)
	ms := strconv.FormatInt(at/int64(time.Millisecond), 10)
	inv.logOp("pexpireat", []byte(key), []byte(ms))
	return resp.MakeInteger(1)
}

func cmdTTL(inv *invocation) resp.Value {
	return remainingTTL(inv, time.Second)
}

func cmdPTTL(inv *invocation) resp.Value {
	return remainingTTL(inv, time.Millisecond)
}

func remainingTTL(inv *invocation, unit time.Duration) resp.Value {
	e, live := inv.lookup(inv.argStr(0))
	if !live {
		return resp.MakeInteger(-2)
	}
	if e.ExpireAt == 0 {
		return resp.MakeInteger(-1)
	}
	remaining := e.ExpireAt - inv.now.UnixNano()
	// Round up so a key that still has a fraction of the unit left never
	// reports zero while alive
	return resp.MakeInteger((remaining + int64(unit) - 1) / int64(unit))
}

func cmdPersist(inv *invocation) resp.Value {
	key := inv.argStr(0)
	e, live := inv.lookup(key)
	if !live || e.ExpireAt == 0 {
		return resp.MakeInteger(0)
	}
	e.ExpireAt = 0
	inv.logSelf()
	return resp.MakeInteger(1)
}

func cmdDBSize(inv *invocation) resp.Value {
	return resp.MakeInteger(int64(inv.e.ks.Len(inv.now)))
}

func cmdFlushDB(inv *invocation) resp.Value {
	inv.e.ks.Clear()
	inv.logSelf()
	return resp.MakeSimpleString("OK")
}
