package engine

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/duskdb/duskdb/internal/keyspace"
	"github.com/duskdb/duskdb/internal/resp"
)

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// cmdSet implements SET key value [EX s|PX ms|EXAT s|PXAT ms] [NX|XX] [KEEPTTL].
// The logged form always carries the expiry as an absolute PXAT, so replay
// at a later wall clock reaches the same state.
func cmdSet(inv *invocation) resp.Value {
	key := inv.argStr(0)
	value := inv.arg(1)

	var (
		expireAt int64
		keepTTL  bool
		nx, xx   bool
	)

	for i := 2; i < len(inv.args); i++ {
		opt := strings.ToLower(inv.argStr(i))
		switch opt {
		case "nx":
			nx = true
		case "xx":
			xx = true
		case "keepttl":
			keepTTL = true
		case "ex", "px", "exat", "pxat":
			if i+1 >= len(inv.args) {
				return syntaxError()
			}
			n, err := strconv.ParseInt(inv.argStr(i+1), 10, 64)
			if err != nil {
				return notIntegerError()
			}
			// A zero or negative relative expiry is legal and produces a key
			// that is already dead: the set applies, the next lookup misses
			switch opt {
			case "ex":
				expireAt = inv.now.Add(time.Duration(n) * time.Second).UnixNano()
			case "px":
				expireAt = inv.now.Add(time.Duration(n) * time.Millisecond).UnixNano()
			case "exat":
				expireAt = time.Unix(n, 0).UnixNano()
			case "pxat":
				expireAt = time.UnixMilli(n).UnixNano()
			}
			i++
		default:
			return syntaxError()
		}
	}
	if nx && xx {
		return syntaxError()
	}

	existing, live := inv.lookup(key)
	if (nx && live) || (xx && !live) {
		return resp.MakeNilBulkString()
	}
	if keepTTL && live && expireAt == 0 {
		expireAt = existing.ExpireAt
	}

	if err := inv.e.ks.SetString(key, value, expireAt); err != nil {
		return errorReply(err)
	}

	if expireAt != 0 {
		ms := strconv.FormatInt(time.Unix(0, expireAt).UnixMilli(), 10)
		inv.logOp("set", []byte(key), value, []byte("pxat"), []byte(ms))
	} else {
		inv.logOp("set", []byte(key), value)
	}
	return resp.MakeSimpleString("OK")
}

// cmdSetEx implements SETEX key seconds value. Unlike SET with EX, a
// non-positive expiry is rejected. Logged as a resolved absolute SET.
func cmdSetEx(inv *invocation) resp.Value {
	key := inv.argStr(0)
	value := inv.arg(2)

	seconds, err := strconv.ParseInt(inv.argStr(1), 10, 64)
	if err != nil {
		return notIntegerError()
	}
	if seconds <= 0 {
		return resp.MakeError("ERR invalid expire time in 'setex' command")
	}

	expireAt := inv.now.Add(time.Duration(seconds) * time.Second).UnixNano()
	if err := inv.e.ks.SetString(key, value, expireAt); err != nil {
		return errorReply(err)
	}

	ms := strconv.FormatInt(time.Unix(0, expireAt).UnixMilli(), 10)
	inv.logOp("set", []byte(key), value, []byte("pxat"), []byte(ms))
	return resp.MakeSimpleString("OK")
}

// cmdSetRange overwrites len(value) bytes starting at offset, zero-padding
// the gap when offset lies past the current end. Returns the new length.
func cmdSetRange(inv *invocation) resp.Value {
	key := inv.argStr(0)
	value := inv.arg(2)

	offset, err := strconv.Atoi(inv.argStr(1))
	if err != nil {
		return notIntegerError()
	}
	if offset < 0 {
		return resp.MakeError("ERR offset is out of range")
	}

	e, terr := inv.typed(key, keyspace.KindString)
	if terr != nil {
		return errorReply(terr)
	}

	cur := 0
	if e != nil {
		cur = len(e.Str)
	}
	if len(value) == 0 {
		return resp.MakeInteger(int64(cur))
	}

	newLen := cur
	if offset+len(value) > newLen {
		newLen = offset + len(value)
	}
	if err := inv.e.ks.CheckValueSize(newLen); err != nil {
		return errorReply(err)
	}

	if e == nil {
		e = inv.e.ks.Create(key, keyspace.KindString)
	}
	buf := make([]byte, newLen)
	copy(buf, e.Str)
	copy(buf[offset:], value)
	e.Str = buf

	inv.logSelf()
	return resp.MakeInteger(int64(newLen))
}

func cmdGet(inv *invocation) resp.Value {
	e, err := inv.typed(inv.argStr(0), keyspace.KindString)
	if err != nil {
		return errorReply(err)
	}
	if e == nil {
		return resp.MakeNilBulkString()
	}
	return resp.MakeBulkBytes(copyBytes(e.Str))
}

// cmdGetSet returns the old string value while installing the new one.
// As with plain SET, any previous expiry is discarded.
func cmdGetSet(inv *invocation) resp.Value {
	key := inv.argStr(0)

	e, err := inv.typed(key, keyspace.KindString)
	if err != nil {
		return errorReply(err)
	}

	var old resp.Value
	if e == nil {
		old = resp.MakeNilBulkString()
	} else {
		old = resp.MakeBulkBytes(copyBytes(e.Str))
	}

	if err := inv.e.ks.SetString(key, inv.arg(1), 0); err != nil {
		return errorReply(err)
	}
	inv.logOp("set", []byte(key), inv.arg(1))
	return old
}

func cmdGetRange(inv *invocation) resp.Value {
	e, err := inv.typed(inv.argStr(0), keyspace.KindString)
	if err != nil {
		return errorReply(err)
	}

	start, err1 := strconv.Atoi(inv.argStr(1))
	end, err2 := strconv.Atoi(inv.argStr(2))
	if err1 != nil || err2 != nil {
		return notIntegerError()
	}

	if e == nil {
		return resp.MakeBulkString("")
	}

	n := len(e.Str)
	if start < 0 {
		start += n
	}
	if end < 0 {
		end += n
	}
	if start < 0 {
		start = 0
	}
	if end >= n {
		end = n - 1
	}
	if start > end || start >= n {
		return resp.MakeBulkString("")
	}
	return resp.MakeBulkBytes(copyBytes(e.Str[start : end+1]))
}

func cmdAppend(inv *invocation) resp.Value {
	key := inv.argStr(0)
	value := inv.arg(1)

	e, err := inv.typed(key, keyspace.KindString)
	if err != nil {
		return errorReply(err)
	}

	if e == nil {
		if err := inv.e.ks.SetString(key, value, 0); err != nil {
			return errorReply(err)
		}
		inv.logSelf()
		return resp.MakeInteger(int64(len(value)))
	}

	if err := inv.e.ks.CheckValueSize(len(e.Str) + len(value)); err != nil {
		return errorReply(err)
	}
	joined := make([]byte, 0, len(e.Str)+len(value))
	joined = append(joined, e.Str...)
	joined = append(joined, value...)
	e.Str = joined

	inv.logSelf()
	return resp.MakeInteger(int64(len(e.Str)))
}

func cmdStrLen(inv *invocation) resp.Value {
	e, err := inv.typed(inv.argStr(0), keyspace.KindString)
	if err != nil {
		return errorReply(err)
	}
	if e == nil {
		return resp.MakeInteger(0)
	}
	return resp.MakeInteger(int64(len(e.Str)))
}

func cmdSetNX(inv *invocation) resp.Value {
	key := inv.argStr(0)

	if _, live := inv.lookup(key); live {
		return resp.MakeInteger(0)
	}
	if err := inv.e.ks.SetString(key, inv.arg(1), 0); err != nil {
		return errorReply(err)
	}
	inv.logOp("set", []byte(key), inv.arg(1))
	return resp.MakeInteger(1)
}

func cmdMSet(inv *invocation) resp.Value {
	if len(inv.args)%2 != 0 {
		return resp.MakeErrorWrongNumberOfArguments("mset")
	}

	for i := 0; i < len(inv.args); i += 2 {
		if err := inv.e.ks.CheckValueSize(len(inv.arg(i + 1))); err != nil {
			return errorReply(err)
		}
	}
	for i := 0; i < len(inv.args); i += 2 {
		// Size already checked, SetString cannot fail here
		inv.e.ks.SetString(inv.argStr(i), inv.arg(i+1), 0)
		inv.logOp("set", inv.arg(i), inv.arg(i+1))
	}
	return resp.MakeSimpleString("OK")
}

func cmdIncr(inv *invocation) resp.Value {
	return incrByDelta(inv, 1)
}

func cmdDecr(inv *invocation) resp.Value {
	return incrByDelta(inv, -1)
}

func cmdIncrBy(inv *invocation) resp.Value {
	delta, err := strconv.ParseInt(inv.argStr(1), 10, 64)
	if err != nil {
		return notIntegerError()
	}
	return incrByDelta(inv, delta)
}

func cmdDecrBy(inv *invocation) resp.Value {
	delta, err := strconv.ParseInt(inv.argStr(1), 10, 64)
	if err != nil {
		return notIntegerError()
	}
	// -MinInt64 is not representable; negating it wraps back to itself
	if delta == math.MinInt64 {
		return errorReply(keyspace.ErrOverflow)
	}
	return incrByDelta(inv, -delta)
}

// incrByDelta shares the integer arithmetic across the four increment
// commands. A missing key behaves as "0". The result is deterministic from
// the stored bytes, so the command is logged as issued.
func incrByDelta(inv *invocation, delta int64) resp.Value {
	key := inv.argStr(0)

	e, err := inv.typedOrCreate(key, keyspace.KindString)
	if err != nil {
		return errorReply(err)
	}

	result, err := e.IncrBy(delta)
	if err != nil {
		return errorReply(err)
	}
	inv.logSelf()
	return resp.MakeInteger(result)
}

func cmdIncrByFloat(inv *invocation) resp.Value {
	key := inv.argStr(0)

	delta, err := strconv.ParseFloat(inv.argStr(1), 64)
	if err != nil {
		return errorReply(keyspace.ErrValueNotFloat)
	}

	e, terr := inv.typedOrCreate(key, keyspace.KindString)
	if terr != nil {
		return errorReply(terr)
	}

	_, err = e.IncrByFloat(delta)
	if err != nil {
		return errorReply(err)
	}
	inv.logSelf()
	return resp.MakeBulkBytes(copyBytes(e.Str))
}
