package engine

import (
	"strconv"
	"strings"

	"github.com/duskdb/duskdb/internal/keyspace"
	"github.com/duskdb/duskdb/internal/resp"
)

func cmdLPush(inv *invocation) resp.Value {
	return listPush(inv, true, false)
}

func cmdRPush(inv *invocation) resp.Value {
	return listPush(inv, false, false)
}

func cmdLPushX(inv *invocation) resp.Value {
	return listPush(inv, true, true)
}

func cmdRPushX(inv *invocation) resp.Value {
	return listPush(inv, false, true)
}

func listPush(inv *invocation, left, requireExisting bool) resp.Value {
	key := inv.argStr(0)
	values := make([][]byte, 0, len(inv.args)-1)
	for i := 1; i < len(inv.args); i++ {
		if err := inv.e.ks.CheckValueSize(len(inv.arg(i))); err != nil {
			return errorReply(err)
		}
		values = append(values, inv.arg(i))
	}

	var e *keyspace.Entry
	var err error
	if requireExisting {
		e, err = inv.typed(key, keyspace.KindList)
		if err != nil {
			return errorReply(err)
		}
		if e == nil {
			return resp.MakeInteger(0)
		}
	} else {
		e, err = inv.typedOrCreate(key, keyspace.KindList)
		if err != nil {
			return errorReply(err)
		}
	}

	if err := inv.e.ks.CanGrow(e.List.Len(), len(values)); err != nil {
		inv.e.ks.RemoveIfEmpty(key, e)
		return errorReply(err)
	}

	var length int
	if left {
		length = e.List.LPush(values...)
	} else {
		length = e.List.RPush(values...)
	}
	inv.logSelf()
	return resp.MakeInteger(int64(length))
}

func cmdLPop(inv *invocation) resp.Value {
	return listPop(inv, true)
}

func cmdRPop(inv *invocation) resp.Value {
	return listPop(inv, false)
}

func listPop(inv *invocation, left bool) resp.Value {
	key := inv.argStr(0)

	e, err := inv.typed(key, keyspace.KindList)
	if err != nil {
		return errorReply(err)
	}
	if e == nil {
		return resp.MakeNilBulkString()
	}

	var v []byte
	var ok bool
	if left {
		v, ok = e.List.LPop()
	} else {
		v, ok = e.List.RPop()
	}
	if !ok {
		return resp.MakeNilBulkString()
	}

	inv.e.ks.RemoveIfEmpty(key, e)
	inv.logSelf()
	return resp.MakeBulkBytes(v)
}

func cmdLLen(inv *invocation) resp.Value {
	e, err := inv.typed(inv.argStr(0), keyspace.KindList)
	if err != nil {
		return errorReply(err)
	}
	if e == nil {
		return resp.MakeInteger(0)
	}
	return resp.MakeInteger(int64(e.List.Len()))
}

func cmdLIndex(inv *invocation) resp.Value {
	e, err := inv.typed(inv.argStr(0), keyspace.KindList)
	if err != nil {
		return errorReply(err)
	}

	index, perr := strconv.Atoi(inv.argStr(1))
	if perr != nil {
		return notIntegerError()
	}

	if e == nil {
		return resp.MakeNilBulkString()
	}
	v, ok := e.List.Index(index)
	if !ok {
		return resp.MakeNilBulkString()
	}
	return resp.MakeBulkBytes(v)
}

func cmdLSet(inv *invocation) resp.Value {
	key := inv.argStr(0)

	index, perr := strconv.Atoi(inv.argStr(1))
	if perr != nil {
		return notIntegerError()
	}

	e, err := inv.typed(key, keyspace.KindList)
	if err != nil {
		return errorReply(err)
	}
	if e == nil {
		return errorReply(keyspace.ErrNoSuchKey)
	}
	if err := inv.e.ks.CheckValueSize(len(inv.arg(2))); err != nil {
		return errorReply(err)
	}
	if err := e.List.Set(index, inv.arg(2)); err != nil {
		return errorReply(err)
	}
	inv.logSelf()
	return resp.MakeSimpleString("OK")
}

func cmdLRange(inv *invocation) resp.Value {
	e, err := inv.typed(inv.argStr(0), keyspace.KindList)
	if err != nil {
		return errorReply(err)
	}

	start, err1 := strconv.Atoi(inv.argStr(1))
	stop, err2 := strconv.Atoi(inv.argStr(2))
	if err1 != nil || err2 != nil {
		return notIntegerError()
	}

	if e == nil {
		return resp.MakeArray(nil)
	}

	items := e.List.Range(start, stop)
	out := make([]resp.Value, len(items))
	for i, it := range items {
		out[i] = resp.MakeBulkBytes(it)
	}
	return resp.MakeArray(out)
}

func cmdLRem(inv *invocation) resp.Value {
	key := inv.argStr(0)

	count, perr := strconv.Atoi(inv.argStr(1))
	if perr != nil {
		return notIntegerError()
	}

	e, err := inv.typed(key, keyspace.KindList)
	if err != nil {
		return errorReply(err)
	}
	if e == nil {
		return resp.MakeInteger(0)
	}

	removed := e.List.Rem(count, inv.arg(2))
	if removed > 0 {
		inv.e.ks.RemoveIfEmpty(key, e)
		inv.logSelf()
	}
	return resp.MakeInteger(int64(removed))
}

func cmdLTrim(inv *invocation) resp.Value {
	key := inv.argStr(0)

	start, err1 := strconv.Atoi(inv.argStr(1))
	stop, err2 := strconv.Atoi(inv.argStr(2))
	if err1 != nil || err2 != nil {
		return notIntegerError()
	}

	e, err := inv.typed(key, keyspace.KindList)
	if err != nil {
		return errorReply(err)
	}
	if e == nil {
		return resp.MakeSimpleString("OK")
	}

	e.List.Trim(start, stop)
	inv.e.ks.RemoveIfEmpty(key, e)
	inv.logSelf()
	return resp.MakeSimpleString("OK")
}

func cmdLInsert(inv *invocation) resp.Value {
	key := inv.argStr(0)

	var before bool
	switch strings.ToLower(inv.argStr(1)) {
	case "before":
		before = true
	case "after":
		before = false
	default:
		return syntaxError()
	}

	e, err := inv.typed(key, keyspace.KindList)
	if err != nil {
		return errorReply(err)
	}
	if e == nil {
		return resp.MakeInteger(0)
	}

	if err := inv.e.ks.CheckValueSize(len(inv.arg(3))); err != nil {
		return errorReply(err)
	}
	if err := inv.e.ks.CanGrow(e.List.Len(), 1); err != nil {
		return errorReply(err)
	}

	length := e.List.Insert(before, inv.arg(2), inv.arg(3))
	if length < 0 {
		return resp.MakeInteger(-1)
	}
	inv.logSelf()
	return resp.MakeInteger(int64(length))
}
