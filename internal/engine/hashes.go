package engine

import (
	"strconv"

	"github.com/duskdb/duskdb/internal/keyspace"
	"github.com/duskdb/duskdb/internal/resp"
)

func cmdHSet(inv *invocation) resp.Value {
	key := inv.argStr(0)
	if (len(inv.args)-1)%2 != 0 {
		return resp.MakeErrorWrongNumberOfArguments("hset")
	}

	for i := 2; i < len(inv.args); i += 2 {
		if err := inv.e.ks.CheckValueSize(len(inv.arg(i))); err != nil {
			return errorReply(err)
		}
	}

	e, err := inv.typedOrCreate(key, keyspace.KindHash)
	if err != nil {
		return errorReply(err)
	}

	newFields := 0
	for i := 1; i < len(inv.args); i += 2 {
		if !e.Hash.Exists(inv.argStr(i)) {
			newFields++
		}
	}
	if err := inv.e.ks.CanGrow(e.Hash.Len(), newFields); err != nil {
		inv.e.ks.RemoveIfEmpty(key, e)
		return errorReply(err)
	}

	added := 0
	for i := 1; i < len(inv.args); i += 2 {
		if e.Hash.Set(inv.argStr(i), inv.arg(i+1)) {
			added++
		}
	}
	inv.logSelf()
	return resp.MakeInteger(int64(added))
}

func cmdHSetNX(inv *invocation) resp.Value {
	key := inv.argStr(0)

	if err := inv.e.ks.CheckValueSize(len(inv.arg(2))); err != nil {
		return errorReply(err)
	}

	e, err := inv.typedOrCreate(key, keyspace.KindHash)
	if err != nil {
		return errorReply(err)
	}

	if e.Hash.Exists(inv.argStr(1)) {
		inv.e.ks.RemoveIfEmpty(key, e)
		return resp.MakeInteger(0)
	}
	if err := inv.e.ks.CanGrow(e.Hash.Len(), 1); err != nil {
		inv.e.ks.RemoveIfEmpty(key, e)
		return errorReply(err)
	}

	e.Hash.SetNX(inv.argStr(1), inv.arg(2))
	inv.logSelf()
	return resp.MakeInteger(1)
}

func cmdHGet(inv *invocation) resp.Value {
	e, err := inv.typed(inv.argStr(0), keyspace.KindHash)
	if err != nil {
		return errorReply(err)
	}
	if e == nil {
		return resp.MakeNilBulkString()
	}
	v, ok := e.Hash.Get(inv.argStr(1))
	if !ok {
		return resp.MakeNilBulkString()
	}
	return resp.MakeBulkBytes(v)
}

func cmdHDel(inv *invocation) resp.Value {
	key := inv.argStr(0)

	e, err := inv.typed(key, keyspace.KindHash)
	if err != nil {
		return errorReply(err)
	}
	if e == nil {
		return resp.MakeInteger(0)
	}

	fields := make([]string, 0, len(inv.args)-1)
	for i := 1; i < len(inv.args); i++ {
		fields = append(fields, inv.argStr(i))
	}

	removed := e.Hash.Del(fields...)
	if removed > 0 {
		inv.e.ks.RemoveIfEmpty(key, e)
		inv.logSelf()
	}
	return resp.MakeInteger(int64(removed))
}

func cmdHExists(inv *invocation) resp.Value {
	e, err := inv.typed(inv.argStr(0), keyspace.KindHash)
	if err != nil {
		return errorReply(err)
	}
	if e == nil || !e.Hash.Exists(inv.argStr(1)) {
		return resp.MakeInteger(0)
	}
	return resp.MakeInteger(1)
}

func cmdHLen(inv *invocation) resp.Value {
	e, err := inv.typed(inv.argStr(0), keyspace.KindHash)
	if err != nil {
		return errorReply(err)
	}
	if e == nil {
		return resp.MakeInteger(0)
	}
	return resp.MakeInteger(int64(e.Hash.Len()))
}

func cmdHGetAll(inv *invocation) resp.Value {
	e, err := inv.typed(inv.argStr(0), keyspace.KindHash)
	if err != nil {
		return errorReply(err)
	}
	if e == nil {
		return resp.MakeArray(nil)
	}

	pairs := e.Hash.GetAll()
	out := make([]resp.Value, 0, len(pairs)*2)
	for _, p := range pairs {
		out = append(out, resp.MakeBulkString(p.Field), resp.MakeBulkBytes(p.Value))
	}
	return resp.MakeArray(out)
}

func cmdHKeys(inv *invocation) resp.Value {
	e, err := inv.typed(inv.argStr(0), keyspace.KindHash)
	if err != nil {
		return errorReply(err)
	}
	if e == nil {
		return resp.MakeArray(nil)
	}

	keys := e.Hash.Keys()
	out := make([]resp.Value, len(keys))
	for i, k := range keys {
		out[i] = resp.MakeBulkString(k)
	}
	return resp.MakeArray(out)
}

func cmdHVals(inv *invocation) resp.Value {
	e, err := inv.typed(inv.argStr(0), keyspace.KindHash)
	if err != nil {
		return errorReply(err)
	}
	if e == nil {
		return resp.MakeArray(nil)
	}

	vals := e.Hash.Vals()
	out := make([]resp.Value, len(vals))
	for i, v := range vals {
		out[i] = resp.MakeBulkBytes(v)
	}
	return resp.MakeArray(out)
}

func cmdHIncrBy(inv *invocation) resp.Value {
	key := inv.argStr(0)

	delta, perr := strconv.ParseInt(inv.argStr(2), 10, 64)
	if perr != nil {
		return notIntegerError()
	}

	e, err := inv.typedOrCreate(key, keyspace.KindHash)
	if err != nil {
		return errorReply(err)
	}

	result, err := e.Hash.IncrBy(inv.argStr(1), delta)
	if err != nil {
		inv.e.ks.RemoveIfEmpty(key, e)
		return errorReply(err)
	}
	inv.logSelf()
	return resp.MakeInteger(result)
}
