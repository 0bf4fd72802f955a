package engine

import (
	"strconv"

	"github.com/duskdb/duskdb/internal/keyspace"
	"github.com/duskdb/duskdb/internal/resp"
)

func cmdSAdd(inv *invocation) resp.Value {
	key := inv.argStr(0)

	e, err := inv.typedOrCreate(key, keyspace.KindSet)
	if err != nil {
		return errorReply(err)
	}

	members := make([]string, 0, len(inv.args)-1)
	newMembers := 0
	for i := 1; i < len(inv.args); i++ {
		m := inv.argStr(i)
		if !e.Set.IsMember(m) {
			newMembers++
		}
		members = append(members, m)
	}
	if err := inv.e.ks.CanGrow(e.Set.Card(), newMembers); err != nil {
		inv.e.ks.RemoveIfEmpty(key, e)
		return errorReply(err)
	}

	added := e.Set.Add(members...)
	if added > 0 {
		inv.logSelf()
	} else {
		inv.e.ks.RemoveIfEmpty(key, e)
	}
	return resp.MakeInteger(int64(added))
}

func cmdSRem(inv *invocation) resp.Value {
	key := inv.argStr(0)

	e, err := inv.typed(key, keyspace.KindSet)
	if err != nil {
		return errorReply(err)
	}
	if e == nil {
		return resp.MakeInteger(0)
	}

	members := make([]string, 0, len(inv.args)-1)
	for i := 1; i < len(inv.args); i++ {
		members = append(members, inv.argStr(i))
	}

	removed := e.Set.Rem(members...)
	if removed > 0 {
		inv.e.ks.RemoveIfEmpty(key, e)
		inv.logSelf()
	}
	return resp.MakeInteger(int64(removed))
}

// cmdSPop removes random members. The chosen members are logged as an SREM,
// so replay removes exactly the members this call picked.
func cmdSPop(inv *invocation) resp.Value {
	key := inv.argStr(0)

	withCount := len(inv.args) == 2
	count := 1
	if withCount {
		n, perr := strconv.Atoi(inv.argStr(1))
		if perr != nil || n < 0 {
			return resp.MakeError("ERR value is out of range, must be positive")
		}
		count = n
	}

	e, err := inv.typed(key, keyspace.KindSet)
	if err != nil {
		return errorReply(err)
	}
	if e == nil || count == 0 {
		if withCount {
			return resp.MakeArray(nil)
		}
		return resp.MakeNilBulkString()
	}

	popped := e.Set.Pop(count)
	inv.e.ks.RemoveIfEmpty(key, e)

	if len(popped) > 0 {
		logArgs := make([][]byte, 0, len(popped)+1)
		logArgs = append(logArgs, []byte(key))
		for _, m := range popped {
			logArgs = append(logArgs, []byte(m))
		}
		inv.logOp("srem", logArgs...)
	}

	if !withCount {
		if len(popped) == 0 {
			return resp.MakeNilBulkString()
		}
		return resp.MakeBulkString(popped[0])
	}
	out := make([]resp.Value, len(popped))
	for i, m := range popped {
		out[i] = resp.MakeBulkString(m)
	}
	return resp.MakeArray(out)
}

func cmdSIsMember(inv *invocation) resp.Value {
	e, err := inv.typed(inv.argStr(0), keyspace.KindSet)
	if err != nil {
		return errorReply(err)
	}
	if e == nil || !e.Set.IsMember(inv.argStr(1)) {
		return resp.MakeInteger(0)
	}
	return resp.MakeInteger(1)
}

func cmdSCard(inv *invocation) resp.Value {
	e, err := inv.typed(inv.argStr(0), keyspace.KindSet)
	if err != nil {
		return errorReply(err)
	}
	if e == nil {
		return resp.MakeInteger(0)
	}
	return resp.MakeInteger(int64(e.Set.Card()))
}

func cmdSMembers(inv *invocation) resp.Value {
	e, err := inv.typed(inv.argStr(0), keyspace.KindSet)
	if err != nil {
		return errorReply(err)
	}
	if e == nil {
		return resp.MakeArray(nil)
	}
	return membersArray(e.Set.Members())
}

func cmdSRandMember(inv *invocation) resp.Value {
	e, err := inv.typed(inv.argStr(0), keyspace.KindSet)
	if err != nil {
		return errorReply(err)
	}

	if len(inv.args) == 1 {
		if e == nil {
			return resp.MakeNilBulkString()
		}
		picked := e.Set.RandMember(1)
		if len(picked) == 0 {
			return resp.MakeNilBulkString()
		}
		return resp.MakeBulkString(picked[0])
	}

	count, perr := strconv.Atoi(inv.argStr(1))
	if perr != nil {
		return notIntegerError()
	}
	if e == nil {
		return resp.MakeArray(nil)
	}
	return membersArray(e.Set.RandMember(count))
}

// setOperands resolves every argument to a set, treating absent keys as
// empty sets. A live key of another kind fails the whole command.
func setOperands(inv *invocation) ([]*keyspace.Set, error) {
	sets := make([]*keyspace.Set, 0, len(inv.args))
	for i := range inv.args {
		e, err := inv.typed(inv.argStr(i), keyspace.KindSet)
		if err != nil {
			return nil, err
		}
		if e == nil {
			sets = append(sets, keyspace.NewSet())
		} else {
			sets = append(sets, e.Set)
		}
	}
	return sets, nil
}

func cmdSInter(inv *invocation) resp.Value {
	sets, err := setOperands(inv)
	if err != nil {
		return errorReply(err)
	}
	return membersArray(sets[0].Inter(sets[1:]...))
}

func cmdSUnion(inv *invocation) resp.Value {
	sets, err := setOperands(inv)
	if err != nil {
		return errorReply(err)
	}
	return membersArray(sets[0].Union(sets[1:]...))
}

func cmdSDiff(inv *invocation) resp.Value {
	sets, err := setOperands(inv)
	if err != nil {
		return errorReply(err)
	}
	return membersArray(sets[0].Diff(sets[1:]...))
}

func membersArray(members []string) resp.Value {
	out := make([]resp.Value, len(members))
	for i, m := range members {
		out[i] = resp.MakeBulkString(m)
	}
	return resp.MakeArray(out)
}
