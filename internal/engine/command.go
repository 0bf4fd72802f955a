package engine

import (
	"time"

	"github.com/duskdb/duskdb/internal/keyspace"
	"github.com/duskdb/duskdb/internal/resp"
)

// invocation carries one command through its handler: the parsed arguments,
// the execution instant and the resolved operations to append to the WAL.
// During replay the instant comes from the log record, so time-dependent
// decisions repeat exactly.
type invocation struct {
	e    *Engine
	name string
	args []resp.Value
	now  time.Time
	ops  [][]byte
}

func (inv *invocation) arg(i int) []byte {
	return inv.args[i].String
}

func (inv *invocation) argStr(i int) string {
	return string(inv.args[i].String)
}

// lookup fetches the live entry at key. A lazily expired entry is recorded
// as a deletion so replay removes it at the same point in the history.
func (inv *invocation) lookup(key string) (*keyspace.Entry, bool) {
	e, st := inv.e.ks.Lookup(key, inv.now)
	if st == keyspace.StatusExpired {
		inv.logOp("del", []byte(key))
	}
	return e, st == keyspace.StatusLive
}

// typed fetches the live entry at key and checks its kind.
// Returns (nil, nil) when the key is absent.
func (inv *invocation) typed(key string, kind keyspace.Kind) (*keyspace.Entry, error) {
	e, live := inv.lookup(key)
	if !live {
		return nil, nil
	}
	if e.Kind != kind {
		return nil, keyspace.ErrWrongType
	}
	return e, nil
}

// typedOrCreate fetches the entry at key, creating an empty container of
// the wanted kind when the key is absent.
func (inv *invocation) typedOrCreate(key string, kind keyspace.Kind) (*keyspace.Entry, error) {
	e, err := inv.typed(key, kind)
	if err != nil {
		return nil, err
	}
	if e == nil {
		e = inv.e.ks.Create(key, kind)
	}
	return e, nil
}

// logOp records a resolved operation for the WAL. No-op during replay or
// when the WAL is disabled.
func (inv *invocation) logOp(cmd string, args ...[]byte) {
	if inv.e.log == nil || inv.e.replaying {
		return
	}
	vals := make([]resp.Value, len(args))
	for i, a := range args {
		vals[i] = resp.MakeBulkBytes(a)
	}
	payload, err := resp.SerializeCommand(cmd, vals)
	if err != nil {
		// SerializeCommand only fails on writer errors, which a
		// bytes.Buffer never produces
		return
	}
	inv.ops = append(inv.ops, payload)
}

// logSelf records the command exactly as issued. Used by write commands
// whose effect is already deterministic from their arguments and the
// current state.
func (inv *invocation) logSelf() {
	if inv.e.log == nil || inv.e.replaying {
		return
	}
	payload, err := resp.SerializeCommand(inv.name, inv.args)
	if err != nil {
		return
	}
	inv.ops = append(inv.ops, payload)
}

type handlerFunc func(inv *invocation) resp.Value

// command describes one entry in the dispatch table. minArgs and maxArgs
// bound the argument count after the command name; maxArgs of -1 means
// unbounded.
type command struct {
	handler handlerFunc
	minArgs int
	maxArgs int
	write   bool
}

// commands is the dispatch table. It is populated in init rather than a
// composite literal because cmdCommand enumerates the table, and a literal
// referencing it would form an initialization cycle.
var commands map[string]command

func init() {
	commands = map[string]command{
		// strings
		"set":         {handler: cmdSet, minArgs: 2, maxArgs: -1, write: true},
		"get":         {handler: cmdGet, minArgs: 1, maxArgs: 1},
		"getset":      {handler: cmdGetSet, minArgs: 2, maxArgs: 2, write: true},
		"getrange":    {handler: cmdGetRange, minArgs: 3, maxArgs: 3},
		"append":      {handler: cmdAppend, minArgs: 2, maxArgs: 2, write: true},
		"strlen":      {handler: cmdStrLen, minArgs: 1, maxArgs: 1},
		"setnx":       {handler: cmdSetNX, minArgs: 2, maxArgs: 2, write: true},
		"mset":        {handler: cmdMSet, minArgs: 2, maxArgs: -1, write: true},
		"incr":        {handler: cmdIncr, minArgs: 1, maxArgs: 1, write: true},
		"decr":        {handler: cmdDecr, minArgs: 1, maxArgs: 1, write: true},
		"incrby":      {handler: cmdIncrBy, minArgs: 2, maxArgs: 2, write: true},
		"decrby":      {handler: cmdDecrBy, minArgs: 2, maxArgs: 2, write: true},
		"incrbyfloat": {handler: cmdIncrByFloat, minArgs: 2, maxArgs: 2, write: true},
		"setex":       {handler: cmdSetEx, minArgs: 3, maxArgs: 3, write: true},
		"setrange":    {handler: cmdSetRange, minArgs: 3, maxArgs: 3, write: true},

		// bit operations
		"setbit":   {handler: cmdSetBit, minArgs: 3, maxArgs: 3, write: true},
		"getbit":   {handler: cmdGetBit, minArgs: 2, maxArgs: 2},
		"bitcount": {handler: cmdBitCount, minArgs: 1, maxArgs: 3},
		"bitop":    {handler: cmdBitOp, minArgs: 3, maxArgs: -1, write: true},
		"bitpos":   {handler: cmdBitPos, minArgs: 2, maxArgs: 4},

		// keys
		"del":       {handler: cmdDel, minArgs: 1, maxArgs: -1, write: true},
		"exists":    {handler: cmdExists, minArgs: 1, maxArgs: -1},
		"type":      {handler: cmdType, minArgs: 1, maxArgs: 1},
		"keys":      {handler: cmdKeys, minArgs: 1, maxArgs: 1},
		"rename":    {handler: cmdRename, minArgs: 2, maxArgs: 2, write: true},
		"expire":    {handler: cmdExpire, minArgs: 2, maxArgs: 2, write: true},
		"pexpire":   {handler: cmdPExpire, minArgs: 2, maxArgs: 2, write: true},
		"expireat":  {handler: cmdExpireAt, minArgs: 2, maxArgs: 2, write: true},
		"pexpireat": {handler: cmdPExpireAt, minArgs: 2, maxArgs: 2, write: true},
		"ttl":       {handler: cmdTTL, minArgs: 1, maxArgs: 1},
		"pttl":      {handler: cmdPTTL, minArgs: 1, maxArgs: 1},
		"persist":   {handler: cmdPersist, minArgs: 1, maxArgs: 1, write: true},
		"dbsize":    {handler: cmdDBSize, minArgs: 0, maxArgs: 0},
		"flushdb":   {handler: cmdFlushDB, minArgs: 0, maxArgs: 0, write: true},

		// lists
		"lpush":   {handler: cmdLPush, minArgs: 2, maxArgs: -1, write: true},
		"rpush":   {handler: cmdRPush, minArgs: 2, maxArgs: -1, write: true},
		"lpushx":  {handler: cmdLPushX, minArgs: 2, maxArgs: -1, write: true},
		"rpushx":  {handler: cmdRPushX, minArgs: 2, maxArgs: -1, write: true},
		"lpop":    {handler: cmdLPop, minArgs: 1, maxArgs: 1, write: true},
		"rpop":    {handler: cmdRPop, minArgs: 1, maxArgs: 1, write: true},
		"llen":    {handler: cmdLLen, minArgs: 1, maxArgs: 1},
		"lindex":  {handler: cmdLIndex, minArgs: 2, maxArgs: 2},
		"lset":    {handler: cmdLSet, minArgs: 3, maxArgs: 3, write: true},
		"lrange":  {handler: cmdLRange, minArgs: 3, maxArgs: 3},
		"lrem":    {handler: cmdLRem, minArgs: 3, maxArgs: 3, write: true},
		"ltrim":   {handler: cmdLTrim, minArgs: 3, maxArgs: 3, write: true},
		"linsert": {handler: cmdLInsert, minArgs: 4, maxArgs: 4, write: true},

		// hashes
		"hset":    {handler: cmdHSet, minArgs: 3, maxArgs: -1, write: true},
		"hsetnx":  {handler: cmdHSetNX, minArgs: 3, maxArgs: 3, write: true},
		"hget":    {handler: cmdHGet, minArgs: 2, maxArgs: 2},
		"hdel":    {handler: cmdHDel, minArgs: 2, maxArgs: -1, write: true},
		"hexists": {handler: cmdHExists, minArgs: 2, maxArgs: 2},
		"hlen":    {handler: cmdHLen, minArgs: 1, maxArgs: 1},
		"hgetall": {handler: cmdHGetAll, minArgs: 1, maxArgs: 1},
		"hkeys":   {handler: cmdHKeys, minArgs: 1, maxArgs: 1},
		"hvals":   {handler: cmdHVals, minArgs: 1, maxArgs: 1},
		"hincrby": {handler: cmdHIncrBy, minArgs: 3, maxArgs: 3, write: true},

		// sets
		"sadd":        {handler: cmdSAdd, minArgs: 2, maxArgs: -1, write: true},
		"srem":        {handler: cmdSRem, minArgs: 2, maxArgs: -1, write: true},
		"spop":        {handler: cmdSPop, minArgs: 1, maxArgs: 2, write: true},
		"sismember":   {handler: cmdSIsMember, minArgs: 2, maxArgs: 2},
		"scard":       {handler: cmdSCard, minArgs: 1, maxArgs: 1},
		"smembers":    {handler: cmdSMembers, minArgs: 1, maxArgs: 1},
		"srandmember": {handler: cmdSRandMember, minArgs: 1, maxArgs: 2},
		"sinter":      {handler: cmdSInter, minArgs: 1, maxArgs: -1},
		"sunion":      {handler: cmdSUnion, minArgs: 1, maxArgs: -1},
		"sdiff":       {handler: cmdSDiff, minArgs: 1, maxArgs: -1},

		// sorted sets
		"zadd":             {handler: cmdZAdd, minArgs: 3, maxArgs: -1, write: true},
		"zrem":             {handler: cmdZRem, minArgs: 2, maxArgs: -1, write: true},
		"zscore":           {handler: cmdZScore, minArgs: 2, maxArgs: 2},
		"zincrby":          {handler: cmdZIncrBy, minArgs: 3, maxArgs: 3, write: true},
		"zcard":            {handler: cmdZCard, minArgs: 1, maxArgs: 1},
		"zrank":            {handler: cmdZRank, minArgs: 2, maxArgs: 2},
		"zrevrank":         {handler: cmdZRevRank, minArgs: 2, maxArgs: 2},
		"zrange":           {handler: cmdZRange, minArgs: 3, maxArgs: 4},
		"zrevrange":        {handler: cmdZRevRange, minArgs: 3, maxArgs: 4},
		"zrangebyscore":    {handler: cmdZRangeByScore, minArgs: 3, maxArgs: 7},
		"zcount":           {handler: cmdZCount, minArgs: 3, maxArgs: 3},
		"zremrangebyrank":  {handler: cmdZRemRangeByRank, minArgs: 3, maxArgs: 3, write: true},
		"zremrangebyscore": {handler: cmdZRemRangeByScore, minArgs: 3, maxArgs: 3, write: true},
		"zpopmin":          {handler: cmdZPopMin, minArgs: 1, maxArgs: 2, write: true},
		"zpopmax":          {handler: cmdZPopMax, minArgs: 1, maxArgs: 2, write: true},

		// server
		"ping":    {handler: cmdPing, minArgs: 0, maxArgs: 1},
		"echo":    {handler: cmdEcho, minArgs: 1, maxArgs: 1},
		"command": {handler: cmdCommand, minArgs: 0, maxArgs: -1},
		"save":    {handler: cmdSave, minArgs: 0, maxArgs: 0},
		"bgsave":  {handler: cmdBGSave, minArgs: 0, maxArgs: 0},
		"info":    {handler: cmdInfo, minArgs: 0, maxArgs: 1},
	}
}
