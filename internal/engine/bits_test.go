package engine

import (
	"testing"
)

func TestSetBitGetBit(t *testing.T) {
	e := newTestEngine(t)

	assertInt(t, do(e, "SETBIT", "b", "7", "1"), 0)
	assertBulk(t, do(e, "GET", "b"), "\x01")
	assertInt(t, do(e, "GETBIT", "b", "7"), 1)
	assertInt(t, do(e, "GETBIT", "b", "6"), 0)

	// clearing reports the previous bit
	assertInt(t, do(e, "SETBIT", "b", "7", "0"), 1)
	assertInt(t, do(e, "GETBIT", "b", "7"), 0)

	// writing past the end grows the string with zero bytes
	assertInt(t, do(e, "SETBIT", "b", "15", "1"), 0)
	assertInt(t, do(e, "STRLEN", "b"), 2)

	// reads past the end and on missing keys are zero
	assertInt(t, do(e, "GETBIT", "b", "100"), 0)
	assertInt(t, do(e, "GETBIT", "nope", "0"), 0)

	assertError(t, do(e, "SETBIT", "b", "-1", "1"), "bit offset")
	assertError(t, do(e, "SETBIT", "b", "0", "2"), "bit")
	assertError(t, do(e, "GETBIT", "b", "-1"), "bit offset")
}

func TestBitCount(t *testing.T) {
	e := newTestEngine(t)

	assertOK(t, do(e, "SET", "s", "foobar"))
	assertInt(t, do(e, "BITCOUNT", "s"), 26)
	assertInt(t, do(e, "BITCOUNT", "s", "0", "0"), 4)
	assertInt(t, do(e, "BITCOUNT", "s", "1", "1"), 6)
	assertInt(t, do(e, "BITCOUNT", "s", "-1", "-1"), 4)
	assertInt(t, do(e, "BITCOUNT", "s", "2", "1"), 0)
	assertInt(t, do(e, "BITCOUNT", "missing"), 0)

	// a range needs both ends
	assertError(t, do(e, "BITCOUNT", "s", "0"), "syntax error")
}

func TestBitOp(t *testing.T) {
	e := newTestEngine(t)

	assertOK(t, do(e, "SET", "a", "abc"))
	assertOK(t, do(e, "SET", "b", "abd"))

	assertInt(t, do(e, "BITOP", "XOR", "x", "a", "b"), 3)
	assertBulk(t, do(e, "GET", "x"), "\x00\x00\x07")

	// shorter operands are zero-extended to the longest input
	assertOK(t, do(e, "SET", "short", "\xff"))
	assertOK(t, do(e, "SET", "long", "\xff\xff"))
	assertInt(t, do(e, "BITOP", "AND", "anded", "short", "long"), 2)
	assertBulk(t, do(e, "GET", "anded"), "\xff\x00")
	assertInt(t, do(e, "BITOP", "OR", "ored", "short", "long"), 2)
	assertBulk(t, do(e, "GET", "ored"), "\xff\xff")

	assertInt(t, do(e, "BITOP", "NOT", "inverted", "short"), 1)
	assertBulk(t, do(e, "GET", "inverted"), "\x00")

	// NOT of a missing key writes nothing
	assertInt(t, do(e, "BITOP", "NOT", "dest", "missing"), 0)
	assertInt(t, do(e, "EXISTS", "dest"), 0)

	assertError(t, do(e, "BITOP", "NOT", "dest", "a", "b"), "single source key")
	assertError(t, do(e, "BITOP", "NAND", "dest", "a"), "syntax error")

	assertInt(t, do(e, "LPUSH", "list", "x"), 1)
	assertError(t, do(e, "BITOP", "AND", "dest", "a", "list"), "WRONGTYPE")
}

func TestBitPos(t *testing.T) {
	e := newTestEngine(t)

	assertOK(t, do(e, "SET", "k", "\xff\xf0\x00"))
	assertInt(t, do(e, "BITPOS", "k", "0"), 12)
	assertInt(t, do(e, "BITPOS", "k", "1"), 0)

	assertOK(t, do(e, "SET", "k2", "\x00\x0f"))
	assertInt(t, do(e, "BITPOS", "k2", "1"), 12)
	// positions stay absolute when a byte range is given
	assertInt(t, do(e, "BITPOS", "k2", "1", "1", "1"), 12)
	assertInt(t, do(e, "BITPOS", "k2", "1", "0", "0"), -1)

	assertInt(t, do(e, "BITPOS", "missing", "0"), 0)
	assertInt(t, do(e, "BITPOS", "missing", "1"), -1)

	assertError(t, do(e, "BITPOS", "k", "2"), "must be 1 or 0")
}

func TestSetRange(t *testing.T) {
	e := newTestEngine(t)

	assertInt(t, do(e, "SETRANGE", "fresh", "0", "Hello"), 5)
	assertBulk(t, do(e, "GET", "fresh"), "Hello")

	assertOK(t, do(e, "SET", "k", "Hello World"))
	assertInt(t, do(e, "SETRANGE", "k", "6", "Redis"), 11)
	assertBulk(t, do(e, "GET", "k"), "Hello Redis")

	// a gap past the end is zero-padded
	assertInt(t, do(e, "SETRANGE", "padded", "5", "x"), 6)
	assertBulk(t, do(e, "GET", "padded"), "\x00\x00\x00\x00\x00x")

	// empty value on a missing key creates nothing
	assertInt(t, do(e, "SETRANGE", "void", "0", ""), 0)
	assertInt(t, do(e, "EXISTS", "void"), 0)

	assertError(t, do(e, "SETRANGE", "k", "-1", "x"), "offset is out of range")
}

func TestSetEx(t *testing.T) {
	e := newTestEngine(t)

	assertOK(t, do(e, "SETEX", "k", "100", "v"))
	assertBulk(t, do(e, "GET", "k"), "v")
	ttl := do(e, "TTL", "k")
	assertInt(t, ttl, 100)

	assertError(t, do(e, "SETEX", "k", "0", "v"), "invalid expire time")
	assertError(t, do(e, "SETEX", "k", "-5", "v"), "invalid expire time")
	// the failed writes left the previous value alone
	assertBulk(t, do(e, "GET", "k"), "v")
}
