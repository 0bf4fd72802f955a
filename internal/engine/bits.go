package engine

import (
	"math/bits"
	"strconv"
	"strings"

	"github.com/duskdb/duskdb/internal/keyspace"
	"github.com/duskdb/duskdb/internal/resp"
)

// Bit positions address the string as an array of bits from left to right:
// bit 0 is the most significant bit of the first byte, bit 8 the most
// significant bit of the second, and so on.

const maxBitOffset = 1<<32 - 1

func parseBitOffset(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 || n > maxBitOffset {
		return 0, false
	}
	return n, true
}

// cmdSetBit sets or clears one bit, growing the string with zero bytes as
// needed. The key is created even when the write leaves every bit clear.
func cmdSetBit(inv *invocation) resp.Value {
	key := inv.argStr(0)

	offset, ok := parseBitOffset(inv.argStr(1))
	if !ok {
		return resp.MakeError("ERR bit offset is not an integer or out of range")
	}
	bit, err := strconv.Atoi(inv.argStr(2))
	if err != nil || (bit != 0 && bit != 1) {
		return resp.MakeError("ERR bit is not an integer or out of range")
	}

	e, terr := inv.typed(key, keyspace.KindString)
	if terr != nil {
		return errorReply(terr)
	}

	needed := int(offset/8) + 1
	if e == nil || needed > len(e.Str) {
		if err := inv.e.ks.CheckValueSize(needed); err != nil {
			return errorReply(err)
		}
	}
	if e == nil {
		e = inv.e.ks.Create(key, keyspace.KindString)
	}
	if len(e.Str) < needed {
		grown := make([]byte, needed)
		copy(grown, e.Str)
		e.Str = grown
	}

	mask := byte(0x80) >> (offset % 8)
	old := int64(0)
	if e.Str[offset/8]&mask != 0 {
		old = 1
	}
	if bit == 1 {
		e.Str[offset/8] |= mask
	} else {
		e.Str[offset/8] &^= mask
	}

	inv.logSelf()
	return resp.MakeInteger(old)
}

// cmdGetBit reads one bit. Offsets past the end, and missing keys, read as 0.
func cmdGetBit(inv *invocation) resp.Value {
	offset, ok := parseBitOffset(inv.argStr(1))
	if !ok {
		return resp.MakeError("ERR bit offset is not an integer or out of range")
	}

	e, err := inv.typed(inv.argStr(0), keyspace.KindString)
	if err != nil {
		return errorReply(err)
	}
	if e == nil || int(offset/8) >= len(e.Str) {
		return resp.MakeInteger(0)
	}

	mask := byte(0x80) >> (offset % 8)
	if e.Str[offset/8]&mask != 0 {
		return resp.MakeInteger(1)
	}
	return resp.MakeInteger(0)
}

// byteRange resolves an inclusive [start, end] byte interval against a
// string of length n, with negative offsets counting from the end.
func byteRange(start, end, n int) (int, int, bool) {
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
	if start > end || n == 0 {
		return 0, 0, false
	}
	return start, end, true
}

// cmdBitCount implements BITCOUNT key [start end] over byte offsets.
func cmdBitCount(inv *invocation) resp.Value {
	if len(inv.args) == 2 {
		return syntaxError()
	}

	start, end := 0, -1
	if len(inv.args) == 3 {
		var err1, err2 error
		start, err1 = strconv.Atoi(inv.argStr(1))
		end, err2 = strconv.Atoi(inv.argStr(2))
		if err1 != nil || err2 != nil {
			return notIntegerError()
		}
	}

	e, err := inv.typed(inv.argStr(0), keyspace.KindString)
	if err != nil {
		return errorReply(err)
	}
	if e == nil {
		return resp.MakeInteger(0)
	}

	start, end, ok := byteRange(start, end, len(e.Str))
	if !ok {
		return resp.MakeInteger(0)
	}

	count := 0
	for _, b := range e.Str[start : end+1] {
		count += bits.OnesCount8(b)
	}
	return resp.MakeInteger(int64(count))
}

// cmdBitOp implements BITOP AND|OR|XOR destkey key... and BITOP NOT destkey
// key. Shorter operands are treated as zero-padded to the longest input;
// the result is stored at destkey with no expiry.
func cmdBitOp(inv *invocation) resp.Value {
	op := strings.ToUpper(inv.argStr(0))
	dest := inv.argStr(1)
	keys := inv.args[2:]

	switch op {
	case "AND", "OR", "XOR":
	case "NOT":
		if len(keys) > 1 {
			return resp.MakeError("ERR BITOP NOT must be called with a single source key.")
		}
	default:
		return syntaxError()
	}

	sources := make([][]byte, len(keys))
	maxLen := 0
	for i := range keys {
		e, err := inv.typed(string(keys[i].String), keyspace.KindString)
		if err != nil {
			return errorReply(err)
		}
		if e != nil {
			sources[i] = e.Str
			if len(e.Str) > maxLen {
				maxLen = len(e.Str)
			}
		}
	}

	if err := inv.e.ks.CheckValueSize(maxLen); err != nil {
		return errorReply(err)
	}

	out := make([]byte, maxLen)
	if op == "NOT" {
		if sources[0] == nil {
			return resp.MakeInteger(0)
		}
		for i, b := range sources[0] {
			out[i] = ^b
		}
	} else {
		copy(out, sources[0])
		for _, src := range sources[1:] {
			for i := 0; i < maxLen; i++ {
				var b byte
				if i < len(src) {
					b = src[i]
				}
				switch op {
				case "AND":
					out[i] &= b
				case "OR":
					out[i] |= b
				case "XOR":
					out[i] ^= b
				}
			}
		}
	}

	if err := inv.e.ks.SetString(dest, out, 0); err != nil {
		return errorReply(err)
	}
	inv.logSelf()
	return resp.MakeInteger(int64(len(out)))
}

// cmdBitPos returns the absolute position of the first bit equal to the
// requested value within the optional [start end] byte range, or -1.
func cmdBitPos(inv *invocation) resp.Value {
	bit, err := strconv.Atoi(inv.argStr(1))
	if err != nil {
		return notIntegerError()
	}
	if bit != 0 && bit != 1 {
		return resp.MakeError("ERR The bit argument must be 1 or 0.")
	}

	start, end := 0, -1
	if len(inv.args) >= 3 {
		if start, err = strconv.Atoi(inv.argStr(2)); err != nil {
			return notIntegerError()
		}
	}
	if len(inv.args) == 4 {
		if end, err = strconv.Atoi(inv.argStr(3)); err != nil {
			return notIntegerError()
		}
	}

	e, terr := inv.typed(inv.argStr(0), keyspace.KindString)
	if terr != nil {
		return errorReply(terr)
	}
	if e == nil {
		if bit == 0 {
			return resp.MakeInteger(0)
		}
		return resp.MakeInteger(-1)
	}

	start, end, ok := byteRange(start, end, len(e.Str))
	if !ok {
		return resp.MakeInteger(-1)
	}

	want := byte(0)
	if bit == 1 {
		want = 1
	}
	for i := start; i <= end; i++ {
		for j := 0; j < 8; j++ {
			got := (e.Str[i] >> (7 - j)) & 1
			if got == want {
				return resp.MakeInteger(int64(i*8 + j))
			}
		}
	}
	return resp.MakeInteger(-1)
}
