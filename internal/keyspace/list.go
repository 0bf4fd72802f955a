package keyspace

import "bytes"

// List is an ordered sequence of byte values stored under a single key.
// Push/pop at either end is O(1) amortised, index-based operations are O(N).
// The List itself is not synchronized; the command executor serializes access.
type List struct {
	items [][]byte
}

func NewList() *List {
	return &List{items: make([][]byte, 0)}
}

// LPush prepends values one at a time from left to right, so
// pushing a b c yields c b a at the head. Returns the new length.
func (l *List) LPush(values ...[]byte) int {
	newItems := make([][]byte, len(values)+len(l.items))
	for i, v := range values {
		newItems[len(values)-1-i] = cloneBytes(v)
	}
	copy(newItems[len(values):], l.items)
	l.items = newItems
	return len(l.items)
}

// RPush appends values in order. Returns the new length.
func (l *List) RPush(values ...[]byte) int {
	for _, v := range values {
		l.items = append(l.items, cloneBytes(v))
	}
	return len(l.items)
}

// LPop removes and returns the first element.
func (l *List) LPop() ([]byte, bool) {
	if len(l.items) == 0 {
		return nil, false
	}
	val := l.items[0]
	l.items = l.items[1:]
	return val, true
}

// RPop removes and returns the last element.
func (l *List) RPop() ([]byte, bool) {
	if len(l.items) == 0 {
		return nil, false
	}
	val := l.items[len(l.items)-1]
	l.items = l.items[:len(l.items)-1]
	return val, true
}

func (l *List) Len() int {
	return len(l.items)
}

// Index returns the element at index. Negative indices count from the tail.
func (l *List) Index(index int) ([]byte, bool) {
	index = l.normalize(index)
	if index < 0 || index >= len(l.items) {
		return nil, false
	}
	return cloneBytes(l.items[index]), true
}

// Set replaces the element at index.
func (l *List) Set(index int, value []byte) error {
	index = l.normalize(index)
	if index < 0 || index >= len(l.items) {
		return ErrIndexOutOfRange
	}
	l.items[index] = cloneBytes(value)
	return nil
}

// Range returns elements between start and stop inclusive.
// Out-of-range offsets are clamped to the actual list bounds.
func (l *List) Range(start, stop int) [][]byte {
	start = l.normalize(start)
	stop = l.normalize(stop)

	if start < 0 {
		start = 0
	}
	if stop >= len(l.items) {
		stop = len(l.items) - 1
	}
	if start > stop || start >= len(l.items) {
		return nil
	}

	result := make([][]byte, 0, stop-start+1)
	for _, v := range l.items[start : stop+1] {
		result = append(result, cloneBytes(v))
	}
	return result
}

// Insert places value before or after the first occurrence of pivot.
// Returns the new length, or -1 when the pivot is not found.
func (l *List) Insert(before bool, pivot, value []byte) int {
	for i, v := range l.items {
		if bytes.Equal(v, pivot) {
			pos := i
			if !before {
				pos = i + 1
			}
			l.items = append(l.items, nil)
			copy(l.items[pos+1:], l.items[pos:])
			l.items[pos] = cloneBytes(value)
			return len(l.items)
		}
	}
	return -1
}

// Rem removes occurrences of value. count > 0 removes from the head,
// count < 0 from the tail, count == 0 removes all. Returns the number removed.
func (l *List) Rem(count int, value []byte) int {
	removed := 0

	switch {
	case count >= 0:
		kept := l.items[:0]
		for _, v := range l.items {
			if bytes.Equal(v, value) && (count == 0 || removed < count) {
				removed++
				continue
			}
			kept = append(kept, v)
		}
		l.items = kept
	default:
		limit := -count
		for i := len(l.items) - 1; i >= 0 && removed < limit; i-- {
			if bytes.Equal(l.items[i], value) {
				l.items = append(l.items[:i], l.items[i+1:]...)
				removed++
			}
		}
	}
	return removed
}

// Trim keeps only elements between start and stop inclusive.
func (l *List) Trim(start, stop int) {
	start = l.normalize(start)
	stop = l.normalize(stop)

	if start < 0 {
		start = 0
	}
	if stop >= len(l.items) {
		stop = len(l.items) - 1
	}
	if start > stop || start >= len(l.items) {
		l.items = l.items[:0]
		return
	}
	l.items = append([][]byte(nil), l.items[start:stop+1]...)
}

// Clone returns a deep copy for snapshot isolation.
func (l *List) Clone() *List {
	items := make([][]byte, len(l.items))
	for i, v := range l.items {
		items[i] = cloneBytes(v)
	}
	return &List{items: items}
}

func (l *List) normalize(index int) int {
	if index < 0 {
		return len(l.items) + index
	}
	return index
}

func cloneBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}
