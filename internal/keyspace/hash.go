package keyspace

import (
	"math"
	"strconv"
)

// Hash stores field to value pairs under a single key. Single-field
// operations are O(1). Not synchronized; the command executor serializes access.
type Hash struct {
	fields map[string][]byte
}

func NewHash() *Hash {
	return &Hash{fields: make(map[string][]byte)}
}

// Set sets field to value. Returns true if the field is new.
func (h *Hash) Set(field string, value []byte) bool {
	_, existed := h.fields[field]
	h.fields[field] = cloneBytes(value)
	return !existed
}

// SetNX sets field only if it does not exist. Returns true if set.
func (h *Hash) SetNX(field string, value []byte) bool {
	if _, exists := h.fields[field]; exists {
		return false
	}
	h.fields[field] = cloneBytes(value)
	return true
}

// Get returns the value of a field.
func (h *Hash) Get(field string) ([]byte, bool) {
	val, exists := h.fields[field]
	if !exists {
		return nil, false
	}
	return cloneBytes(val), true
}

// Del removes fields. Returns the number removed.
func (h *Hash) Del(fields ...string) int {
	removed := 0
	for _, f := range fields {
		if _, exists := h.fields[f]; exists {
			delete(h.fields, f)
			removed++
		}
	}
	return removed
}

func (h *Hash) Exists(field string) bool {
	_, exists := h.fields[field]
	return exists
}

func (h *Hash) Len() int {
	return len(h.fields)
}

// FieldValue pairs a hash field with its value.
type FieldValue struct {
	Field string
	Value []byte
}

// GetAll returns every field-value pair.
func (h *Hash) GetAll() []FieldValue {
	result := make([]FieldValue, 0, len(h.fields))
	for f, v := range h.fields {
		result = append(result, FieldValue{Field: f, Value: cloneBytes(v)})
	}
	return result
}

// Keys returns all field names.
func (h *Hash) Keys() []string {
	keys := make([]string, 0, len(h.fields))
	for f := range h.fields {
		keys = append(keys, f)
	}
	return keys
}

// Vals returns all values.
func (h *Hash) Vals() [][]byte {
	vals := make([][]byte, 0, len(h.fields))
	for _, v := range h.fields {
		vals = append(vals, cloneBytes(v))
	}
	return vals
}

// IncrBy adds delta to the integer value of field, creating it at zero
// when absent. Fails when the stored bytes are not an integer or the
// addition would wrap.
func (h *Hash) IncrBy(field string, delta int64) (int64, error) {
	var current int64
	if raw, exists := h.fields[field]; exists {
		parsed, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return 0, ErrValueNotInteger
		}
		current = parsed
	}

	if (delta > 0 && current > math.MaxInt64-delta) ||
		(delta < 0 && current < math.MinInt64-delta) {
		return 0, ErrOverflow
	}

	next := current + delta
	h.fields[field] = []byte(strconv.FormatInt(next, 10))
	return next, nil
}

// Clone returns a deep copy for snapshot isolation.
func (h *Hash) Clone() *Hash {
	fields := make(map[string][]byte, len(h.fields))
	for f, v := range h.fields {
		fields[f] = cloneBytes(v)
	}
	return &Hash{fields: fields}
}
