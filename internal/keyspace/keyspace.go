// Package keyspace implements the in-memory key to typed-value mapping and
// the five value containers. A key holds exactly one value of one kind;
// commands against the wrong kind fail without touching the stored value.
// Expiry is checked on every lookup, so an expired entry is never observable
// even before the background sweep reaches it.
//
// The keyspace performs no locking of its own: the command executor
// serializes every mutation, and snapshot copies are taken under the same
// serialization.
package keyspace

import (
	"math"
	"strconv"
	"time"
)

// Entry is a key's value with its kind tag and optional absolute expiry.
// Exactly one of the container fields is set, matching Kind.
type Entry struct {
	Kind     Kind
	Str      []byte
	List     *List
	Hash     *Hash
	Set      *Set
	ZSet     *SortedSet
	ExpireAt int64 // unix nanoseconds; 0 means the key never expires
}

// Expired reports whether the entry's expiry has passed. The deadline
// instant itself is already expired.
func (e *Entry) Expired(now time.Time) bool {
	return e.ExpireAt != 0 && now.UnixNano() >= e.ExpireAt
}

// Len returns the number of elements in the entry's container
// (byte length for strings).
func (e *Entry) Len() int {
	switch e.Kind {
	case KindString:
		return len(e.Str)
	case KindList:
		return e.List.Len()
	case KindHash:
		return e.Hash.Len()
	case KindSet:
		return e.Set.Card()
	case KindZSet:
		return e.ZSet.Card()
	}
	return 0
}

// Clone returns a deep copy. Used to build point-in-time snapshot views.
func (e *Entry) Clone() *Entry {
	cloned := &Entry{Kind: e.Kind, ExpireAt: e.ExpireAt}
	switch e.Kind {
	case KindString:
		cloned.Str = cloneBytes(e.Str)
	case KindList:
		cloned.List = e.List.Clone()
	case KindHash:
		cloned.Hash = e.Hash.Clone()
	case KindSet:
		cloned.Set = e.Set.Clone()
	case KindZSet:
		cloned.ZSet = e.ZSet.Clone()
	}
	return cloned
}

// IncrBy reinterprets a string entry as a base-10 integer and adds delta.
// Returns the new value, or ErrValueNotInteger / ErrOverflow.
func (e *Entry) IncrBy(delta int64) (int64, error) {
	var current int64
	if len(e.Str) > 0 {
		parsed, err := strconv.ParseInt(string(e.Str), 10, 64)
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
	e.Str = []byte(strconv.FormatInt(next, 10))
	return next, nil
}

// IncrByFloat reinterprets a string entry as a float and adds delta.
func (e *Entry) IncrByFloat(delta float64) (float64, error) {
	var current float64
	if len(e.Str) > 0 {
		parsed, err := strconv.ParseFloat(string(e.Str), 64)
		if err != nil {
			return 0, ErrValueNotFloat
		}
		current = parsed
	}

	next := current + delta
	if math.IsNaN(next) || math.IsInf(next, 0) {
		return 0, ErrOverflow
	}
	e.Str = []byte(strconv.FormatFloat(next, 'f', -1, 64))
	return next, nil
}

// LookupStatus describes the outcome of a Lookup.
type LookupStatus int

const (
	// StatusAbsent means no entry exists for the key
	StatusAbsent LookupStatus = iota
	// StatusLive means the entry exists and has not expired
	StatusLive
	// StatusExpired means the entry had expired; it has been removed and the
	// caller must log the deletion so replay reaches the same end state
	StatusExpired
)

// Keyspace is the single source of truth for the key to entry mapping.
type Keyspace struct {
	entries           map[string]*Entry
	maxValueBytes     int
	maxCollectionSize int
}

// New creates an empty keyspace. Zero limits disable the respective bound.
func New(maxValueBytes, maxCollectionSize int) *Keyspace {
	return &Keyspace{
		entries:           make(map[string]*Entry),
		maxValueBytes:     maxValueBytes,
		maxCollectionSize: maxCollectionSize,
	}
}

// Lookup returns the live entry for key. An entry whose expiry has passed is
// removed and reported as StatusExpired so the caller can record the
// deletion; every command path observing StatusExpired behaves exactly as if
// the key were absent.
func (k *Keyspace) Lookup(key string, now time.Time) (*Entry, LookupStatus) {
	e, ok := k.entries[key]
	if !ok {
		return nil, StatusAbsent
	}
	if e.Expired(now) {
		delete(k.entries, key)
		return nil, StatusExpired
	}
	return e, StatusLive
}

// SetString replaces or creates the entry at key with a string value,
// clearing any previous value regardless of its kind.
func (k *Keyspace) SetString(key string, value []byte, expireAt int64) error {
	if err := k.CheckValueSize(len(value)); err != nil {
		return err
	}
	k.entries[key] = &Entry{Kind: KindString, Str: cloneBytes(value), ExpireAt: expireAt}
	return nil
}

// Create inserts an empty entry of the given kind at key, replacing any
// previous entry, and returns it.
func (k *Keyspace) Create(key string, kind Kind) *Entry {
	e := &Entry{Kind: kind}
	switch kind {
	case KindList:
		e.List = NewList()
	case KindHash:
		e.Hash = NewHash()
	case KindSet:
		e.Set = NewSet()
	case KindZSet:
		e.ZSet = NewSortedSet()
	}
	k.entries[key] = e
	return e
}

// SetEntry installs an entry directly. Used by snapshot restore.
func (k *Keyspace) SetEntry(key string, e *Entry) {
	k.entries[key] = e
}

// Delete removes the entry at key. Returns whether a live entry was removed.
func (k *Keyspace) Delete(key string, now time.Time) bool {
	e, ok := k.entries[key]
	if !ok {
		return false
	}
	delete(k.entries, key)
	return !e.Expired(now)
}

// RemoveIfEmpty drops the key when its collection has no elements left.
// Redis semantics: empty aggregates do not linger in the keyspace.
func (k *Keyspace) RemoveIfEmpty(key string, e *Entry) {
	if e.Kind != KindString && e.Len() == 0 {
		delete(k.entries, key)
	}
}

// KindOf returns the kind of the live value at key.
func (k *Keyspace) KindOf(key string, now time.Time) (Kind, LookupStatus) {
	e, st := k.Lookup(key, now)
	if st != StatusLive {
		return 0, st
	}
	return e.Kind, StatusLive
}

// IsLive reports whether key exists and has not expired at the given
// instant. It never mutates the keyspace, so introspection commands can
// share the expiry logic without triggering deletions.
func (k *Keyspace) IsLive(key string, now time.Time) bool {
	e, ok := k.entries[key]
	return ok && !e.Expired(now)
}

// SetExpiry sets an absolute expiry on an existing live key.
func (k *Keyspace) SetExpiry(key string, at int64, now time.Time) bool {
	e, st := k.Lookup(key, now)
	if st != StatusLive {
		return false
	}
	e.ExpireAt = at
	return true
}

// ClearExpiry makes a volatile key persistent.
// Returns false when the key is absent or had no expiry.
func (k *Keyspace) ClearExpiry(key string, now time.Time) bool {
	e, st := k.Lookup(key, now)
	if st != StatusLive || e.ExpireAt == 0 {
		return false
	}
	e.ExpireAt = 0
	return true
}

// Keys returns all live keys.
func (k *Keyspace) Keys(now time.Time) []string {
	keys := make([]string, 0, len(k.entries))
	for key, e := range k.entries {
		if !e.Expired(now) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Len returns the number of live keys.
func (k *Keyspace) Len(now time.Time) int {
	count := 0
	for _, e := range k.entries {
		if !e.Expired(now) {
			count++
		}
	}
	return count
}

// Clear removes every entry.
func (k *Keyspace) Clear() {
	k.entries = make(map[string]*Entry)
}

// SampleVolatile inspects up to limit entries that carry an expiry and
// returns the keys among them that are already dead. Deletion is left to the
// caller so it flows through the logged application path. Go's randomized
// map iteration provides the sampling.
func (k *Keyspace) SampleVolatile(limit int, now time.Time) (expired []string, sampled int) {
	for key, e := range k.entries {
		if e.ExpireAt == 0 {
			continue
		}
		sampled++
		if e.Expired(now) {
			expired = append(expired, key)
		}
		if sampled >= limit {
			break
		}
	}
	return expired, sampled
}

// ForEach visits every live entry. Return false from fn to stop early.
func (k *Keyspace) ForEach(now time.Time, fn func(key string, e *Entry) bool) {
	for key, e := range k.entries {
		if e.Expired(now) {
			continue
		}
		if !fn(key, e) {
			return
		}
	}
}

// CheckValueSize enforces the configured per-value byte limit.
func (k *Keyspace) CheckValueSize(n int) error {
	if k.maxValueBytes > 0 && n > k.maxValueBytes {
		return ErrTooLarge
	}
	return nil
}

// CanGrow enforces the configured collection element limit before a
// mutation adds elements, so a rejected write never partially applies.
func (k *Keyspace) CanGrow(current, adding int) error {
	if k.maxCollectionSize > 0 && current+adding > k.maxCollectionSize {
		return ErrTooLarge
	}
	return nil
}
