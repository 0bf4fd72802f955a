package keyspace

import "errors"

var (
	// ErrWrongType is returned when a command touches a key holding a
	// different kind of value than the command operates on
	ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

	// ErrValueNotInteger is returned when string bytes cannot be read as a base-10 integer
	ErrValueNotInteger = errors.New("value is not an integer or out of range")

	// ErrValueNotFloat is returned when string bytes cannot be read as a float
	ErrValueNotFloat = errors.New("value is not a valid float")

	// ErrOverflow is returned when a numeric operation would wrap around
	ErrOverflow = errors.New("increment or decrement would overflow")

	// ErrTooLarge is returned when a write would exceed a configured size limit.
	// The container is left untouched
	ErrTooLarge = errors.New("value exceeds configured size limit")

	// ErrNoSuchKey is returned by operations that require the key to exist
	ErrNoSuchKey = errors.New("no such key")

	// ErrIndexOutOfRange is returned by list index writes beyond the list bounds
	ErrIndexOutOfRange = errors.New("index out of range")
)
