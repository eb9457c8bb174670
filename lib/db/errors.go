package db

import (
	"errors"

	"github.com/cedarkv/cedar/lib/object"
)

// ErrWrongType is returned when a key holds a value of the wrong type for
// the requested operation.
var ErrWrongType = object.ErrWrongType

var (
	// ErrNoSuchKey is returned by operations that require the key to exist.
	ErrNoSuchKey = errors.New("no such key")

	// ErrWrongArgCount is returned when a variadic operation receives an
	// argument list of invalid shape.
	ErrWrongArgCount = errors.New("wrong number of arguments")

	// ErrNotInteger is returned when a string value cannot be interpreted
	// as a 64 bit integer.
	ErrNotInteger = errors.New("value is not an integer or out of range")

	// ErrNotFloat is returned when a string value cannot be interpreted as
	// a float.
	ErrNotFloat = errors.New("value is not a valid float")

	// ErrOverflow is returned when an arithmetic operation would leave the
	// 64 bit integer range.
	ErrOverflow = errors.New("increment or decrement would overflow")

	// ErrOutOfRange is returned for index or offset arguments outside the
	// accepted range.
	ErrOutOfRange = errors.New("index out of range")

	// ErrInvalidDBIndex is returned when selecting a database outside the
	// configured range.
	ErrInvalidDBIndex = errors.New("DB index is out of range")

	// ErrNaN is returned when a sorted set operation would store a NaN
	// score.
	ErrNaN = errors.New("resulting score is not a number (NaN)")

	// ErrMemoryLimit is returned by write operations once the tracked
	// usage exceeds the configured ceiling.
	ErrMemoryLimit = errors.New("command not allowed when used memory > 'maxmemory'")

	// ErrSaveInProgress is returned when a background save is requested
	// while one is already running.
	ErrSaveInProgress = errors.New("background save already in progress")
)
