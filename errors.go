package robinhash

import (
	"errors"

	"github.com/lineCode/robinhash/store"
)

// ErrAllocationFailure is returned (wrapped with context) whenever the
// configured KeyStore cannot satisfy an allocation, for a key or for a
// bucket slab. It is the same sentinel store.KeyStore implementations
// wrap, re-exported here so callers need only import this package.
var ErrAllocationFailure = store.ErrAllocationFailure

// ErrInvariantViolation is returned, and in a few places panicked with, when
// the engine detects a state that should be unreachable under correct use:
// a probe position with no bucket claiming it, an unrecognized capacity
// encoding, or a resize requested below the minimum shrink floor. It never
// signals a normal miss; a missing key is reported through a bool, not an
// error.
var ErrInvariantViolation = errors.New("robinhash: invariant violation")

// ErrLoadOutOfRange is returned by New when the requested load factor is
// not in the open interval (0, 1).
var ErrLoadOutOfRange = errors.New("robinhash: load factor out of range")
