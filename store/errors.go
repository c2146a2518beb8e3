package store

import "errors"

// ErrAllocationFailure is wrapped by a KeyStore when it cannot satisfy an
// AllocateBytes or Allocate request (out of configured budget, key too
// long, address space exhausted, or the underlying allocator itself
// failing). The table surfaces it unchanged so callers can distinguish a
// capacity problem from a genuine invariant violation.
var ErrAllocationFailure = errors.New("store: allocation failure")
