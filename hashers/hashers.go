// Package hashers provides the table's default robinhash.Hasher
// implementations: a fast, well-distributed 64-bit hash is all a Robin Hood
// probe sequence needs, and both of these are widely used, allocation-free
// choices for hashing arbitrary byte keys.
package hashers

import (
	"github.com/cespare/xxhash/v2"
	"github.com/segmentio/fasthash/fnv1a"

	"github.com/lineCode/robinhash"
)

// XXHash returns a Hasher backed by xxHash64. It is the recommended
// default: fast on both short and long keys, with good avalanche
// properties for the quadratic probe sequence to spread across.
func XXHash() robinhash.Hasher {
	return func(key []byte) uint64 {
		return xxhash.Sum64(key)
	}
}

// FNV1a returns a Hasher backed by the 64-bit FNV-1a variant. It is
// simpler and slightly slower than XXHash on longer keys, but is a
// reasonable choice for short, fixed-width keys (small integers, UUIDs)
// where xxHash's block-processing setup cost doesn't pay for itself.
func FNV1a() robinhash.Hasher {
	return func(key []byte) uint64 {
		return fnv1a.HashBytes64(key)
	}
}
