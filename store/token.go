// Package store defines the external key-storage back-end contract used by
// the Robin Hood engine: a token is an opaque 64-bit length-reference to a
// key's bytes, and a KeyStore knows how to allocate, resolve and free them.
//
// The engine itself never inspects key bytes through anything but a Token;
// this keeps the probing/displacement machinery ignorant of how (or where)
// keys are actually stored, the same separation the arena package and any
// caller-supplied back-end are built against.
package store

// Token is a length-reference handle to a key's bytes, as written directly
// into a bucket slot. Two values are reserved and never returned by a
// conforming KeyStore.Allocate:
//
//	TokenEmpty     marks a bucket that has never held a record.
//	TokenTombstone marks a bucket whose record was deleted.
type Token uint64

const (
	// TokenEmpty marks a bucket slot that has never been occupied.
	TokenEmpty Token = 0
	// TokenTombstone marks a bucket slot whose record has been deleted.
	TokenTombstone Token = ^Token(0)
)

// KeyStore is the component A contract: a pluggable back-end for key bytes
// and for the raw buffers the bucket array itself is carved from. A
// KeyStore instance may back more than one Table; it is not safe for
// concurrent use, mirroring the Table's own single-writer contract.
type KeyStore interface {
	// AllocateBytes returns a zeroed buffer of n bytes. The Table uses this
	// for its bucket slab; it carries no notion of a key token.
	AllocateBytes(n int) ([]byte, error)

	// FreeBytes releases a buffer previously returned by AllocateBytes.
	FreeBytes(buf []byte)

	// Allocate copies key into back-end storage and returns a token that
	// resolves back to an equal byte slice until Deallocate is called on it.
	Allocate(key []byte) (Token, error)

	// Resolve returns the byte view referenced by tok. The returned slice
	// must not be retained past the next mutating call on the owning store.
	Resolve(tok Token) []byte

	// Deallocate releases the key storage referenced by tok. tok must not
	// be resolved or deallocated again afterwards.
	Deallocate(tok Token)

	// FromBytes re-derives the token for a slice previously returned by
	// Resolve from this same store, without a fresh allocation. The Table
	// does not call it: a resize copies each bucket's token into the new
	// slab unchanged.
	FromBytes(b []byte) Token
}
