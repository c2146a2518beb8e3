package robinhash

import (
	"encoding/binary"

	"github.com/lineCode/robinhash/store"
)

// tokenSize is the width in bytes of the store.Token every bucket starts
// with; the value payload immediately follows it.
const tokenSize = 8

// bucketSlab is the flat byte array backing every bucket in a table: each
// slot is tokenSize bytes of store.Token followed by valSize bytes of
// value. It is a plain buffer obtained from the table's store.KeyStore, not
// the key arena itself - component C owns this memory directly and frees
// it on Close or resize.
type bucketSlab struct {
	data    []byte
	valSize int
	stride  int
}

func newBucketSlab(ks store.KeyStore, capacity uint64, valSize int) (*bucketSlab, error) {
	stride := tokenSize + valSize
	data, err := ks.AllocateBytes(int(capacity) * stride)
	if err != nil {
		return nil, err
	}
	return &bucketSlab{data: data, valSize: valSize, stride: stride}, nil
}

func (b *bucketSlab) offset(idx uint64) uint64 {
	return idx * uint64(b.stride)
}

func (b *bucketSlab) tokenAt(idx uint64) store.Token {
	off := b.offset(idx)
	return store.Token(binary.LittleEndian.Uint64(b.data[off : off+tokenSize]))
}

func (b *bucketSlab) setTokenAt(idx uint64, tok store.Token) {
	off := b.offset(idx)
	binary.LittleEndian.PutUint64(b.data[off:off+tokenSize], uint64(tok))
}

func (b *bucketSlab) valueAt(idx uint64) []byte {
	off := b.offset(idx) + tokenSize
	return b.data[off : off+uint64(b.valSize)]
}

// bucketBytes returns the whole slot (token and value together) so it can
// be copied or swapped atomically as one unit during push-down and
// back-shift compaction.
func (b *bucketSlab) bucketBytes(idx uint64) []byte {
	off := b.offset(idx)
	return b.data[off : off+uint64(b.stride)]
}
