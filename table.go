package robinhash

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/lineCode/robinhash/internal/rhlog"
	"github.com/lineCode/robinhash/store"
)

const (
	// probeStatsSize is the width of a table's per-probe-depth histogram,
	// and the probe depth past which a pending insert forces a resize
	// rather than keep searching - mirrors the original engine's fixed
	// stats window.
	probeStatsSize = 64

	// defaultLargeDataThreshold is the bucket-slab byte size above which
	// sizeUp throttles growth to 14-33% instead of roughly doubling.
	defaultLargeDataThreshold = 1 << 30
)

// Table is a fixed-value-size, byte-keyed Robin Hood hash table using
// quadratic probing over a non-power-of-two bucket count. It is not safe
// for concurrent use; callers needing batched or prefetch-friendly access
// from a single goroutine at a time should look at the funnel package.
type Table struct {
	store store.KeyStore
	slab  *bucketSlab
	cap   capacity

	objcnt     uint64
	objcntHigh uint64
	objcntLow  uint64

	largeDataThreshold uint64
	longestProbe       int
	valSize            int
	stats              [probeStatsSize]uint32

	instanceID uuid.UUID
	logger     rhlog.Logger
}

// Option configures a Table at construction time.
type Option func(*Table)

// WithLargeDataThreshold overrides the bucket-slab byte size above which
// growth is throttled. The default is 1GiB.
func WithLargeDataThreshold(n uint64) Option {
	return func(t *Table) { t.largeDataThreshold = n }
}

// WithLogger directs resize and large-probe diagnostics to l instead of
// discarding them. l may be any go-kit/log Logger.
func WithLogger(l rhlog.Logger) Option {
	return func(t *Table) { t.logger = l }
}

// WithInstanceID overrides the table's identifier attached to every log
// line it emits, useful for telling multiple tables apart in shared logs.
func WithInstanceID(id uuid.UUID) Option {
	return func(t *Table) { t.instanceID = id }
}

// New creates a Table sized to hold numObjects records at the given load
// factor (the table starts with at least numObjects/load buckets; growth
// is triggered once more than 80% of the buckets are occupied), storing
// fixed valSize-byte values. Keys are stored through ks;
// see the arena package for the default back-end.
func New(ks store.KeyStore, numObjects uint64, load float64, valSize int, opts ...Option) (*Table, error) {
	if load <= 0.0 || load >= 1.0 {
		return nil, fmt.Errorf("%w: %f", ErrLoadOutOfRange, load)
	}
	if valSize < 0 {
		return nil, fmt.Errorf("%w: negative value size %d", ErrInvariantViolation, valSize)
	}

	want := uint64(float64(numObjects) / load)
	clz, ms4b := encodeCapacity(want)
	cap := newCapacity(clz, ms4b)

	t := &Table{
		store:              ks,
		cap:                cap,
		largeDataThreshold: defaultLargeDataThreshold,
		valSize:            valSize,
		instanceID:         uuid.New(),
		logger:             rhlog.NopLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}

	slab, err := newBucketSlab(ks, cap.size(), valSize)
	if err != nil {
		return nil, errors.Wrap(err, "robinhash: allocate initial bucket slab")
	}
	t.slab = slab
	t.objcntHigh = cap.size() * 8 / 10
	t.objcntLow = cap.size() * 2 / 10
	return t, nil
}

// Close deallocates every live key through the table's KeyStore and
// releases the bucket slab. The table must not be used afterwards.
func (t *Table) Close() {
	size := t.cap.size()
	for idx := uint64(0); idx < size; idx++ {
		tok := t.slab.tokenAt(idx)
		if tok != store.TokenEmpty && tok != store.TokenTombstone {
			t.store.Deallocate(tok)
		}
	}
	t.store.FreeBytes(t.slab.data)
	t.slab = nil
}

// Len returns the number of live records.
func (t *Table) Len() int { return int(t.objcnt) }

// Capacity returns the current bucket count.
func (t *Table) Capacity() uint64 { return t.cap.size() }

// ValSize returns the fixed value size the table was constructed with.
func (t *Table) ValSize() int { return t.valSize }

// Get looks up key, hashed with hasher, and returns a view of its value.
// The returned slice aliases the bucket slab directly and is only valid
// until the next mutating call on the table.
func (t *Table) Get(hasher Hasher, key []byte) ([]byte, bool) {
	idx, ok := t.searchIdx(hasher, key)
	if !ok {
		return nil, false
	}
	return t.slab.valueAt(idx), true
}

// Insert adds key with value, which must be exactly ValSize() bytes long.
// If key is already present its value is overwritten. A resize is
// triggered first if the table has crossed its high watermark.
func (t *Table) Insert(hasher Hasher, key, value []byte) error {
	if len(value) != t.valSize {
		return fmt.Errorf("%w: value of %d bytes does not match table value size %d",
			ErrInvariantViolation, len(value), t.valSize)
	}
	if t.objcnt > t.objcntHigh {
		if err := t.sizeUp(hasher); err != nil {
			return err
		}
	}

	h := hasher(key)
	outcome := t.upsertNewKey(hasher, key, h)
	if outcome.err != nil {
		return outcome.err
	}

	switch outcome.kind {
	case resultDup:
		copy(t.slab.valueAt(outcome.idx), value)
		return nil

	case resultEmpty:
		tok, err := t.store.Allocate(key)
		if err != nil {
			return errors.Wrap(err, "robinhash: allocate key")
		}
		t.slab.setTokenAt(outcome.idx, tok)
		copy(t.slab.valueAt(outcome.idx), value)
		return nil

	case resultPushDown:
		bucketCopy := make([]byte, t.slab.stride)
		copy(bucketCopy, t.slab.bucketBytes(outcome.idx))

		tok, err := t.store.Allocate(key)
		if err != nil {
			return errors.Wrap(err, "robinhash: allocate key")
		}
		t.slab.setTokenAt(outcome.idx, tok)
		copy(t.slab.valueAt(outcome.idx), value)

		_, err = t.upsertPushDown(hasher, bucketCopy, outcome.probe, outcome.idx, true)
		return err
	}
	return fmt.Errorf("%w: unreachable upsert outcome", ErrInvariantViolation)
}

// Upsert returns a writable view of key's value slot, allocating one if the
// key is not yet present (with its value left zeroed) and reporting
// whether it was already there. The returned slice is only valid until the
// next mutating call, and - if the cascade it triggers resizes the table -
// is re-resolved with a fresh Get before being handed back, since every
// prior index is invalidated by a resize.
func (t *Table) Upsert(hasher Hasher, key []byte) ([]byte, bool, error) {
	if t.objcnt > t.objcntHigh {
		if err := t.sizeUp(hasher); err != nil {
			return nil, false, err
		}
	}

	h := hasher(key)
	outcome := t.upsertNewKey(hasher, key, h)
	if outcome.err != nil {
		return nil, false, outcome.err
	}

	switch outcome.kind {
	case resultDup:
		return t.slab.valueAt(outcome.idx), true, nil

	case resultEmpty:
		tok, err := t.store.Allocate(key)
		if err != nil {
			return nil, false, errors.Wrap(err, "robinhash: allocate key")
		}
		t.slab.setTokenAt(outcome.idx, tok)
		clear(t.slab.valueAt(outcome.idx))
		return t.slab.valueAt(outcome.idx), false, nil

	case resultPushDown:
		bucketCopy := make([]byte, t.slab.stride)
		copy(bucketCopy, t.slab.bucketBytes(outcome.idx))

		tok, err := t.store.Allocate(key)
		if err != nil {
			return nil, false, errors.Wrap(err, "robinhash: allocate key")
		}
		t.slab.setTokenAt(outcome.idx, tok)
		clear(t.slab.valueAt(outcome.idx))
		claimedIdx := outcome.idx

		resized, err := t.upsertPushDown(hasher, bucketCopy, outcome.probe, outcome.idx, true)
		if err != nil {
			return nil, false, err
		}
		if resized {
			value, ok := t.Get(hasher, key)
			if !ok {
				return nil, false, fmt.Errorf("%w: key vanished across resize during upsert", ErrInvariantViolation)
			}
			return value, false, nil
		}
		return t.slab.valueAt(claimedIdx), false, nil
	}
	return nil, false, fmt.Errorf("%w: unreachable upsert outcome", ErrInvariantViolation)
}

// Delete removes key if present, returning a copy of its value (since the
// bucket it lived in may be immediately reused by back-shift compaction)
// and whether it was found. A shrink is attempted first if the table has
// dropped below its low watermark.
func (t *Table) Delete(hasher Hasher, key []byte) ([]byte, bool) {
	if t.objcnt < t.objcntLow && t.objcnt > minShrinkCapacity {
		if err := t.sizeDown(hasher); err != nil {
			t.logger.Log("msg", "size-down attempt failed, continuing at current capacity",
				"err", err, "table", t.instanceID)
		}
	}

	idx, ok := t.searchIdx(hasher, key)
	if !ok {
		return nil, false
	}

	mask := t.cap.mask()
	ms4b := uint64(t.cap.ms4b)

	t.objcnt--
	recordProbe := t.findProbe(hasher, idx)
	if recordProbe < probeStatsSize {
		t.stats[recordProbe]--
	}
	if recordProbe == t.longestProbe && t.stats[recordProbe] == 0 {
		t.longestProbe--
	}

	for recordProbe > 0 {
		premodIdx := ceilDiv(16*idx, ms4b)
		candidates := 1
		if ((premodIdx+1)&mask)*ms4b>>4 == idx {
			candidates = 2
		}

		shifted := false
		for probe := t.longestProbe - 1; probe > 0 && !shifted; probe-- {
			for c := 0; c < candidates; c++ {
				candidateIdx := ((premodIdx + uint64(c) + 2*uint64((probe+1)*(probe+1)) - 2*uint64(probe*probe)) & mask) * ms4b >> 4
				candTok := t.slab.tokenAt(candidateIdx)
				if candTok == store.TokenEmpty || candTok == store.TokenTombstone {
					continue
				}
				candH := hasher(t.store.Resolve(candTok))
				if hashWithProbe(t.cap, candH, probe+1) != candidateIdx || hashWithProbe(t.cap, candH, probe) != idx {
					continue
				}

				if probe+1 < probeStatsSize {
					t.stats[probe+1]--
				}
				t.stats[probe]++
				if probe+1 == t.longestProbe && t.stats[probe+1] == 0 {
					t.longestProbe--
				}

				tmp := make([]byte, t.slab.stride)
				copy(tmp, t.slab.bucketBytes(idx))
				copy(t.slab.bucketBytes(idx), t.slab.bucketBytes(candidateIdx))
				copy(t.slab.bucketBytes(candidateIdx), tmp)

				idx = candidateIdx
				recordProbe--
				shifted = true
				break
			}
		}
		if !shifted {
			break
		}
	}

	tok := t.slab.tokenAt(idx)
	value := make([]byte, t.valSize)
	copy(value, t.slab.valueAt(idx))
	t.store.Deallocate(tok)
	t.slab.setTokenAt(idx, store.TokenTombstone)
	return value, true
}

// Iterate calls fn for every live record in bucket order, stopping early if
// fn returns false.
func (t *Table) Iterate(fn func(key, value []byte) bool) {
	size := t.cap.size()
	for idx := uint64(0); idx < size; idx++ {
		tok := t.slab.tokenAt(idx)
		if tok == store.TokenEmpty || tok == store.TokenTombstone {
			continue
		}
		if !fn(t.store.Resolve(tok), t.slab.valueAt(idx)) {
			return
		}
	}
}

// WriteStats writes one line per non-empty probe-depth bucket in the
// table's histogram, in increasing probe-depth order.
func (t *Table) WriteStats(w io.Writer) error {
	for depth, count := range t.stats {
		if count == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "probe %02d: %d\n", depth, count); err != nil {
			return err
		}
	}
	return nil
}

// PrefetchFirstProbe touches the bucket key would land in at probe 0,
// warming its cache line ahead of a subsequent call that would otherwise
// pay for the miss inline. Go exposes no hardware prefetch instruction, so
// this is a plain speculative read, not a guarantee; the funnel package
// uses it to amortize random-access latency across a batch.
func (t *Table) PrefetchFirstProbe(hasher Hasher, key []byte) {
	idx := hashWithProbe(t.cap, hasher(key), 0)
	_ = t.slab.tokenAt(idx)
}
