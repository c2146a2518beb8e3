package robinhash

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/lineCode/robinhash/store"
)

// Hasher computes the 64-bit hash a Table uses to place key. Callers supply
// it explicitly to every operation rather than the table owning one, so the
// same table can be probed with whichever of the hashers package's
// implementations (or a caller's own) matches how it was built.
type Hasher func(key []byte) uint64

// upsertKind classifies where upsertNewKey landed.
type upsertKind int

const (
	resultEmpty upsertKind = iota
	resultDup
	resultPushDown
)

// upsertOutcome reports phase 1 of an insert/upsert: which bucket the new
// key claims, and - for resultPushDown - the probe depth the displaced
// occupant must resume its own search from.
type upsertOutcome struct {
	kind  upsertKind
	idx   uint64
	probe int
	err   error
}

// searchIdx walks the probe sequence for key, stopping at the first empty
// bucket (a true miss, since an empty bucket has never been claimed past
// this point) or at the bucket holding an equal key.
func (t *Table) searchIdx(hasher Hasher, key []byte) (uint64, bool) {
	h := hasher(key)
	for probe := 0; probe <= t.longestProbe; probe++ {
		idx := hashWithProbe(t.cap, h, probe)
		tok := t.slab.tokenAt(idx)
		if tok == store.TokenEmpty {
			return 0, false
		}
		if tok == store.TokenTombstone {
			continue
		}
		if bytes.Equal(t.store.Resolve(tok), key) {
			return idx, true
		}
	}
	return 0, false
}

// findProbe recovers the probe depth at which the record currently sitting
// at idx was placed, by re-hashing its own key. Every live bucket must have
// been reached by some probe no deeper than longestProbe; failing to find
// one is an invariant violation, not a possible outcome of correct use.
func (t *Table) findProbe(hasher Hasher, idx uint64) int {
	tok := t.slab.tokenAt(idx)
	h := hasher(t.store.Resolve(tok))
	for p := 0; p <= t.longestProbe; p++ {
		if hashWithProbe(t.cap, h, p) == idx {
			return p
		}
	}
	panic(fmt.Errorf("%w: no probe depth reaches occupied bucket %d", ErrInvariantViolation, idx))
}

func (t *Table) increaseProbeStat(probe int) {
	t.objcnt++
	if probe > t.longestProbe {
		t.longestProbe = probe
	}
	if probe < probeStatsSize {
		t.stats[probe]++
	} else {
		t.logger.Log("msg", "probe depth exceeds tracked stats window", "probe", probe, "table", t.instanceID)
	}
}

// upsertNewKey is phase 1 of insert/upsert: walk key's probe sequence
// looking for an empty slot, a duplicate, or a richer (lower-probe)
// occupant to evict per the Robin Hood creed. It never writes a bucket
// itself (it does update objcnt and the probe statistics, and may resize
// the table); the caller commits the outcome to the slab.
func (t *Table) upsertNewKey(hasher Hasher, key []byte, h uint64) upsertOutcome {
	probe := 0
	for {
		if probe > probeStatsSize {
			if err := t.sizeUp(hasher); err != nil {
				return upsertOutcome{err: err}
			}
			probe = 0
			continue
		}

		idx := hashWithProbe(t.cap, h, probe)
		tok := t.slab.tokenAt(idx)

		switch tok {
		case store.TokenEmpty:
			t.increaseProbeStat(probe)
			return upsertOutcome{kind: resultEmpty, idx: idx}
		case store.TokenTombstone:
			if dupIdx, found := t.scanPastTombstone(hasher, key, h, probe); found {
				return upsertOutcome{kind: resultDup, idx: dupIdx}
			}
			t.increaseProbeStat(probe)
			return upsertOutcome{kind: resultEmpty, idx: idx}
		}

		if bytes.Equal(t.store.Resolve(tok), key) {
			return upsertOutcome{kind: resultDup, idx: idx}
		}

		oldProbe := t.findProbe(hasher, idx)
		if probe > oldProbe {
			if probe > t.longestProbe {
				t.longestProbe = probe
			}
			t.stats[oldProbe]--
			t.stats[probe]++
			return upsertOutcome{kind: resultPushDown, idx: idx, probe: oldProbe + 1}
		}
		probe++
	}
}

// scanPastTombstone looks past a tombstone bucket for a live duplicate of
// key, since a tombstone does not terminate the probe sequence the way a
// true empty bucket does.
func (t *Table) scanPastTombstone(hasher Hasher, key []byte, h uint64, fromProbe int) (uint64, bool) {
	for p := fromProbe + 1; p <= t.longestProbe; p++ {
		idx := hashWithProbe(t.cap, h, p)
		tok := t.slab.tokenAt(idx)
		if tok == store.TokenEmpty || tok == store.TokenTombstone {
			continue
		}
		if bytes.Equal(t.store.Resolve(tok), key) {
			return idx, true
		}
	}
	return 0, false
}

// upsertPushDown is phase 2: drives the record in bucketCopy down its own
// probe sequence, starting at probe, until it lands in an empty or
// tombstone bucket - cascading further displacements as it goes. avoidIdx,
// when hasAvoid is set, is the bucket the caller just claimed for the new
// key and must never be reclaimed by the cascade. Returns whether the
// cascade triggered a resize, which invalidates every index the caller may
// have captured before calling this.
func (t *Table) upsertPushDown(hasher Hasher, bucketCopy []byte, probe int, avoidIdx uint64, hasAvoid bool) (resized bool, err error) {
	var visited [8]uint64
	visit := 0

	curTok := store.Token(binary.LittleEndian.Uint64(bucketCopy[:tokenSize]))
	h := hasher(t.store.Resolve(curTok))

	for {
		if probe > probeStatsSize {
			if err := t.sizeUp(hasher); err != nil {
				return resized, err
			}
			resized = true
			probe = 0
			continue
		}

		idx := hashWithProbe(t.cap, h, probe)

		if hasAvoid && idx == avoidIdx {
			probe++
			continue
		}

		if visit > 2 {
			skip := false
			if visit < 8 {
				for i := 0; i < visit; i++ {
					if visited[i] == idx {
						skip = true
						break
					}
				}
			} else {
				for i := visit + 1; i < visit+8; i++ {
					if visited[i%8] == idx {
						skip = true
						break
					}
				}
			}
			if skip {
				probe++
				continue
			}
		}
		visited[visit%8] = idx
		visit++

		occupantTok := t.slab.tokenAt(idx)
		if occupantTok == store.TokenEmpty || occupantTok == store.TokenTombstone {
			t.increaseProbeStat(probe)
			copy(t.slab.bucketBytes(idx), bucketCopy)
			return resized, nil
		}

		oldProbe := t.findProbe(hasher, idx)
		if probe > oldProbe {
			if probe > t.longestProbe {
				t.longestProbe = probe
			}
			t.stats[oldProbe]--
			t.stats[probe]++

			tmp := make([]byte, len(bucketCopy))
			copy(tmp, t.slab.bucketBytes(idx))
			copy(t.slab.bucketBytes(idx), bucketCopy)
			copy(bucketCopy, tmp)

			probe = oldProbe + 1
			curTok = store.Token(binary.LittleEndian.Uint64(bucketCopy[:tokenSize]))
			h = hasher(t.store.Resolve(curTok))
			continue
		}
		probe++
	}
}
