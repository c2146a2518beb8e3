package robinhash

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/lineCode/robinhash/store"
)

// minShrinkCapacity is the bucket count below which sizeDown refuses to
// shrink further; a table this small is never worth the resize cost.
const minShrinkCapacity = 16

// sizeUp grows the table. Below largeDataThreshold bytes the step roughly
// doubles the bucket count; above it, growth is throttled to 14-33% to
// avoid the latency spike of copying a very large table all at once.
func (t *Table) sizeUp(hasher Hasher) error {
	bucketBytes := t.cap.size() * uint64(tokenSize+t.valSize)

	var newCLZ, newMS4B uint8
	if bucketBytes >= t.largeDataThreshold {
		switch t.cap.ms4b {
		case 8:
			newMS4B, newCLZ = 10, t.cap.clz
		case 9, 10:
			newMS4B, newCLZ = 12, t.cap.clz
		case 11, 12:
			newMS4B, newCLZ = 14, t.cap.clz
		case 13, 14:
			newMS4B, newCLZ = 8, t.cap.clz-1
		case 15:
			newMS4B, newCLZ = 10, t.cap.clz-1
		default:
			panic(fmt.Errorf("%w: unrecognized ms4b %d", ErrInvariantViolation, t.cap.ms4b))
		}
	} else {
		newMS4B = 8
		if t.cap.ms4b == 8 {
			newCLZ = t.cap.clz - 1
		} else {
			newCLZ = t.cap.clz - 2
		}
	}
	return t.doResize(hasher, newCapacity(newCLZ, newMS4B), "grow")
}

// sizeDown shrinks the table. It is only ever attempted above
// minShrinkCapacity, by the objcntLow watermark check in Delete.
func (t *Table) sizeDown(hasher Hasher) error {
	if t.cap.size() <= minShrinkCapacity {
		panic(fmt.Errorf("%w: cannot shrink below %d buckets", ErrInvariantViolation, minShrinkCapacity))
	}

	var newCLZ, newMS4B uint8
	switch t.cap.ms4b {
	case 8, 9, 10, 11:
		newMS4B, newCLZ = 8, t.cap.clz+1
	case 12, 13, 14, 15:
		newMS4B, newCLZ = 12, t.cap.clz+1
	default:
		panic(fmt.Errorf("%w: unrecognized ms4b %d", ErrInvariantViolation, t.cap.ms4b))
	}
	return t.doResize(hasher, newCapacity(newCLZ, newMS4B), "shrink")
}

// doResize allocates a fresh slab at newCap, re-homes every live record
// into it via the same push-down cascade an ordinary insert uses, and
// releases the old slab. A failure to allocate the new slab leaves the
// table untouched in its old shape.
func (t *Table) doResize(hasher Hasher, newCap capacity, direction string) error {
	newSlab, err := newBucketSlab(t.store, newCap.size(), t.valSize)
	if err != nil {
		return errors.Wrap(err, "robinhash: allocate resized bucket slab")
	}

	oldSlab := t.slab
	oldCapSize := t.cap.size()

	t.cap = newCap
	t.objcnt = 0
	t.objcntHigh = newCap.size() * 8 / 10
	t.objcntLow = newCap.size() * 2 / 10
	t.longestProbe = 0
	for i := range t.stats {
		t.stats[i] = 0
	}
	t.slab = newSlab

	t.logger.Log("msg", "resize", "direction", direction, "table", t.instanceID,
		"old_capacity", oldCapSize, "new_capacity", newCap.size())

	for idx := uint64(0); idx < oldCapSize; idx++ {
		tok := oldSlab.tokenAt(idx)
		if tok == store.TokenEmpty || tok == store.TokenTombstone {
			continue
		}
		bucketCopy := make([]byte, oldSlab.stride)
		copy(bucketCopy, oldSlab.bucketBytes(idx))
		if _, err := t.upsertPushDown(hasher, bucketCopy, 0, 0, false); err != nil {
			return errors.Wrap(err, "robinhash: re-home record during resize")
		}
	}

	t.store.FreeBytes(oldSlab.data)
	return nil
}
