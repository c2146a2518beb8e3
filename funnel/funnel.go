// Package funnel batches point operations against a robinhash.Table into
// per-partition FIFO queues, draining each partition once it crosses a
// configured byte budget (or on an explicit Flush), so bulk workloads pay
// for cache-miss latency in a pipelined batch instead of once per call.
// Partitions are assigned by the top bits of each operation's own key
// hash, independent of the table's bucket count, so repartitioning never
// needs to track a resize.
package funnel

import (
	"math/bits"

	"golang.org/x/sys/cpu"

	"github.com/zyedidia/generic/queue"

	"github.com/lineCode/robinhash"
)

type opKind int

const (
	opInsert opKind = iota
	opUpsert
	opGet
	opDelete
)

type pendingOp struct {
	kind   opKind
	hasher robinhash.Hasher
	key    []byte
	value  []byte

	onInsert func(error)
	onUpsert func(value []byte, isDuplicate bool, err error)
	onGet    func(value []byte, found bool)
	onDelete func(value []byte, found bool)
}

const (
	// defaultPartitionHint is how many partitions a Funnel fans out over
	// when WithPartitions is not given; rounded up to a power of two like
	// any other hint.
	defaultPartitionHint = 16
	// defaultPartitionCapacityBytes is the byte budget (sum of queued key
	// and value lengths) a partition accumulates before Flush is called
	// on it automatically.
	defaultPartitionCapacityBytes = 4096
)

type partition struct {
	queue    *queue.FIFOQueue[pendingOp]
	byteSize int
	_        cpu.CacheLinePad
}

// Funnel is a partitioned batching layer in front of a robinhash.Table.
// Every enqueue method has exactly the same semantics as the matching
// Table method, just deferred until that partition's queue is flushed.
type Funnel struct {
	table         *robinhash.Table
	partitions    []partition
	partitionBits uint
	partitionCap  int

	partitionHint int
}

// Option configures a Funnel at construction time.
type Option func(*Funnel)

// WithPartitions sets how many partitions the funnel fans out over. hint
// is rounded up to the next power of two; 0 or 1 collapses to a single
// partition. The default is 16.
func WithPartitions(hint int) Option {
	return func(f *Funnel) { f.partitionHint = hint }
}

// WithPartitionCapacityBytes overrides the per-partition byte budget that
// triggers an automatic Flush. The default is 4096 bytes.
func WithPartitionCapacityBytes(n int) Option {
	return func(f *Funnel) { f.partitionCap = n }
}

// New creates a Funnel in front of table. Operation ordering for keys
// assigned to the same partition is always preserved; across partitions it
// is not.
func New(table *robinhash.Table, opts ...Option) *Funnel {
	f := &Funnel{
		table:         table,
		partitionHint: defaultPartitionHint,
		partitionCap:  defaultPartitionCapacityBytes,
	}
	for _, opt := range opts {
		opt(f)
	}

	rounded := nextPowerOf2(uint64(max(f.partitionHint, 1)))
	f.partitionBits = uint(bits.Len64(rounded) - 1)

	f.partitions = make([]partition, 1<<f.partitionBits)
	for i := range f.partitions {
		f.partitions[i].queue = queue.New[pendingOp]()
	}
	return f
}

func (f *Funnel) partitionOf(hasher robinhash.Hasher, key []byte) int {
	if f.partitionBits == 0 {
		return 0
	}
	return int(hasher(key) >> (64 - f.partitionBits))
}

// Insert enqueues an Insert(key, value) call, invoking onDone with its
// eventual result once the partition is flushed. onDone may be nil.
func (f *Funnel) Insert(hasher robinhash.Hasher, key, value []byte, onDone func(error)) {
	f.enqueue(hasher, key, pendingOp{kind: opInsert, hasher: hasher, key: key, value: value, onInsert: onDone}, len(key)+len(value))
}

// Upsert enqueues an Upsert(key) call, invoking onDone with its eventual
// result once the partition is flushed. onDone may be nil.
func (f *Funnel) Upsert(hasher robinhash.Hasher, key []byte, onDone func(value []byte, isDuplicate bool, err error)) {
	f.enqueue(hasher, key, pendingOp{kind: opUpsert, hasher: hasher, key: key, onUpsert: onDone}, len(key))
}

// Get enqueues a Get(key) call, invoking onDone with its eventual result
// once the partition is flushed. onDone may be nil.
func (f *Funnel) Get(hasher robinhash.Hasher, key []byte, onDone func(value []byte, found bool)) {
	f.enqueue(hasher, key, pendingOp{kind: opGet, hasher: hasher, key: key, onGet: onDone}, len(key))
}

// Delete enqueues a Delete(key) call, invoking onDone with its eventual
// result once the partition is flushed. onDone may be nil.
func (f *Funnel) Delete(hasher robinhash.Hasher, key []byte, onDone func(value []byte, found bool)) {
	f.enqueue(hasher, key, pendingOp{kind: opDelete, hasher: hasher, key: key, onDelete: onDone}, len(key))
}

func (f *Funnel) enqueue(hasher robinhash.Hasher, key []byte, op pendingOp, weight int) {
	p := f.partitionOf(hasher, key)
	part := &f.partitions[p]
	part.queue.Enqueue(op)
	part.byteSize += weight
	if part.byteSize >= f.partitionCap {
		f.Flush(p)
	}
}

// Flush drains partition p's queue against the table in enqueue order,
// prefetching each operation's first-probe bucket one step ahead of
// processing the one before it.
func (f *Funnel) Flush(p int) {
	part := &f.partitions[p]
	if part.queue.Empty() {
		return
	}

	for !part.queue.Empty() {
		op := part.queue.Dequeue()
		if !part.queue.Empty() {
			next := part.queue.Peek()
			f.table.PrefetchFirstProbe(next.hasher, next.key)
		}
		f.apply(op)
	}
	part.byteSize = 0
}

func (f *Funnel) apply(op pendingOp) {
	switch op.kind {
	case opInsert:
		err := f.table.Insert(op.hasher, op.key, op.value)
		if op.onInsert != nil {
			op.onInsert(err)
		}
	case opUpsert:
		value, isDuplicate, err := f.table.Upsert(op.hasher, op.key)
		if op.onUpsert != nil {
			op.onUpsert(value, isDuplicate, err)
		}
	case opGet:
		value, found := f.table.Get(op.hasher, op.key)
		if op.onGet != nil {
			op.onGet(value, found)
		}
	case opDelete:
		value, found := f.table.Delete(op.hasher, op.key)
		if op.onDelete != nil {
			op.onDelete(value, found)
		}
	}
}

// FlushAll drains every partition's queue, in partition-index order.
func (f *Funnel) FlushAll() {
	for i := range f.partitions {
		f.Flush(i)
	}
}

// Close flushes every pending operation. The Funnel must not be used
// afterwards.
func (f *Funnel) Close() {
	f.FlushAll()
}
