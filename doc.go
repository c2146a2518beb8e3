// Package robinhash implements a byte-keyed, fixed-value-size Robin Hood
// hash table over a flat bucket array, using quadratic probing and a
// (leading-zero-count, 4-bit-mantissa) capacity encoding whose sizes are
// 7-12.5% apart. Growth roughly doubles the bucket count below a large-data
// threshold and adds 14-33% above it.
//
// Keys are referenced from buckets by an 8-byte token resolved through a
// pluggable store.KeyStore (see the arena package for the default
// in-process back-end), so the engine itself never owns key bytes
// directly. Values are fixed-size and live inline in the bucket slab.
//
// A Table is not safe for concurrent use. The funnel package provides a
// partitioned batching layer for workloads that want to pipeline a large
// number of operations through a single goroutine at a time.
package robinhash
