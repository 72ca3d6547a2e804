package dataflow

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Partitioner assigns keys to reduce partitions.
type Partitioner[K any] interface {
	NumPartitions() int
	PartitionOf(key K) int
}

// Integer is the key constraint of HashPartitioner.
type Integer interface {
	~int | ~int32 | ~int64 | ~uint32 | ~uint64
}

// HashPartitioner spreads integer keys by their xxhash.
type HashPartitioner[K Integer] struct {
	n int
}

func NewHashPartitioner[K Integer](numPartitions int) HashPartitioner[K] {
	if numPartitions < 1 {
		numPartitions = 1
	}
	return HashPartitioner[K]{n: numPartitions}
}

func (h HashPartitioner[K]) NumPartitions() int {
	return h.n
}

func (h HashPartitioner[K]) PartitionOf(key K) int {
	return int(HashInt64(int64(key)) % uint64(h.n))
}

// HashInt64 hashes the little-endian bytes of v.
func HashInt64(v int64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	return xxhash.Sum64(buf[:])
}
