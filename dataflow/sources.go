package dataflow

import (
	"iter"
	"slices"
)

type sliceDataset[T any] struct {
	id    GUID
	parts [][]T
}

// Parallelize splits items into n contiguous partitions of nearly equal size.
func Parallelize[T any](items []T, n int) Dataset[T] {
	if n < 1 {
		n = 1
	}
	parts := make([][]T, n)
	for i := range n {
		start := i * len(items) / n
		end := (i + 1) * len(items) / n
		parts[i] = items[start:end]
	}
	return FromSlices(parts)
}

// FromSlices wraps already partitioned data. Partition i holds parts[i].
func FromSlices[T any](parts [][]T) Dataset[T] {
	return &sliceDataset[T]{id: NewGUID(), parts: parts}
}

func (d *sliceDataset[T]) ID() GUID {
	return d.id
}

func (d *sliceDataset[T]) Partitions() []Partition {
	return partitions(len(d.parts))
}

func (d *sliceDataset[T]) Compute(_ *TaskContext, p Partition) (iter.Seq[T], error) {
	if p.Index < 0 || p.Index >= len(d.parts) {
		return nil, ErrPartitionIndex
	}
	return slices.Values(d.parts[p.Index]), nil
}

func (d *sliceDataset[T]) StorageLevel() StorageLevel {
	return StorageNone
}
