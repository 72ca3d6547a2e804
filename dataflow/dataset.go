// Package dataflow is a small in-process dataflow engine: lazy partitioned
// datasets, parallel materialization, hash redistribution and a block cache
// for persisted partitions.
package dataflow

import (
	"context"
	"iter"
	"slices"
	"unsafe"

	"github.com/google/uuid"
)

// GUID identifies a dataset. Cached blocks and shuffle outputs are keyed by it.
type GUID string

func NewGUID() GUID {
	return GUID(uuid.NewString())
}

// Partition describes one shard of a dataset.
type Partition struct {
	Index int
}

func partitions(n int) []Partition {
	ps := make([]Partition, n)
	for i := range ps {
		ps[i] = Partition{Index: i}
	}
	return ps
}

// Dataset is a lazy, partitioned sequence. Compute describes how to produce
// one partition; nothing runs until the engine materializes the dataset.
type Dataset[T any] interface {
	ID() GUID
	Partitions() []Partition
	Compute(tc *TaskContext, p Partition) (iter.Seq[T], error)
	StorageLevel() StorageLevel
}

// Pair is a keyed record, the unit of redistribution.
type Pair[K, V any] struct {
	Key   K
	Value V
}

// TaskContext is handed to Compute. It carries the cancellation context of
// the materialization request.
type TaskContext struct {
	ctx       context.Context
	engine    *Engine
	partition int
}

func (tc *TaskContext) Context() context.Context {
	return tc.ctx
}

func (tc *TaskContext) PartitionIndex() int {
	return tc.partition
}

// Sizer is implemented by records that know their memory footprint.
type Sizer interface {
	EstimatedMemUsage() int
}

func estimatedMemUsage[T any](items []T) int {
	total := 0
	for _, item := range items {
		if s, ok := any(item).(Sizer); ok {
			total += s.EstimatedMemUsage()
		} else {
			total += int(unsafe.Sizeof(item))
		}
	}
	return total
}

// Iterator returns partition p of ds. Persisted datasets are served from the
// block cache, and stored there after the first computation.
func Iterator[T any](tc *TaskContext, ds Dataset[T], p Partition) (iter.Seq[T], error) {
	if err := tc.ctx.Err(); err != nil {
		return nil, err
	}
	if ds.StorageLevel() == StorageNone {
		return ds.Compute(tc, p)
	}
	id := blockID{dataset: ds.ID(), partition: p.Index}
	if block, ok := tc.engine.cache.Get(id); ok {
		return slices.Values(block.([]T)), nil
	}
	seq, err := ds.Compute(tc, p)
	if err != nil {
		return nil, err
	}
	items := slices.Collect(seq)
	tc.engine.cache.Set(id, items, estimatedMemUsage(items))
	tc.engine.noteRetained(ds.ID(), len(ds.Partitions()))
	return slices.Values(items), nil
}
