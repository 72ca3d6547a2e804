package dataflow

import (
	"context"
	"iter"
	"time"

	"github.com/juju/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// shuffleOutput holds the map side of a redistribution:
// buckets[mapPartition][reducePartition].
type shuffleOutput[K, V any] struct {
	buckets [][][]Pair[K, V]
}

type shuffledDataset[K, V any] struct {
	id          GUID
	parent      Dataset[Pair[K, V]]
	partitioner Partitioner[K]
}

// Redistribute moves every record of parent to the partition chosen for its
// key. It is a barrier: the first reduce task to run computes all parent
// partitions once, and the engine caches the buckets for the other reduce
// tasks. Within a reduce partition records keep parent partition order.
func Redistribute[K, V any](parent Dataset[Pair[K, V]], partitioner Partitioner[K]) Dataset[Pair[K, V]] {
	return &shuffledDataset[K, V]{id: NewGUID(), parent: parent, partitioner: partitioner}
}

func (d *shuffledDataset[K, V]) ID() GUID {
	return d.id
}

func (d *shuffledDataset[K, V]) Partitions() []Partition {
	return partitions(d.partitioner.NumPartitions())
}

func (d *shuffledDataset[K, V]) StorageLevel() StorageLevel {
	return StorageNone
}

func (d *shuffledDataset[K, V]) Compute(tc *TaskContext, p Partition) (iter.Seq[Pair[K, V]], error) {
	out, err := tc.engine.shuffleMapOutput(tc, d.id, func() (*shuffleCacheEntry, error) {
		return d.runMapSide(tc)
	})
	if err != nil {
		return nil, err
	}
	buckets := out.(*shuffleOutput[K, V]).buckets
	return func(yield func(Pair[K, V]) bool) {
		for _, m := range buckets {
			for _, kv := range m[p.Index] {
				if !yield(kv) {
					return
				}
			}
		}
	}, nil
}

func (d *shuffledDataset[K, V]) runMapSide(tc *TaskContext) (*shuffleCacheEntry, error) {
	e := tc.engine
	ctx, span := e.tracer.Start(tc.ctx, "dataflow.shuffle", trace.WithAttributes(
		attribute.String("dataset", string(d.id)),
		attribute.Int("reducePartitions", d.partitioner.NumPartitions())))
	defer span.End()
	start := time.Now()
	n := d.partitioner.NumPartitions()
	buckets := make([][][]Pair[K, V], len(d.parent.Partitions()))
	err := runTasks(ctx, e, d.parent, func(i int, items []Pair[K, V]) error {
		local := make([][]Pair[K, V], n)
		for _, kv := range items {
			r := d.partitioner.PartitionOf(kv.Key)
			if r < 0 || r >= n {
				return errors.Annotatef(ErrPartitionIndex, "partition %d of %d", r, n)
			}
			local[r] = append(local[r], kv)
		}
		buckets[i] = local
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	memUsage := 0
	for _, m := range buckets {
		for _, bucket := range m {
			memUsage += estimatedMemUsage(bucket)
		}
	}
	e.logger.Info("shuffle map side done",
		"dataset", d.id,
		"mapPartitions", len(buckets),
		"reducePartitions", n,
		"bytes", memUsage,
		"elapsed", time.Since(start))
	return &shuffleCacheEntry{output: &shuffleOutput[K, V]{buckets: buckets}, memUsage: memUsage}, nil
}

// mapOutputBlock is the cache slot of a shuffle's map output. Reduce
// partitions of a shuffled dataset are never cached, so it cannot collide.
const mapOutputBlock = -1

// shuffleMapOutput returns the map output of a shuffle, running compute at
// most once among concurrent callers. The output is kept in the block cache,
// so it counts against the cache limit and is recomputed after eviction.
//
// The shared run uses the context of the request that started it. If that
// request is canceled while the caller's own request is live, the caller
// runs the map side again.
func (e *Engine) shuffleMapOutput(tc *TaskContext, id GUID, compute func() (*shuffleCacheEntry, error)) (any, error) {
	block := blockID{dataset: id, partition: mapOutputBlock}
	for {
		if out, ok := e.cache.Get(block); ok {
			return out, nil
		}
		ran := false
		out, err, _ := e.shuffles.Do(string(id), func() (any, error) {
			ran = true
			if out, ok := e.cache.Get(block); ok {
				return out, nil
			}
			entry, err := compute()
			if err != nil {
				return nil, err
			}
			e.cache.Set(block, entry.output, entry.memUsage)
			return entry.output, nil
		})
		if ctxErr := tc.ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err != nil {
			if !ran && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
				e.logger.Debug("shared shuffle canceled by another request, retrying", "dataset", id)
				continue
			}
			return nil, err
		}
		return out, nil
	}
}

type shuffleCacheEntry struct {
	output   any
	memUsage int
}
