// Package edgerdd implements the partitioned edge collection: one columnar
// graph.EdgePartition per shard, described lazily on top of a dataflow engine.
package edgerdd

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/juju/errors"

	"github.com/XinhuiTian/spark/dataflow"
	"github.com/XinhuiTian/spark/graph"
)

// Entry is one shard of a collection.
type Entry[ED any] struct {
	PID       graph.PartitionID
	Partition *graph.EdgePartition[ED]
}

func (e Entry[ED]) EstimatedMemUsage() int {
	return e.Partition.EstimatedMemUsage() + 16
}

// Partitioning records how edges were assigned to shards. A zero value means
// the assignment is unknown.
type Partitioning struct {
	Strategy      PartitionStrategy
	NumPartitions int
}

func (p Partitioning) Known() bool {
	return p.Strategy != nil
}

func (p Partitioning) String() string {
	if !p.Known() {
		return "unknown"
	}
	return fmt.Sprintf("%s/%d", p.Strategy.Name(), p.NumPartitions)
}

// EdgeRDD is an immutable, partitioned collection of edges. Every method
// returns a new collection and computes nothing. It is itself a
// dataflow.Dataset of edges, so it can be collected or fed to other datasets.
type EdgeRDD[ED any] struct {
	id            dataflow.GUID
	partitionsRDD dataflow.Dataset[Entry[ED]]
	partitioning  Partitioning
	targetLevel   dataflow.StorageLevel
}

var _ dataflow.Dataset[graph.Edge[int]] = (*EdgeRDD[int])(nil)

type Option func(*settings)

type settings struct {
	partitioning Partitioning
	targetLevel  dataflow.StorageLevel
}

// WithPartitioning declares that the input shards were produced by strategy.
func WithPartitioning(strategy PartitionStrategy, numPartitions int) Option {
	return func(s *settings) {
		s.partitioning = Partitioning{Strategy: strategy, NumPartitions: numPartitions}
	}
}

// WithStorageLevel sets the level Persist will use.
func WithStorageLevel(level dataflow.StorageLevel) Option {
	return func(s *settings) { s.targetLevel = level }
}

func newEdgeRDD[ED any](parts dataflow.Dataset[Entry[ED]], p Partitioning, level dataflow.StorageLevel) *EdgeRDD[ED] {
	return &EdgeRDD[ED]{
		id:            dataflow.NewGUID(),
		partitionsRDD: parts,
		partitioning:  p,
		targetLevel:   level,
	}
}

func applyOptions(opts []Option) settings {
	s := settings{targetLevel: dataflow.MemoryOnly}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// buildEntries packs the edges of one shard into a single partition.
func buildEntries[ED any](tc *dataflow.TaskContext, edges iter.Seq[graph.Edge[ED]]) (iter.Seq[Entry[ED]], error) {
	b := graph.NewEdgePartitionBuilder[ED](64)
	for e := range edges {
		if err := b.Add(e.SrcID, e.DstID, e.Attr); err != nil {
			return nil, errors.Trace(err)
		}
	}
	p, err := b.ToEdgePartition()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return slices.Values([]Entry[ED]{{PID: graph.PartitionID(tc.PartitionIndex()), Partition: p}}), nil
}

// FromEdges builds a collection with one partition per shard of edges.
func FromEdges[ED any](edges dataflow.Dataset[graph.Edge[ED]], opts ...Option) *EdgeRDD[ED] {
	s := applyOptions(opts)
	return newEdgeRDD(dataflow.MapPartitions(edges, buildEntries[ED]), s.partitioning, s.targetLevel)
}

// FromEdgePartitions wraps prebuilt partitions. Each shard must hold exactly one entry.
func FromEdgePartitions[ED any](ds dataflow.Dataset[Entry[ED]], opts ...Option) *EdgeRDD[ED] {
	s := applyOptions(opts)
	return newEdgeRDD(ds, s.partitioning, s.targetLevel)
}

func (r *EdgeRDD[ED]) ID() dataflow.GUID {
	return r.id
}

func (r *EdgeRDD[ED]) Partitions() []dataflow.Partition {
	return r.partitionsRDD.Partitions()
}

// Compute yields the edges of shard p in (src, dst) order.
func (r *EdgeRDD[ED]) Compute(tc *dataflow.TaskContext, p dataflow.Partition) (iter.Seq[graph.Edge[ED]], error) {
	entries, err := dataflow.Iterator(tc, r.partitionsRDD, p)
	if err != nil {
		return nil, err
	}
	return func(yield func(graph.Edge[ED]) bool) {
		for e := range entries {
			for edge := range e.Partition.Iterator() {
				if !yield(edge) {
					return
				}
			}
		}
	}, nil
}

// StorageLevel of the edge view. Retention happens on the partitions
// dataset, see Persist.
func (r *EdgeRDD[ED]) StorageLevel() dataflow.StorageLevel {
	return dataflow.StorageNone
}

// PartitionsRDD gives direct access to the (pid, partition) pairs.
func (r *EdgeRDD[ED]) PartitionsRDD() dataflow.Dataset[Entry[ED]] {
	return r.partitionsRDD
}

func (r *EdgeRDD[ED]) Partitioning() Partitioning {
	return r.partitioning
}

func (r *EdgeRDD[ED]) NumPartitions() int {
	return len(r.partitionsRDD.Partitions())
}

// mapEntries runs f on every shard, keeping the partitioning.
func mapEntries[ED, ED2 any](r *EdgeRDD[ED], f func(*graph.EdgePartition[ED]) (*graph.EdgePartition[ED2], error)) *EdgeRDD[ED2] {
	parts := dataflow.MapPartitions(r.partitionsRDD,
		func(_ *dataflow.TaskContext, in iter.Seq[Entry[ED]]) (iter.Seq[Entry[ED2]], error) {
			var out []Entry[ED2]
			for e := range in {
				p, err := f(e.Partition)
				if err != nil {
					return nil, err
				}
				out = append(out, Entry[ED2]{PID: e.PID, Partition: p})
			}
			return slices.Values(out), nil
		})
	return newEdgeRDD(parts, r.partitioning, r.targetLevel)
}

// MapValues replaces every attribute with f(edge). A failing f fails the
// materialization with a *graph.MappingError.
func MapValues[ED, ED2 any](r *EdgeRDD[ED], f func(graph.Edge[ED]) (ED2, error)) *EdgeRDD[ED2] {
	return mapEntries(r, func(p *graph.EdgePartition[ED]) (*graph.EdgePartition[ED2], error) {
		return graph.MapValues(p, f)
	})
}

// Reverse swaps the direction of every edge. Shards are not renumbered, so
// the recorded strategy becomes its mirror image.
func (r *EdgeRDD[ED]) Reverse() *EdgeRDD[ED] {
	rev := mapEntries(r, func(p *graph.EdgePartition[ED]) (*graph.EdgePartition[ED], error) {
		return p.Reverse(), nil
	})
	rev.partitioning.Strategy = reverseStrategy(r.partitioning.Strategy)
	return rev
}

func (r *EdgeRDD[ED]) Filter(pred func(graph.Edge[ED]) bool) *EdgeRDD[ED] {
	return mapEntries(r, func(p *graph.EdgePartition[ED]) (*graph.EdgePartition[ED], error) {
		return p.Filter(pred), nil
	})
}

// GroupEdges merges the attributes of parallel edges within each shard.
// Parallel edges are only merged fully when the partitioning colocates them.
func (r *EdgeRDD[ED]) GroupEdges(merge func(a, b ED) ED) *EdgeRDD[ED] {
	return mapEntries(r, func(p *graph.EdgePartition[ED]) (*graph.EdgePartition[ED], error) {
		return p.GroupEdges(merge), nil
	})
}

// InnerJoin joins two collections shard by shard on (src, dst). Both sides
// must declare the same partitioning, otherwise ErrPartitioningMismatch is
// returned before any work is scheduled.
func InnerJoin[ED, ED2, ED3 any](
	a *EdgeRDD[ED], b *EdgeRDD[ED2],
	f func(src, dst graph.VertexID, a ED, b ED2) ED3) (*EdgeRDD[ED3], error) {
	pa, pb := a.partitioning, b.partitioning
	switch {
	case !pa.Known() || !pb.Known():
		return nil, errors.Annotatef(ErrPartitioningMismatch, "joining %v with %v", pa, pb)
	case pa.Strategy.Name() != pb.Strategy.Name() || pa.NumPartitions != pb.NumPartitions:
		return nil, errors.Annotatef(ErrPartitioningMismatch, "joining %v with %v", pa, pb)
	case a.NumPartitions() != b.NumPartitions():
		return nil, errors.Annotatef(ErrPartitioningMismatch,
			"joining %d shards with %d shards", a.NumPartitions(), b.NumPartitions())
	}
	parts, err := dataflow.ZipPartitions(a.partitionsRDD, b.partitionsRDD,
		func(tc *dataflow.TaskContext, ia iter.Seq[Entry[ED]], ib iter.Seq[Entry[ED2]]) (iter.Seq[Entry[ED3]], error) {
			left, right := slices.Collect(ia), slices.Collect(ib)
			if len(left) != len(right) {
				return nil, errors.Annotatef(ErrPartitioningMismatch,
					"shard %d has %d and %d partitions", tc.PartitionIndex(), len(left), len(right))
			}
			out := make([]Entry[ED3], len(left))
			for i := range left {
				if left[i].PID != right[i].PID {
					return nil, errors.Annotatef(ErrPartitioningMismatch,
						"shard %d pairs partition %d with %d", tc.PartitionIndex(), left[i].PID, right[i].PID)
				}
				out[i] = Entry[ED3]{PID: left[i].PID, Partition: graph.InnerJoin(left[i].Partition, right[i].Partition, f)}
			}
			return slices.Values(out), nil
		})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return newEdgeRDD(parts, pa, a.targetLevel), nil
}

// PartitionBy redistributes the edges with strategy into numPartitions
// shards. A non-positive count keeps the current number of shards.
func (r *EdgeRDD[ED]) PartitionBy(strategy PartitionStrategy, numPartitions int) *EdgeRDD[ED] {
	if numPartitions < 1 {
		numPartitions = r.NumPartitions()
	}
	var edges dataflow.Dataset[graph.Edge[ED]] = r
	keyed := dataflow.MapPartitions(edges,
		func(_ *dataflow.TaskContext, in iter.Seq[graph.Edge[ED]]) (iter.Seq[dataflow.Pair[graph.PartitionID, graph.Edge[ED]]], error) {
			return func(yield func(dataflow.Pair[graph.PartitionID, graph.Edge[ED]]) bool) {
				for e := range in {
					pid := strategy.GetPartition(e.SrcID, e.DstID, numPartitions)
					if !yield(dataflow.Pair[graph.PartitionID, graph.Edge[ED]]{Key: pid, Value: e}) {
						return
					}
				}
			}, nil
		})
	shuffled := dataflow.Redistribute(keyed, dataflow.Partitioner[graph.PartitionID](pidPartitioner(numPartitions)))
	parts := dataflow.MapPartitions(shuffled,
		func(tc *dataflow.TaskContext, in iter.Seq[dataflow.Pair[graph.PartitionID, graph.Edge[ED]]]) (iter.Seq[Entry[ED]], error) {
			return buildEntries[ED](tc, func(yield func(graph.Edge[ED]) bool) {
				for kv := range in {
					if !yield(kv.Value) {
						return
					}
				}
			})
		})
	return newEdgeRDD(parts, Partitioning{Strategy: strategy, NumPartitions: numPartitions}, r.targetLevel)
}

// WithTargetStorageLevel returns an equivalent collection that Persist will
// retain at level.
func (r *EdgeRDD[ED]) WithTargetStorageLevel(level dataflow.StorageLevel) *EdgeRDD[ED] {
	c := *r
	c.id = dataflow.NewGUID()
	c.targetLevel = level
	return &c
}

func (r *EdgeRDD[ED]) TargetStorageLevel() dataflow.StorageLevel {
	return r.targetLevel
}

// Persist marks the partitions for retention at the target storage level.
// They are kept once something materializes them.
func (r *EdgeRDD[ED]) Persist() *EdgeRDD[ED] {
	c := *r
	c.id = dataflow.NewGUID()
	c.partitionsRDD = dataflow.Persist(r.partitionsRDD, r.targetLevel)
	return &c
}

// Materialize computes every partition, retaining them if persisted.
func (r *EdgeRDD[ED]) Materialize(ctx context.Context, eng *dataflow.Engine) error {
	_, err := dataflow.CollectPartitions(ctx, eng, r.partitionsRDD)
	return err
}

func (r *EdgeRDD[ED]) Unpersist(eng *dataflow.Engine) {
	eng.Unpersist(r.partitionsRDD.ID())
}

func (r *EdgeRDD[ED]) State(eng *dataflow.Engine) dataflow.State {
	return eng.State(r.partitionsRDD.ID())
}

// Count materializes the collection and returns the number of edges.
func (r *EdgeRDD[ED]) Count(ctx context.Context, eng *dataflow.Engine) (int, error) {
	parts, err := dataflow.CollectPartitions(ctx, eng, r.partitionsRDD)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, entries := range parts {
		for _, e := range entries {
			n += e.Partition.Size()
		}
	}
	return n, nil
}
