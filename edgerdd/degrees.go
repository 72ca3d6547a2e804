package edgerdd

import (
	"iter"

	"github.com/XinhuiTian/spark/dataflow"
	"github.com/XinhuiTian/spark/graph"
)

// VertexCount is a (vertex id, count) record.
type VertexCount = dataflow.Pair[graph.VertexID, int]

type localCounter[ED any] func(graph.EdgeSource[ED]) iter.Seq2[graph.VertexID, int]

type mergeFunc func(m *graph.VertexCountMap, k graph.VertexID, v int)

// aggregateDegrees counts per shard, redistributes the counts by vertex id
// and merges the counts that meet in each reduce shard.
func aggregateDegrees[ED any](
	r *EdgeRDD[ED], count localCounter[ED], merge mergeFunc,
	partitioner dataflow.Partitioner[graph.VertexID]) dataflow.Dataset[VertexCount] {
	if partitioner == nil {
		partitioner = dataflow.NewHashPartitioner[graph.VertexID](r.NumPartitions())
	}
	local := dataflow.MapPartitions(r.partitionsRDD,
		func(_ *dataflow.TaskContext, in iter.Seq[Entry[ED]]) (iter.Seq[VertexCount], error) {
			return func(yield func(VertexCount) bool) {
				for e := range in {
					for vid, n := range count(e.Partition) {
						if !yield(VertexCount{Key: vid, Value: n}) {
							return
						}
					}
				}
			}, nil
		})
	shuffled := dataflow.Redistribute(local, partitioner)
	return dataflow.MapPartitions(shuffled,
		func(_ *dataflow.TaskContext, in iter.Seq[VertexCount]) (iter.Seq[VertexCount], error) {
			m := graph.NewVertexCountMap(64)
			for kv := range in {
				merge(m, kv.Key, kv.Value)
			}
			return func(yield func(VertexCount) bool) {
				for vid, n := range m.All() {
					if !yield(VertexCount{Key: vid, Value: n}) {
						return
					}
				}
			}, nil
		})
}

// MaxInDegreeCounts returns, for every destination vertex, the largest
// in-degree contributed by any single shard. A nil partitioner hashes vertex
// ids into as many shards as the collection has.
func (r *EdgeRDD[ED]) MaxInDegreeCounts(partitioner dataflow.Partitioner[graph.VertexID]) dataflow.Dataset[VertexCount] {
	return aggregateDegrees(r, graph.EdgeSource[ED].CountingInEdges, (*graph.VertexCountMap).MergeMax, partitioner)
}

// MaxOutDegreeCounts is the out-degree counterpart of MaxInDegreeCounts.
func (r *EdgeRDD[ED]) MaxOutDegreeCounts(partitioner dataflow.Partitioner[graph.VertexID]) dataflow.Dataset[VertexCount] {
	return aggregateDegrees(r, graph.EdgeSource[ED].CountingOutEdges, (*graph.VertexCountMap).MergeMax, partitioner)
}

// InDegrees returns the global in-degree of every vertex with incoming edges.
func (r *EdgeRDD[ED]) InDegrees(partitioner dataflow.Partitioner[graph.VertexID]) dataflow.Dataset[VertexCount] {
	return aggregateDegrees(r, graph.EdgeSource[ED].CountingInEdges, (*graph.VertexCountMap).Add, partitioner)
}

// OutDegrees returns the global out-degree of every vertex with outgoing edges.
func (r *EdgeRDD[ED]) OutDegrees(partitioner dataflow.Partitioner[graph.VertexID]) dataflow.Dataset[VertexCount] {
	return aggregateDegrees(r, graph.EdgeSource[ED].CountingOutEdges, (*graph.VertexCountMap).Add, partitioner)
}
