// Types shared by edge partitions and the partitioned edge collection.
package graph

import "iter"

// VertexID identifies a vertex. Every int64 value is a legal id.
type VertexID int64

// PartitionID identifies the shard an edge partition belongs to.
type PartitionID int32

// Edge is a directed edge with a user-defined attribute.
type Edge[ED any] struct {
	SrcID VertexID
	DstID VertexID
	Attr  ED
}

// EdgeSource is the read-only view of a shard's edges. Consumers that only
// scan edges or count degrees depend on this instead of a concrete partition.
type EdgeSource[ED any] interface {
	Size() int
	Iterator() iter.Seq[Edge[ED]]
	CountingInEdges() iter.Seq2[VertexID, int]
	CountingOutEdges() iter.Seq2[VertexID, int]
}

var _ EdgeSource[struct{}] = (*EdgePartition[struct{}])(nil)

// lessKey orders edges by (src, dst).
func lessKey(src1, dst1, src2, dst2 VertexID) bool {
	return src1 < src2 || (src1 == src2 && dst1 < dst2)
}
