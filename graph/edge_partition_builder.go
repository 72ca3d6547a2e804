package graph

import (
	"sort"

	"github.com/juju/errors"
)

// EdgePartitionBuilder collects edges in arrival order and packs them into an
// EdgePartition. A builder is used by a single goroutine and finalized once.
type EdgePartitionBuilder[ED any] struct {
	srcIDs    []VertexID
	dstIDs    []VertexID
	data      []ED
	finalized bool
}

func NewEdgePartitionBuilder[ED any](sizeHint int) *EdgePartitionBuilder[ED] {
	return &EdgePartitionBuilder[ED]{
		srcIDs: make([]VertexID, 0, sizeHint),
		dstIDs: make([]VertexID, 0, sizeHint),
		data:   make([]ED, 0, sizeHint),
	}
}

// Add appends an edge. Duplicates are kept.
func (b *EdgePartitionBuilder[ED]) Add(src, dst VertexID, attr ED) error {
	if b.finalized {
		return errors.Annotatef(ErrBuilderFinalized, "adding edge (%d, %d)", src, dst)
	}
	b.appendEdge(Edge[ED]{SrcID: src, DstID: dst, Attr: attr})
	return nil
}

func (b *EdgePartitionBuilder[ED]) appendEdge(e Edge[ED]) {
	b.srcIDs = append(b.srcIDs, e.SrcID)
	b.dstIDs = append(b.dstIDs, e.DstID)
	b.data = append(b.data, e.Attr)
}

// ToEdgePartition sorts the edges by (src, dst) and returns them as a partition.
// Edges with equal keys keep their insertion order. The builder cannot be used
// afterwards: further calls return ErrBuilderFinalized.
func (b *EdgePartitionBuilder[ED]) ToEdgePartition() (*EdgePartition[ED], error) {
	if b.finalized {
		return nil, errors.Trace(ErrBuilderFinalized)
	}
	b.finalized = true
	srcIDs, dstIDs, data := b.srcIDs, b.dstIDs, b.data
	b.srcIDs, b.dstIDs, b.data = nil, nil, nil
	sortColumns(srcIDs, dstIDs, data)
	return newSortedPartition(srcIDs, dstIDs, data), nil
}

// columnsSorter sorts the three columns in parallel.
type columnsSorter[ED any] struct {
	srcIDs []VertexID
	dstIDs []VertexID
	data   []ED
}

func (s columnsSorter[ED]) Len() int {
	return len(s.srcIDs)
}
func (s columnsSorter[ED]) Less(i, j int) bool {
	return lessKey(s.srcIDs[i], s.dstIDs[i], s.srcIDs[j], s.dstIDs[j])
}
func (s columnsSorter[ED]) Swap(i, j int) {
	s.srcIDs[i], s.srcIDs[j] = s.srcIDs[j], s.srcIDs[i]
	s.dstIDs[i], s.dstIDs[j] = s.dstIDs[j], s.dstIDs[i]
	s.data[i], s.data[j] = s.data[j], s.data[i]
}

func sortColumns[ED any](srcIDs, dstIDs []VertexID, data []ED) {
	s := columnsSorter[ED]{srcIDs, dstIDs, data}
	if sort.IsSorted(s) {
		return
	}
	sort.Stable(s)
}
