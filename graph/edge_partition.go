package graph

import (
	"iter"
	"sort"
	"unsafe"

	"github.com/juju/errors"
)

// EdgePartition stores the edges of one shard in columnar form.
// The three columns have the same length and are sorted by (src, dst).
// An EdgePartition is never modified after construction: transformations
// return a new partition and may share the columns they leave untouched.
type EdgePartition[ED any] struct {
	srcIDs []VertexID
	dstIDs []VertexID
	data   []ED
	// One entry per distinct source id, in ascending order.
	index []cluster
}

// cluster is the run of edges sharing a source id.
type cluster struct {
	srcID VertexID
	start int
}

// NewEdgePartition wraps columns that are already sorted by (src, dst).
// The partition takes ownership of the slices.
func NewEdgePartition[ED any](srcIDs, dstIDs []VertexID, data []ED) (*EdgePartition[ED], error) {
	if len(srcIDs) != len(dstIDs) || len(srcIDs) != len(data) {
		return nil, errors.Annotatef(ErrColumnLength, "src %d, dst %d, data %d",
			len(srcIDs), len(dstIDs), len(data))
	}
	for i := 1; i < len(srcIDs); i++ {
		if lessKey(srcIDs[i], dstIDs[i], srcIDs[i-1], dstIDs[i-1]) {
			return nil, errors.Annotatef(ErrUnsorted, "at position %d", i)
		}
	}
	return newSortedPartition(srcIDs, dstIDs, data), nil
}

func newSortedPartition[ED any](srcIDs, dstIDs []VertexID, data []ED) *EdgePartition[ED] {
	return &EdgePartition[ED]{
		srcIDs: srcIDs,
		dstIDs: dstIDs,
		data:   data,
		index:  buildIndex(srcIDs),
	}
}

func buildIndex(srcIDs []VertexID) []cluster {
	var index []cluster
	for i, src := range srcIDs {
		if i == 0 || src != srcIDs[i-1] {
			index = append(index, cluster{srcID: src, start: i})
		}
	}
	return index
}

// EmptyEdgePartition returns a partition without edges.
func EmptyEdgePartition[ED any]() *EdgePartition[ED] {
	return newSortedPartition[ED](nil, nil, nil)
}

// Size is the number of edges.
func (p *EdgePartition[ED]) Size() int {
	return len(p.srcIDs)
}

// IndexSize is the number of distinct source ids.
func (p *EdgePartition[ED]) IndexSize() int {
	return len(p.index)
}

func (p *EdgePartition[ED]) edge(i int) Edge[ED] {
	return Edge[ED]{SrcID: p.srcIDs[i], DstID: p.dstIDs[i], Attr: p.data[i]}
}

// Iterator yields copies of the edges in (src, dst) order.
func (p *EdgePartition[ED]) Iterator() iter.Seq[Edge[ED]] {
	return func(yield func(Edge[ED]) bool) {
		for i := range p.srcIDs {
			if !yield(p.edge(i)) {
				return
			}
		}
	}
}

// EdgesFrom yields the edges whose source is src.
func (p *EdgePartition[ED]) EdgesFrom(src VertexID) iter.Seq[Edge[ED]] {
	return func(yield func(Edge[ED]) bool) {
		c := sort.Search(len(p.index), func(i int) bool { return p.index[i].srcID >= src })
		if c == len(p.index) || p.index[c].srcID != src {
			return
		}
		end := len(p.srcIDs)
		if c+1 < len(p.index) {
			end = p.index[c+1].start
		}
		for i := p.index[c].start; i < end; i++ {
			if !yield(p.edge(i)) {
				return
			}
		}
	}
}

// Columns exposes the underlying columns. Callers must not modify them.
func (p *EdgePartition[ED]) Columns() (srcIDs, dstIDs []VertexID, data []ED) {
	return p.srcIDs, p.dstIDs, p.data
}

// MapValues returns a partition with the same edges and attributes computed by f.
// If f fails for any edge no partition is returned.
func MapValues[ED, ED2 any](p *EdgePartition[ED], f func(Edge[ED]) (ED2, error)) (*EdgePartition[ED2], error) {
	data := make([]ED2, len(p.data))
	for i := range p.data {
		v, err := f(p.edge(i))
		if err != nil {
			return nil, &MappingError{SrcID: p.srcIDs[i], DstID: p.dstIDs[i], Err: err}
		}
		data[i] = v
	}
	return &EdgePartition[ED2]{srcIDs: p.srcIDs, dstIDs: p.dstIDs, data: data, index: p.index}, nil
}

// Reverse swaps source and destination of every edge.
func (p *EdgePartition[ED]) Reverse() *EdgePartition[ED] {
	n := p.Size()
	srcIDs := make([]VertexID, n)
	dstIDs := make([]VertexID, n)
	data := make([]ED, n)
	copy(srcIDs, p.dstIDs)
	copy(dstIDs, p.srcIDs)
	copy(data, p.data)
	sortColumns(srcIDs, dstIDs, data)
	return newSortedPartition(srcIDs, dstIDs, data)
}

// Filter keeps the edges for which pred is true.
func (p *EdgePartition[ED]) Filter(pred func(Edge[ED]) bool) *EdgePartition[ED] {
	b := NewEdgePartitionBuilder[ED](p.Size())
	for i := range p.srcIDs {
		if e := p.edge(i); pred(e) {
			b.appendEdge(e)
		}
	}
	// Already in order.
	return newSortedPartition(b.srcIDs, b.dstIDs, b.data)
}

// GroupEdges merges the attributes of edges with the same (src, dst) pair
// into a single edge.
func (p *EdgePartition[ED]) GroupEdges(merge func(a, b ED) ED) *EdgePartition[ED] {
	b := NewEdgePartitionBuilder[ED](p.Size())
	for i := range p.srcIDs {
		last := len(b.srcIDs) - 1
		if last >= 0 && b.srcIDs[last] == p.srcIDs[i] && b.dstIDs[last] == p.dstIDs[i] {
			b.data[last] = merge(b.data[last], p.data[i])
		} else {
			b.appendEdge(p.edge(i))
		}
	}
	return newSortedPartition(b.srcIDs, b.dstIDs, b.data)
}

// InnerJoin merges the edges present in both partitions. Both must be sorted
// by (src, dst). When a key repeats, every pair of matching edges is emitted.
func InnerJoin[ED, ED2, ED3 any](
	p *EdgePartition[ED], other *EdgePartition[ED2],
	f func(src, dst VertexID, a ED, b ED2) ED3) *EdgePartition[ED3] {
	b := NewEdgePartitionBuilder[ED3](min(p.Size(), other.Size()))
	i, j := 0, 0
	for i < p.Size() && j < other.Size() {
		src, dst := p.srcIDs[i], p.dstIDs[i]
		oSrc, oDst := other.srcIDs[j], other.dstIDs[j]
		switch {
		case lessKey(src, dst, oSrc, oDst):
			i++
		case lessKey(oSrc, oDst, src, dst):
			j++
		default:
			iEnd := i
			for iEnd < p.Size() && p.srcIDs[iEnd] == src && p.dstIDs[iEnd] == dst {
				iEnd++
			}
			jEnd := j
			for jEnd < other.Size() && other.srcIDs[jEnd] == src && other.dstIDs[jEnd] == dst {
				jEnd++
			}
			for x := i; x < iEnd; x++ {
				for y := j; y < jEnd; y++ {
					b.appendEdge(Edge[ED3]{SrcID: src, DstID: dst, Attr: f(src, dst, p.data[x], other.data[y])})
				}
			}
			i, j = iEnd, jEnd
		}
	}
	return newSortedPartition(b.srcIDs, b.dstIDs, b.data)
}

// CountingInEdges counts the edges pointing to each destination in this partition.
func (p *EdgePartition[ED]) CountingInEdges() iter.Seq2[VertexID, int] {
	return func(yield func(VertexID, int) bool) {
		counts := NewVertexCountMap(len(p.index))
		for _, dst := range p.dstIDs {
			counts.Add(dst, 1)
		}
		counts.All()(yield)
	}
}

// CountingOutEdges counts the edges leaving each source in this partition.
// The source column is sorted, so the counts are the cluster lengths.
func (p *EdgePartition[ED]) CountingOutEdges() iter.Seq2[VertexID, int] {
	return func(yield func(VertexID, int) bool) {
		for c, entry := range p.index {
			end := len(p.srcIDs)
			if c+1 < len(p.index) {
				end = p.index[c+1].start
			}
			if !yield(entry.srcID, end-entry.start) {
				return
			}
		}
	}
}

var vertexIDCost = int(unsafe.Sizeof(VertexID(0)))
var clusterCost = int(unsafe.Sizeof(cluster{}))

// EstimatedMemUsage approximates the bytes held by the partition.
// Attribute values are charged by their static size only.
func (p *EdgePartition[ED]) EstimatedMemUsage() int {
	var zero ED
	i := len(p.srcIDs) * vertexIDCost
	i += len(p.dstIDs) * vertexIDCost
	i += len(p.data) * int(unsafe.Sizeof(zero))
	i += len(p.index) * clusterCost
	return i
}
