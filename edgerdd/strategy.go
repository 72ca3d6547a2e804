package edgerdd

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/juju/errors"

	"github.com/XinhuiTian/spark/graph"
)

// PartitionStrategy maps an edge to the shard it belongs to. Two collections
// partitioned by strategies with the same name and the same partition count
// agree on where every (src, dst) key lives.
type PartitionStrategy interface {
	Name() string
	GetPartition(src, dst graph.VertexID, numPartitions int) graph.PartitionID
}

// Large prime used to scatter vertex ids that are close together.
const mixingPrime int64 = 1125899906842597

func absMod(x int64, n int) int {
	u := uint64(x)
	if x < 0 {
		// -MinInt64 wraps to itself, whose unsigned value is 2^63.
		u = uint64(-x)
	}
	return int(u % uint64(n))
}

func hashPair(a, b graph.VertexID) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(a))
	binary.LittleEndian.PutUint64(buf[8:], uint64(b))
	return xxhash.Sum64(buf[:])
}

// EdgePartition1D assigns edges by source vertex only, so all out-edges of a
// vertex are colocated.
type EdgePartition1D struct{}

func (EdgePartition1D) Name() string { return "EdgePartition1D" }

func (EdgePartition1D) GetPartition(src, _ graph.VertexID, numPartitions int) graph.PartitionID {
	return graph.PartitionID(absMod(int64(src)*mixingPrime, numPartitions))
}

// EdgePartition2D arranges the shards in a square-ish grid. The source picks
// the column and the destination picks the row, which bounds the replication
// of any vertex by about 2*sqrt(numPartitions).
type EdgePartition2D struct{}

func (EdgePartition2D) Name() string { return "EdgePartition2D" }

func (EdgePartition2D) GetPartition(src, dst graph.VertexID, numPartitions int) graph.PartitionID {
	ceilSqrt := int(math.Ceil(math.Sqrt(float64(numPartitions))))
	if numPartitions == ceilSqrt*ceilSqrt {
		col := absMod(int64(src)*mixingPrime, ceilSqrt)
		row := absMod(int64(dst)*mixingPrime, ceilSqrt)
		return graph.PartitionID((col*ceilSqrt + row) % numPartitions)
	}
	cols := ceilSqrt
	rows := (numPartitions + cols - 1) / cols
	lastColRows := numPartitions - rows*(cols-1)
	col := absMod(int64(src)*mixingPrime, numPartitions) / rows
	rowsInCol := rows
	if col >= cols-1 {
		rowsInCol = lastColRows
	}
	row := absMod(int64(dst)*mixingPrime, rowsInCol)
	return graph.PartitionID(col*rows + row)
}

// RandomVertexCut hashes both endpoints. Parallel edges with the same
// direction land together.
type RandomVertexCut struct{}

func (RandomVertexCut) Name() string { return "RandomVertexCut" }

func (RandomVertexCut) GetPartition(src, dst graph.VertexID, numPartitions int) graph.PartitionID {
	return graph.PartitionID(hashPair(src, dst) % uint64(numPartitions))
}

// CanonicalRandomVertexCut hashes the endpoints in ascending order, so edges
// between the same two vertices land together regardless of direction.
type CanonicalRandomVertexCut struct{}

func (CanonicalRandomVertexCut) Name() string { return "CanonicalRandomVertexCut" }

func (CanonicalRandomVertexCut) GetPartition(src, dst graph.VertexID, numPartitions int) graph.PartitionID {
	if src > dst {
		src, dst = dst, src
	}
	return graph.PartitionID(hashPair(src, dst) % uint64(numPartitions))
}

// reversedStrategy describes a collection whose edges were placed by inner
// and then reversed in place.
type reversedStrategy struct {
	inner PartitionStrategy
}

func (r reversedStrategy) Name() string { return "Reversed(" + r.inner.Name() + ")" }

func (r reversedStrategy) GetPartition(src, dst graph.VertexID, numPartitions int) graph.PartitionID {
	return r.inner.GetPartition(dst, src, numPartitions)
}

// reverseStrategy returns the strategy that matches the placement of edges
// after Reverse.
func reverseStrategy(s PartitionStrategy) PartitionStrategy {
	switch s := s.(type) {
	case nil, CanonicalRandomVertexCut:
		return s
	case reversedStrategy:
		return s.inner
	default:
		return reversedStrategy{inner: s}
	}
}

var strategies = map[string]PartitionStrategy{
	"EdgePartition1D":          EdgePartition1D{},
	"EdgePartition2D":          EdgePartition2D{},
	"RandomVertexCut":          RandomVertexCut{},
	"CanonicalRandomVertexCut": CanonicalRandomVertexCut{},
}

// StrategyFromString parses a strategy name as returned by Name.
func StrategyFromString(s string) (PartitionStrategy, error) {
	if ps, ok := strategies[s]; ok {
		return ps, nil
	}
	if inner, ok := strings.CutPrefix(s, "Reversed("); ok && strings.HasSuffix(inner, ")") {
		ps, err := StrategyFromString(strings.TrimSuffix(inner, ")"))
		if err != nil {
			return nil, err
		}
		return reverseStrategy(ps), nil
	}
	return nil, errors.NotValidf("partition strategy %q", s)
}

// pidPartitioner routes records keyed by a precomputed partition id.
type pidPartitioner int

func (p pidPartitioner) NumPartitions() int { return int(p) }

func (p pidPartitioner) PartitionOf(pid graph.PartitionID) int { return int(pid) }
