package edgerdd

import (
	"math"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XinhuiTian/spark/graph"
)

var allStrategies = []PartitionStrategy{EdgePartition1D{}, EdgePartition2D{}, RandomVertexCut{}, CanonicalRandomVertexCut{}}

func TestStrategiesStayInRange(t *testing.T) {
	ids := []graph.VertexID{0, 1, -1, 7, 1 << 40, math.MaxInt64, math.MinInt64}
	for _, s := range allStrategies {
		for n := 1; n <= 17; n++ {
			for _, src := range ids {
				for _, dst := range ids {
					pid := s.GetPartition(src, dst, n)
					require.True(t, pid >= 0 && int(pid) < n, "%s(%d, %d, %d) = %d", s.Name(), src, dst, n, pid)
				}
			}
		}
	}
}

func TestCanonicalRandomVertexCutIgnoresDirection(t *testing.T) {
	s := CanonicalRandomVertexCut{}
	for i := graph.VertexID(0); i < 50; i++ {
		assert.Equal(t, s.GetPartition(i, 3*i+1, 7), s.GetPartition(3*i+1, i, 7))
	}
}

func TestEdgePartition1DColocatesSources(t *testing.T) {
	s := EdgePartition1D{}
	for dst := graph.VertexID(0); dst < 50; dst++ {
		assert.Equal(t, s.GetPartition(42, 0, 9), s.GetPartition(42, dst, 9))
	}
}

func TestEdgePartition2DBoundsReplication(t *testing.T) {
	s := EdgePartition2D{}
	// With 9 shards, one source reaches at most one column of 3 shards.
	shards := map[graph.PartitionID]bool{}
	for dst := graph.VertexID(0); dst < 200; dst++ {
		shards[s.GetPartition(5, dst, 9)] = true
	}
	assert.LessOrEqual(t, len(shards), 3)
}

func TestStrategyFromString(t *testing.T) {
	for _, s := range allStrategies {
		got, err := StrategyFromString(s.Name())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	rev, err := StrategyFromString("Reversed(EdgePartition1D)")
	require.NoError(t, err)
	assert.Equal(t, "Reversed(EdgePartition1D)", rev.Name())
	assert.Equal(t, EdgePartition1D{}.GetPartition(3, 4, 5), rev.GetPartition(4, 3, 5))

	_, err = StrategyFromString("Nope")
	assert.True(t, errors.Is(err, errors.NotValid))
}
