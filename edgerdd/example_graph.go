package edgerdd

import (
	"github.com/XinhuiTian/spark/dataflow"
	"github.com/XinhuiTian/spark/graph"
)

// ExampleGraph is a four person graph: Adam (0), Eve (1), Bob (2) and
// Isolated Joe (3). Edge attributes are comments.
func ExampleGraph(numPartitions int) *EdgeRDD[string] {
	edges := []graph.Edge[string]{
		{SrcID: 0, DstID: 1, Attr: "Adam loves Eve"},
		{SrcID: 1, DstID: 0, Attr: "Eve loves Adam"},
		{SrcID: 2, DstID: 0, Attr: "Bob envies Adam"},
		{SrcID: 2, DstID: 1, Attr: "Bob loves Eve"},
	}
	return FromEdges(dataflow.Parallelize(edges, 1)).PartitionBy(EdgePartition2D{}, numPartitions)
}
