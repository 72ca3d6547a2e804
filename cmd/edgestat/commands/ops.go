package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/juju/errors"

	"github.com/XinhuiTian/spark/dataflow"
	"github.com/XinhuiTian/spark/disk"
	"github.com/XinhuiTian/spark/edgerdd"
	"github.com/XinhuiTian/spark/graph"
)

// edgeOps runs the commands for one attribute type.
type edgeOps interface {
	Import(ctx context.Context, input string, guid dataflow.GUID) error
	Export(ctx context.Context, guid dataflow.GUID, output string) error
	Degrees(ctx context.Context, guid dataflow.GUID, direction, merge, output string, w io.Writer) error
	Stats(ctx context.Context, guid dataflow.GUID, w io.Writer) error
}

type typedOps[R, ED any] struct {
	app     *app
	codec   disk.AttrCodec[ED]
	fromRow func(R) graph.Edge[ED]
	toRow   func(graph.Edge[ED]) R
}

func opsFor(a *app, attr string) (edgeOps, error) {
	switch attr {
	case "none":
		return typedOps[disk.EdgeRow, struct{}]{a, disk.JSONCodec[struct{}]{}, disk.FromEdgeRow, disk.ToEdgeRow}, nil
	case "long":
		return typedOps[disk.LongEdgeRow, int64]{a, disk.Int64Codec{}, disk.FromLongEdgeRow, disk.ToLongEdgeRow}, nil
	case "double":
		return typedOps[disk.DoubleEdgeRow, float64]{a, disk.Float64Codec{}, disk.FromDoubleEdgeRow, disk.ToDoubleEdgeRow}, nil
	case "string":
		return typedOps[disk.StringEdgeRow, string]{a, disk.StringCodec{}, disk.FromStringEdgeRow, disk.ToStringEdgeRow}, nil
	default:
		return nil, errors.NotValidf("attribute type %q", attr)
	}
}

func (o typedOps[R, ED]) load(guid dataflow.GUID) (*edgerdd.EdgeRDD[ED], error) {
	level, err := o.app.cfg.Level()
	if err != nil {
		return nil, err
	}
	return disk.LoadEdgeRDD(o.app.cfg.DataDir, guid, o.codec, edgerdd.WithStorageLevel(level))
}

func (o typedOps[R, ED]) Import(ctx context.Context, input string, guid dataflow.GUID) error {
	strategy, err := o.app.cfg.Strategy()
	if err != nil {
		return err
	}
	rdd, err := disk.ImportEdges(input, o.fromRow)
	if err != nil {
		return err
	}
	rdd = rdd.PartitionBy(strategy, o.app.cfg.NumPartitions)
	return disk.SaveEdgeRDD(ctx, o.app.engine, rdd, o.codec, o.app.cfg.DataDir, guid)
}

func (o typedOps[R, ED]) Export(ctx context.Context, guid dataflow.GUID, output string) error {
	rdd, err := o.load(guid)
	if err != nil {
		return err
	}
	if output == "" {
		output = filepath.Join(o.app.cfg.UnorderedDataDir, string(guid))
	}
	return disk.WriteEdges(ctx, o.app.engine, rdd, output, o.toRow)
}

func (o typedOps[R, ED]) Degrees(ctx context.Context, guid dataflow.GUID, direction, merge, output string, w io.Writer) error {
	rdd, err := o.load(guid)
	if err != nil {
		return err
	}
	var counts dataflow.Dataset[edgerdd.VertexCount]
	switch direction + "/" + merge {
	case "in/sum":
		counts = rdd.InDegrees(nil)
	case "out/sum":
		counts = rdd.OutDegrees(nil)
	case "in/max":
		counts = rdd.MaxInDegreeCounts(nil)
	case "out/max":
		counts = rdd.MaxOutDegreeCounts(nil)
	default:
		return errors.NotValidf("direction %q with merge %q", direction, merge)
	}
	if output != "" {
		return disk.WriteVertexCounts(ctx, o.app.engine, counts, output)
	}
	all, err := dataflow.Collect(ctx, o.app.engine, counts)
	if err != nil {
		return err
	}
	for _, vc := range all {
		fmt.Fprintf(w, "%d\t%d\n", vc.Key, vc.Value)
	}
	return nil
}

func (o typedOps[R, ED]) Stats(ctx context.Context, guid dataflow.GUID, w io.Writer) error {
	rdd, err := o.load(guid)
	if err != nil {
		return err
	}
	eng := o.app.engine
	rdd = rdd.Persist()
	defer rdd.Unpersist(eng)
	if err := rdd.Materialize(ctx, eng); err != nil {
		return err
	}
	slog.Debug("collection cached", "guid", guid, "cacheBytes", eng.Cache().TotalMemUsage())
	edges, err := rdd.Count(ctx, eng)
	if err != nil {
		return err
	}
	maxOut, err := largest(ctx, eng, rdd.OutDegrees(nil))
	if err != nil {
		return err
	}
	maxIn, err := largest(ctx, eng, rdd.InDegrees(nil))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "edges\t%d\n", edges)
	fmt.Fprintf(w, "partitions\t%d\n", rdd.NumPartitions())
	fmt.Fprintf(w, "partitioning\t%v\n", rdd.Partitioning())
	fmt.Fprintf(w, "max out-degree\t%d\n", maxOut)
	fmt.Fprintf(w, "max in-degree\t%d\n", maxIn)
	return nil
}

func largest(ctx context.Context, eng *dataflow.Engine, counts dataflow.Dataset[edgerdd.VertexCount]) (int, error) {
	all, err := dataflow.Collect(ctx, eng, counts)
	if err != nil {
		return 0, err
	}
	m := 0
	for _, vc := range all {
		m = max(m, vc.Value)
	}
	return m, nil
}
