package disk

import (
	"context"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/juju/errors"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/XinhuiTian/spark/dataflow"
	"github.com/XinhuiTian/spark/edgerdd"
	"github.com/XinhuiTian/spark/graph"
)

const numGoRoutines int64 = 4

type EdgeRow struct {
	Src int64 `parquet:"name=src, type=INT64"`
	Dst int64 `parquet:"name=dst, type=INT64"`
}

type LongEdgeRow struct {
	Src   int64 `parquet:"name=src, type=INT64"`
	Dst   int64 `parquet:"name=dst, type=INT64"`
	Value int64 `parquet:"name=value, type=INT64"`
}

type DoubleEdgeRow struct {
	Src   int64   `parquet:"name=src, type=INT64"`
	Dst   int64   `parquet:"name=dst, type=INT64"`
	Value float64 `parquet:"name=value, type=DOUBLE"`
}

type StringEdgeRow struct {
	Src   int64  `parquet:"name=src, type=INT64"`
	Dst   int64  `parquet:"name=dst, type=INT64"`
	Value string `parquet:"name=value, type=UTF8"`
}

type DegreeRow struct {
	Id    int64 `parquet:"name=id, type=INT64"`
	Count int64 `parquet:"name=count, type=INT64"`
}

func FromEdgeRow(r EdgeRow) graph.Edge[struct{}] {
	return graph.Edge[struct{}]{SrcID: graph.VertexID(r.Src), DstID: graph.VertexID(r.Dst)}
}

func ToEdgeRow(e graph.Edge[struct{}]) EdgeRow {
	return EdgeRow{Src: int64(e.SrcID), Dst: int64(e.DstID)}
}

func FromLongEdgeRow(r LongEdgeRow) graph.Edge[int64] {
	return graph.Edge[int64]{SrcID: graph.VertexID(r.Src), DstID: graph.VertexID(r.Dst), Attr: r.Value}
}

func ToLongEdgeRow(e graph.Edge[int64]) LongEdgeRow {
	return LongEdgeRow{Src: int64(e.SrcID), Dst: int64(e.DstID), Value: e.Attr}
}

func FromDoubleEdgeRow(r DoubleEdgeRow) graph.Edge[float64] {
	return graph.Edge[float64]{SrcID: graph.VertexID(r.Src), DstID: graph.VertexID(r.Dst), Attr: r.Value}
}

func ToDoubleEdgeRow(e graph.Edge[float64]) DoubleEdgeRow {
	return DoubleEdgeRow{Src: int64(e.SrcID), Dst: int64(e.DstID), Value: e.Attr}
}

func FromStringEdgeRow(r StringEdgeRow) graph.Edge[string] {
	return graph.Edge[string]{SrcID: graph.VertexID(r.Src), DstID: graph.VertexID(r.Dst), Attr: r.Value}
}

func ToStringEdgeRow(e graph.Edge[string]) StringEdgeRow {
	return StringEdgeRow{Src: int64(e.SrcID), Dst: int64(e.DstID), Value: e.Attr}
}

func partFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Annotate(err, "failed to read directory")
	}
	var files []string
	for _, f := range entries {
		if strings.HasPrefix(f.Name(), "part-") {
			files = append(files, filepath.Join(dir, f.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}

func readRows[R any](path string) ([]R, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, errors.Annotate(err, "failed to open file")
	}
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(R), numGoRoutines)
	if err != nil {
		return nil, errors.Annotate(err, "failed to create parquet reader")
	}
	defer pr.ReadStop()
	rows := make([]R, int(pr.GetNumRows()))
	if err := pr.Read(&rows); err != nil {
		return nil, errors.Annotate(err, "failed to read parquet file")
	}
	return rows, nil
}

// ReadEdges reads every part-* file in dir as one shard of edges.
func ReadEdges[R, ED any](dir string, fromRow func(R) graph.Edge[ED]) (dataflow.Dataset[graph.Edge[ED]], error) {
	files, err := partFiles(dir)
	if err != nil {
		return nil, err
	}
	shards := make([][]graph.Edge[ED], len(files))
	for i, path := range files {
		rows, err := readRows[R](path)
		if err != nil {
			return nil, errors.Annotatef(err, "reading %v", path)
		}
		shard := make([]graph.Edge[ED], len(rows))
		for j, r := range rows {
			shard[j] = fromRow(r)
		}
		shards[i] = shard
	}
	slog.Info("read from unordered disk", "dir", dir, "files", len(files))
	return dataflow.FromSlices(shards), nil
}

// ImportEdges reads the edges in dir into a collection with one shard per file.
func ImportEdges[R, ED any](dir string, fromRow func(R) graph.Edge[ED], opts ...edgerdd.Option) (*edgerdd.EdgeRDD[ED], error) {
	edges, err := ReadEdges(dir, fromRow)
	if err != nil {
		return nil, err
	}
	return edgerdd.FromEdges(edges, opts...), nil
}

func writeRows[T, R any](path string, rows iter.Seq[T], toRow func(T) R) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return errors.Annotate(err, "failed to create file")
	}
	defer fw.Close()
	pw, err := writer.NewParquetWriter(fw, new(R), numGoRoutines)
	if err != nil {
		return errors.Annotate(err, "failed to create parquet writer")
	}
	for t := range rows {
		if err := pw.Write(toRow(t)); err != nil {
			return errors.Annotate(err, "failed to write parquet file")
		}
	}
	if err := pw.WriteStop(); err != nil {
		return errors.Annotate(err, "parquet WriteStop error")
	}
	return nil
}

// WriteDataset writes each partition of ds to dir/part-NNNNN.parquet from
// the engine task that computes it, then marks dir with _SUCCESS.
func WriteDataset[T, R any](ctx context.Context, eng *dataflow.Engine, ds dataflow.Dataset[T], dir string, toRow func(T) R) error {
	if err := os.MkdirAll(dir, 0775); err != nil {
		return errors.Trace(err)
	}
	written := dataflow.MapPartitions(ds,
		func(tc *dataflow.TaskContext, in iter.Seq[T]) (iter.Seq[struct{}], error) {
			if err := tc.Context().Err(); err != nil {
				return nil, err
			}
			path := filepath.Join(dir, partFileName(tc.PartitionIndex(), "parquet"))
			if err := writeRows(path, in, toRow); err != nil {
				return nil, errors.Annotatef(err, "writing %v", path)
			}
			return slices.Values([]struct{}{{}}), nil
		})
	if _, err := dataflow.Collect(ctx, eng, written); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, successFile), nil, 0664); err != nil {
		return errors.Annotate(err, "failed to write success file")
	}
	slog.Info("wrote to unordered disk", "dir", dir, "files", len(ds.Partitions()))
	return nil
}

// WriteEdges exports the edges of rdd, one file per shard.
func WriteEdges[ED, R any](ctx context.Context, eng *dataflow.Engine, rdd *edgerdd.EdgeRDD[ED], dir string, toRow func(graph.Edge[ED]) R) error {
	return WriteDataset[graph.Edge[ED]](ctx, eng, rdd, dir, toRow)
}

func toDegreeRow(vc edgerdd.VertexCount) DegreeRow {
	return DegreeRow{Id: int64(vc.Key), Count: int64(vc.Value)}
}

// WriteVertexCounts exports degree counts.
func WriteVertexCounts(ctx context.Context, eng *dataflow.Engine, counts dataflow.Dataset[edgerdd.VertexCount], dir string) error {
	return WriteDataset(ctx, eng, counts, dir, toDegreeRow)
}

// ReadVertexCounts reads the counts written by WriteVertexCounts.
func ReadVertexCounts(dir string) ([]edgerdd.VertexCount, error) {
	files, err := partFiles(dir)
	if err != nil {
		return nil, err
	}
	var out []edgerdd.VertexCount
	for _, path := range files {
		rows, err := readRows[DegreeRow](path)
		if err != nil {
			return nil, errors.Annotatef(err, "reading %v", path)
		}
		for _, r := range rows {
			out = append(out, edgerdd.VertexCount{Key: graph.VertexID(r.Id), Value: int(r.Count)})
		}
	}
	return out, nil
}
