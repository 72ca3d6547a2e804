package disk

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/apache/arrow/go/arrow"
	"github.com/apache/arrow/go/arrow/array"
	"github.com/apache/arrow/go/arrow/ipc"
	"github.com/juju/errors"

	"github.com/XinhuiTian/spark/dataflow"
	"github.com/XinhuiTian/spark/edgerdd"
	"github.com/XinhuiTian/spark/graph"
)

const (
	inprogressSuffix = ".inprogress"
	successFile      = "_SUCCESS"

	metaPID           = "pid"
	metaAttrType      = "attrType"
	metaStrategy      = "strategy"
	metaNumPartitions = "numPartitions"
)

func partFileName(i int, ext string) string {
	return fmt.Sprintf("part-%05d.%s", i, ext)
}

// HasOnDisk reports whether a complete copy of guid is in dataDir.
func HasOnDisk(dataDir string, guid dataflow.GUID) (bool, error) {
	_, err := os.Stat(filepath.Join(dataDir, string(guid), successFile))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Trace(err)
	}
	return true, nil
}

func edgeSchema[ED any](codec AttrCodec[ED], pid graph.PartitionID, p edgerdd.Partitioning) *arrow.Schema {
	keys := []string{metaPID, metaAttrType}
	values := []string{strconv.Itoa(int(pid)), codec.TypeName()}
	if p.Known() {
		keys = append(keys, metaStrategy, metaNumPartitions)
		values = append(values, p.Strategy.Name(), strconv.Itoa(p.NumPartitions))
	}
	md := arrow.NewMetadata(keys, values)
	return arrow.NewSchema([]arrow.Field{
		{Name: "src", Type: arrow.PrimitiveTypes.Int64},
		{Name: "dst", Type: arrow.PrimitiveTypes.Int64},
		{Name: "attr", Type: codec.DataType()},
	}, &md)
}

func vertexColumn(ids []graph.VertexID) array.Interface {
	b := array.NewInt64Builder(arrowAllocator)
	defer b.Release()
	b.Reserve(len(ids))
	for _, id := range ids {
		b.Append(int64(id))
	}
	return b.NewArray()
}

func writePartition[ED any](path string, codec AttrCodec[ED], e edgerdd.Entry[ED], p edgerdd.Partitioning) error {
	schema := edgeSchema(codec, e.PID, p)
	f, err := os.Create(path)
	if err != nil {
		return errors.Annotate(err, "failed to create file")
	}
	defer f.Close()
	w, err := ipc.NewFileWriter(f, ipc.WithSchema(schema), ipc.WithAllocator(arrowAllocator))
	if err != nil {
		return errors.Annotate(err, "failed to create Arrow writer")
	}
	// Empty partitions are stored with zero records.
	if e.Partition.Size() > 0 {
		srcIDs, dstIDs, data := e.Partition.Columns()
		attrs, err := codec.Build(arrowAllocator, data)
		if err != nil {
			return errors.Trace(err)
		}
		src, dst := vertexColumn(srcIDs), vertexColumn(dstIDs)
		rec := array.NewRecord(schema, []array.Interface{src, dst, attrs}, int64(len(srcIDs)))
		src.Release()
		dst.Release()
		attrs.Release()
		defer rec.Release()
		if err := w.Write(rec); err != nil {
			return errors.Annotate(err, "failed to write Arrow file")
		}
	}
	if err := w.Close(); err != nil {
		return errors.Annotate(err, "failed to write Arrow file")
	}
	return errors.Annotate(f.Close(), "failed to write Arrow file")
}

// SaveEdgeRDD writes every shard of rdd to <dataDir>/<guid>/part-NNNNN.arrow.
// Shards are written by the engine tasks that compute them. The directory
// only appears under its final name, with a _SUCCESS marker, once every
// shard is written.
func SaveEdgeRDD[ED any](
	ctx context.Context, eng *dataflow.Engine, rdd *edgerdd.EdgeRDD[ED],
	codec AttrCodec[ED], dataDir string, guid dataflow.GUID) error {
	onDisk, err := HasOnDisk(dataDir, guid)
	if err != nil {
		return err
	}
	if onDisk {
		slog.Info("already on disk", "guid", guid)
		return nil
	}
	realDir := filepath.Join(dataDir, string(guid))
	inProgressDir := realDir + inprogressSuffix
	if err := os.RemoveAll(inProgressDir); err != nil {
		return errors.Trace(err)
	}
	if err := os.MkdirAll(inProgressDir, 0775); err != nil {
		return errors.Trace(err)
	}
	partitioning := rdd.Partitioning()
	written := dataflow.MapPartitions(rdd.PartitionsRDD(),
		func(tc *dataflow.TaskContext, in iter.Seq[edgerdd.Entry[ED]]) (iter.Seq[int], error) {
			if err := tc.Context().Err(); err != nil {
				return nil, err
			}
			path := filepath.Join(inProgressDir, partFileName(tc.PartitionIndex(), "arrow"))
			n := 0
			for e := range in {
				if n > 0 {
					return nil, errors.NotSupportedf("shard %d with several partitions", tc.PartitionIndex())
				}
				if err := writePartition(path, codec, e, partitioning); err != nil {
					return nil, errors.Annotatef(err, "shard %d", tc.PartitionIndex())
				}
				n++
			}
			if n == 0 {
				// Every shard gets a file, so shard positions survive a reload.
				empty := edgerdd.Entry[ED]{
					PID:       graph.PartitionID(tc.PartitionIndex()),
					Partition: graph.EmptyEdgePartition[ED](),
				}
				if err := writePartition(path, codec, empty, partitioning); err != nil {
					return nil, errors.Annotatef(err, "shard %d", tc.PartitionIndex())
				}
			}
			return slices.Values([]int{n}), nil
		})
	if _, err := dataflow.Collect(ctx, eng, written); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(inProgressDir, successFile), nil, 0664); err != nil {
		return errors.Annotate(err, "failed to write success file")
	}
	if err := os.Rename(inProgressDir, realDir); err != nil {
		return errors.Trace(err)
	}
	slog.Info("saved to ordered disk", "guid", guid, "partitions", rdd.NumPartitions())
	return nil
}

type orderedPartitions[ED any] struct {
	id    dataflow.GUID
	files []string
	codec AttrCodec[ED]
}

func (d *orderedPartitions[ED]) ID() dataflow.GUID {
	return d.id
}

func (d *orderedPartitions[ED]) Partitions() []dataflow.Partition {
	ps := make([]dataflow.Partition, len(d.files))
	for i := range ps {
		ps[i] = dataflow.Partition{Index: i}
	}
	return ps
}

func (d *orderedPartitions[ED]) StorageLevel() dataflow.StorageLevel {
	return dataflow.StorageNone
}

func (d *orderedPartitions[ED]) Compute(_ *dataflow.TaskContext, p dataflow.Partition) (iter.Seq[edgerdd.Entry[ED]], error) {
	e, err := readPartition(d.files[p.Index], d.codec)
	if err != nil {
		return nil, errors.Annotatef(err, "reading %v", d.files[p.Index])
	}
	return slices.Values([]edgerdd.Entry[ED]{e}), nil
}

func metadataValue(md arrow.Metadata, key string) (string, bool) {
	i := md.FindKey(key)
	if i < 0 {
		return "", false
	}
	return md.Values()[i], true
}

func openArrow(path string) (*os.File, *ipc.FileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	r, err := ipc.NewFileReader(f, ipc.WithAllocator(arrowAllocator))
	if err != nil {
		f.Close()
		return nil, nil, errors.Annotate(err, "failed to open Arrow file")
	}
	return f, r, nil
}

func toVertexIDs(col array.Interface) ([]graph.VertexID, error) {
	a, ok := col.(*array.Int64)
	if !ok {
		return nil, errors.NotValidf("vertex column of type %v", col.DataType())
	}
	ids := make([]graph.VertexID, a.Len())
	for i, v := range a.Int64Values() {
		ids[i] = graph.VertexID(v)
	}
	return ids, nil
}

func readPartition[ED any](path string, codec AttrCodec[ED]) (edgerdd.Entry[ED], error) {
	var e edgerdd.Entry[ED]
	f, r, err := openArrow(path)
	if err != nil {
		return e, err
	}
	defer f.Close()
	defer r.Close()
	md := r.Schema().Metadata()
	if t, _ := metadataValue(md, metaAttrType); t != codec.TypeName() {
		return e, errors.NotValidf("attribute type %q (want %q)", t, codec.TypeName())
	}
	pidStr, _ := metadataValue(md, metaPID)
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return e, errors.NotValidf("partition id %q", pidStr)
	}
	e.PID = graph.PartitionID(pid)
	// Files hold zero records for empty partitions and one record otherwise.
	switch r.NumRecords() {
	case 0:
		e.Partition = graph.EmptyEdgePartition[ED]()
		return e, nil
	case 1:
	default:
		return e, errors.NotValidf("%d records, expected 1", r.NumRecords())
	}
	rec, err := r.Record(0)
	if err != nil {
		return e, errors.Annotate(err, "failed to read record")
	}
	src, err := toVertexIDs(rec.Column(0))
	if err != nil {
		return e, err
	}
	dst, err := toVertexIDs(rec.Column(1))
	if err != nil {
		return e, err
	}
	data, err := codec.Read(rec.Column(2))
	if err != nil {
		return e, err
	}
	e.Partition, err = graph.NewEdgePartition(src, dst, data)
	return e, errors.Trace(err)
}

// LoadEdgeRDD returns a collection that reads the shards saved under guid.
// Files are opened when the collection is materialized. The partitioning
// recorded at save time is restored, so loaded collections can be joined.
func LoadEdgeRDD[ED any](dataDir string, guid dataflow.GUID, codec AttrCodec[ED], opts ...edgerdd.Option) (*edgerdd.EdgeRDD[ED], error) {
	onDisk, err := HasOnDisk(dataDir, guid)
	if err != nil {
		return nil, err
	}
	if !onDisk {
		return nil, errors.NotFoundf("%v in %v", guid, dataDir)
	}
	dir := filepath.Join(dataDir, string(guid))
	files, err := filepath.Glob(filepath.Join(dir, "part-*.arrow"))
	if err != nil {
		return nil, errors.Trace(err)
	}
	slices.Sort(files)
	slog.Info("loading from ordered disk", "guid", guid, "partitions", len(files))
	if len(files) > 0 {
		p, err := savedPartitioning(files[0])
		if err != nil {
			return nil, errors.Annotatef(err, "reading %v", files[0])
		}
		if p.Known() {
			opts = append([]edgerdd.Option{edgerdd.WithPartitioning(p.Strategy, p.NumPartitions)}, opts...)
		}
	}
	ds := &orderedPartitions[ED]{id: dataflow.NewGUID(), files: files, codec: codec}
	return edgerdd.FromEdgePartitions[ED](ds, opts...), nil
}

func savedPartitioning(path string) (edgerdd.Partitioning, error) {
	f, r, err := openArrow(path)
	if err != nil {
		return edgerdd.Partitioning{}, err
	}
	defer f.Close()
	defer r.Close()
	md := r.Schema().Metadata()
	name, ok := metadataValue(md, metaStrategy)
	if !ok {
		return edgerdd.Partitioning{}, nil
	}
	strategy, err := edgerdd.StrategyFromString(name)
	if err != nil {
		return edgerdd.Partitioning{}, err
	}
	nStr, _ := metadataValue(md, metaNumPartitions)
	n, err := strconv.Atoi(nStr)
	if err != nil {
		return edgerdd.Partitioning{}, errors.NotValidf("partition count %q", nStr)
	}
	return edgerdd.Partitioning{Strategy: strategy, NumPartitions: n}, nil
}
