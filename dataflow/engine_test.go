package dataflow

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestEngine(opts ...Option) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(append([]Option{WithParallelism(4), WithLogger(logger)}, opts...)...)
}

func ints(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// countingMap wraps ds in an identity map that counts partition computations.
func countingMap[T any](ds Dataset[T], counter *atomic.Int32) Dataset[T] {
	return MapPartitions(ds, func(_ *TaskContext, in iter.Seq[T]) (iter.Seq[T], error) {
		counter.Add(1)
		return in, nil
	})
}

func TestParallelizeAndCollect(t *testing.T) {
	eng := newTestEngine()
	ds := Parallelize(ints(10), 3)
	parts, err := CollectPartitions(context.Background(), eng, ds)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 1, 2}, {3, 4, 5}, {6, 7, 8, 9}}, parts)

	all, err := Collect(context.Background(), eng, ds)
	require.NoError(t, err)
	assert.Equal(t, ints(10), all)

	n, err := Count(context.Background(), eng, ds)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestParallelizeMorePartitionsThanItems(t *testing.T) {
	parts, err := CollectPartitions(context.Background(), newTestEngine(), Parallelize([]int{7}, 3))
	require.NoError(t, err)
	require.Len(t, parts, 3)
	assert.Equal(t, 1, len(parts[0])+len(parts[1])+len(parts[2]))
}

func TestMapPartitionsSeesPartitionIndex(t *testing.T) {
	ds := MapPartitions(Parallelize(ints(4), 2), func(tc *TaskContext, in iter.Seq[int]) (iter.Seq[int], error) {
		var out []int
		for v := range in {
			out = append(out, v*10+tc.PartitionIndex())
		}
		return slices.Values(out), nil
	})
	got, err := Collect(context.Background(), newTestEngine(), ds)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 10, 21, 31}, got)
}

func TestZipPartitions(t *testing.T) {
	sum := func(_ *TaskContext, a iter.Seq[int], b iter.Seq[int]) (iter.Seq[int], error) {
		return slices.Values([]int{len(slices.Collect(a)) + len(slices.Collect(b))}), nil
	}
	zipped, err := ZipPartitions(Parallelize(ints(4), 2), Parallelize(ints(6), 2), sum)
	require.NoError(t, err)
	got, err := Collect(context.Background(), newTestEngine(), zipped)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 5}, got)

	_, err = ZipPartitions(Parallelize(ints(4), 2), Parallelize(ints(6), 3), sum)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPartitionCount))
}

type modPartitioner struct{ n int }

func (m modPartitioner) NumPartitions() int       { return m.n }
func (m modPartitioner) PartitionOf(key int64) int { return int(key % int64(m.n)) }

type outOfRangePartitioner struct{}

func (outOfRangePartitioner) NumPartitions() int     { return 2 }
func (outOfRangePartitioner) PartitionOf(int64) int { return 2 }

func keyed(n int) []Pair[int64, int] {
	out := make([]Pair[int64, int], n)
	for i := range out {
		out[i] = Pair[int64, int]{Key: int64(i), Value: i}
	}
	return out
}

func TestRedistribute(t *testing.T) {
	eng := newTestEngine()
	var computed atomic.Int32
	parent := countingMap(Parallelize(keyed(20), 5), &computed)
	shuffled := Redistribute(parent, modPartitioner{n: 4})
	require.Len(t, shuffled.Partitions(), 4)

	parts, err := CollectPartitions(context.Background(), eng, shuffled)
	require.NoError(t, err)
	for r, part := range parts {
		require.Len(t, part, 5)
		for i, kv := range part {
			assert.Equal(t, int64(r+4*i), kv.Key, "records keep parent order")
			assert.Equal(t, int(kv.Key), kv.Value)
		}
	}
	// The map side ran once for all four reduce tasks.
	assert.Equal(t, int32(5), computed.Load())

	_, err = CollectPartitions(context.Background(), eng, shuffled)
	require.NoError(t, err)
	assert.Equal(t, int32(5), computed.Load(), "map output is retained")

	eng.Clear()
	_, err = CollectPartitions(context.Background(), eng, shuffled)
	require.NoError(t, err)
	assert.Equal(t, int32(10), computed.Load())
}

func TestCanceledRequestDoesNotFailSharedShuffle(t *testing.T) {
	eng := newTestEngine()
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	parent := MapPartitions(Parallelize(keyed(8), 2),
		func(tc *TaskContext, in iter.Seq[Pair[int64, int]]) (iter.Seq[Pair[int64, int]], error) {
			once.Do(func() { close(started) })
			select {
			case <-release:
				return in, nil
			case <-tc.Context().Done():
				return nil, tc.Context().Err()
			}
		})
	shuffled := Redistribute(parent, modPartitioner{n: 2})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := Collect(ctxA, eng, shuffled)
		errA <- err
	}()
	<-started

	type result struct {
		items []Pair[int64, int]
		err   error
	}
	resB := make(chan result, 1)
	go func() {
		items, err := Collect(context.Background(), eng, shuffled)
		resB <- result{items, err}
	}()
	// Give the second request time to join the running map side.
	time.Sleep(50 * time.Millisecond)
	cancelA()
	assert.True(t, errors.Is(<-errA, context.Canceled))
	close(release)

	b := <-resB
	require.NoError(t, b.err)
	assert.Len(t, b.items, 8)
}

func TestShuffleOutputIsBoundedByCache(t *testing.T) {
	eng := newTestEngine(WithCacheMaxMem(1))
	var computed atomic.Int32
	shuffled := Redistribute(countingMap(Parallelize(keyed(20), 5), &computed), modPartitioner{n: 4})
	got, err := Collect(context.Background(), eng, shuffled)
	require.NoError(t, err)
	assert.Len(t, got, 20)
	assert.Equal(t, 0, eng.Cache().TotalMemUsage())

	before := computed.Load()
	_, err = Collect(context.Background(), eng, shuffled)
	require.NoError(t, err)
	assert.Greater(t, computed.Load(), before, "evicted map output is recomputed")
}

func TestRedistributeRejectsOutOfRangePartition(t *testing.T) {
	shuffled := Redistribute(Parallelize(keyed(3), 1), Partitioner[int64](outOfRangePartitioner{}))
	_, err := Collect(context.Background(), newTestEngine(), shuffled)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPartitionIndex))
}

func TestHashPartitioner(t *testing.T) {
	p := NewHashPartitioner[int64](4)
	seen := map[int]bool{}
	for k := int64(-500); k < 500; k++ {
		r := p.PartitionOf(k)
		require.True(t, r >= 0 && r < 4)
		require.Equal(t, r, p.PartitionOf(k))
		seen[r] = true
	}
	assert.Len(t, seen, 4)
	assert.Equal(t, 1, NewHashPartitioner[int](0).NumPartitions())
}

func TestPersistRetainsPartitions(t *testing.T) {
	eng := newTestEngine()
	var computed atomic.Int32
	ds := countingMap(Parallelize(ints(6), 2), &computed)
	persisted := Persist(ds, MemoryOnly)
	assert.Equal(t, MemoryOnly, persisted.StorageLevel())
	assert.Equal(t, Unmaterialized, eng.State(persisted.ID()))
	assert.Equal(t, int32(0), computed.Load(), "persisting computes nothing")

	for range 2 {
		got, err := Collect(context.Background(), eng, persisted)
		require.NoError(t, err)
		assert.Equal(t, ints(6), got)
	}
	assert.Equal(t, int32(2), computed.Load())
	assert.Equal(t, Materialized, eng.State(persisted.ID()))

	eng.Unpersist(persisted.ID())
	assert.Equal(t, Unmaterialized, eng.State(persisted.ID()))
	_, err := Collect(context.Background(), eng, persisted)
	require.NoError(t, err)
	assert.Equal(t, int32(4), computed.Load())
}

func TestPersistedParentIsMaterializedByDownstreamCollect(t *testing.T) {
	eng := newTestEngine()
	persisted := Persist(Parallelize(ints(6), 3), MemoryOnly)
	doubled := MapPartitions(persisted, func(_ *TaskContext, in iter.Seq[int]) (iter.Seq[int], error) {
		var out []int
		for v := range in {
			out = append(out, 2*v)
		}
		return slices.Values(out), nil
	})
	_, err := Collect(context.Background(), eng, doubled)
	require.NoError(t, err)
	assert.Equal(t, Unmaterialized, eng.State(doubled.ID()))
	assert.Equal(t, Materialized, eng.State(persisted.ID()))

	eng.Unpersist(persisted.ID())
	assert.Equal(t, Unmaterialized, eng.State(persisted.ID()))
}

func TestUnpersistedDatasetIsNotRetained(t *testing.T) {
	eng := newTestEngine()
	ds := Parallelize(ints(6), 2)
	_, err := Collect(context.Background(), eng, ds)
	require.NoError(t, err)
	assert.Equal(t, Unmaterialized, eng.State(ds.ID()))
	assert.Same(t, ds, Persist(ds, StorageNone))
}

func TestEvictedDatasetIsUnmaterialized(t *testing.T) {
	eng := newTestEngine(WithCacheMaxMem(1))
	persisted := Persist(Parallelize(ints(6), 2), MemoryOnly)
	_, err := Collect(context.Background(), eng, persisted)
	require.NoError(t, err)
	assert.Equal(t, Unmaterialized, eng.State(persisted.ID()))
}

func TestComputeFailureIsReturnedUnchanged(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	boom := errors.New("boom")
	m := NewMockIntDataset(ctrl)
	m.EXPECT().ID().Return(GUID("mock")).AnyTimes()
	m.EXPECT().Partitions().Return(partitions(2)).AnyTimes()
	m.EXPECT().StorageLevel().Return(StorageNone).AnyTimes()
	m.EXPECT().Compute(gomock.Any(), Partition{Index: 0}).Return(slices.Values([]int{1}), nil).MaxTimes(1)
	m.EXPECT().Compute(gomock.Any(), Partition{Index: 1}).Return(nil, boom)

	eng := newTestEngine()
	_, err := Collect(context.Background(), eng, m)
	require.Equal(t, boom, err)
	assert.Equal(t, Unmaterialized, eng.State("mock"))
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Collect(ctx, newTestEngine(), Parallelize(ints(6), 3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestTracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	eng := newTestEngine(WithTracerProvider(tp))
	_, err := Collect(context.Background(), eng, Parallelize(ints(6), 3))
	require.NoError(t, err)

	var collect sdktrace.ReadOnlySpan
	tasks := 0
	for _, s := range sr.Ended() {
		switch s.Name() {
		case "dataflow.collect":
			collect = s
		case "dataflow.task":
			tasks++
		}
	}
	require.NotNil(t, collect)
	assert.Equal(t, 3, tasks)
	for _, s := range sr.Ended() {
		if s.Name() == "dataflow.task" {
			assert.Equal(t, collect.SpanContext().SpanID(), s.Parent().SpanID())
		}
	}
}

func TestTracingRecordsFailure(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	eng := newTestEngine(WithTracerProvider(tp))
	failing := MapPartitions(Parallelize(ints(2), 1), func(*TaskContext, iter.Seq[int]) (iter.Seq[int], error) {
		return nil, errors.New("no luck")
	})
	_, err := Collect(context.Background(), eng, failing)
	require.Error(t, err)
	for _, s := range sr.Ended() {
		assert.Equal(t, codes.Error, s.Status().Code, s.Name())
	}
}

func TestParseStorageLevel(t *testing.T) {
	l, err := ParseStorageLevel("memory_only")
	require.NoError(t, err)
	assert.Equal(t, MemoryOnly, l)
	l, err = ParseStorageLevel("")
	require.NoError(t, err)
	assert.Equal(t, StorageNone, l)
	_, err = ParseStorageLevel("disk")
	assert.True(t, errors.Is(err, errors.NotValid))
}
