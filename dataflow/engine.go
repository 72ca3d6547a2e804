package dataflow

import (
	"context"
	"log/slog"
	"runtime"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const tracerName = "github.com/XinhuiTian/spark/dataflow"

// DefaultCacheMaxMem is the block cache limit when none is configured.
const DefaultCacheMaxMem = 1024 * 1024 * 1024

// Engine materializes datasets. Partitions are computed in parallel by up
// to Parallelism goroutines.
type Engine struct {
	parallelism int
	cache       *BlockCache
	logger      *slog.Logger
	tracer      trace.Tracer

	mu       sync.Mutex
	states   map[GUID]stateRecord
	shuffles singleflight.Group
}

type stateRecord struct {
	state         State
	numPartitions int
	retained      bool
}

type Option func(*engineOptions)

type engineOptions struct {
	parallelism    int
	cacheMaxMem    int
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
}

func WithParallelism(n int) Option {
	return func(o *engineOptions) { o.parallelism = n }
}

func WithCacheMaxMem(bytes int) Option {
	return func(o *engineOptions) { o.cacheMaxMem = bytes }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *engineOptions) { o.logger = l }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *engineOptions) { o.tracerProvider = tp }
}

func NewEngine(opts ...Option) *Engine {
	o := engineOptions{
		parallelism: runtime.NumCPU(),
		cacheMaxMem: DefaultCacheMaxMem,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.parallelism < 1 {
		o.parallelism = 1
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	return &Engine{
		parallelism: o.parallelism,
		cache:       NewBlockCache(o.cacheMaxMem, o.logger),
		logger:      o.logger,
		tracer:      o.tracerProvider.Tracer(tracerName),
		states:      make(map[GUID]stateRecord),
	}
}

func (e *Engine) Cache() *BlockCache {
	return e.cache
}

// State reports whether the partitions of a dataset are resident.
// Only persisted datasets stay Materialized after the request that computed
// them, whether they were collected directly or read by a downstream dataset.
func (e *Engine) State(id GUID) State {
	e.mu.Lock()
	rec := e.states[id]
	e.mu.Unlock()
	switch {
	case rec.state == Materializing:
		return Materializing
	case rec.retained && e.cache.Has(id, rec.numPartitions):
		return Materialized
	default:
		// Never computed, unpersisted, or some blocks were evicted.
		return Unmaterialized
	}
}

// noteRetained records that a block of a persisted dataset entered the cache.
func (e *Engine) noteRetained(id GUID, numPartitions int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.states[id]
	rec.numPartitions = numPartitions
	rec.retained = true
	e.states[id] = rec
}

func (e *Engine) setState(id GUID, rec stateRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states[id] = rec
}

// Unpersist drops the retained partitions of a dataset.
func (e *Engine) Unpersist(id GUID) {
	e.cache.Remove(id)
	e.setState(id, stateRecord{state: Unmaterialized})
}

// Clear drops all cached blocks and shuffle outputs.
func (e *Engine) Clear() {
	e.cache.Clear()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states = make(map[GUID]stateRecord)
}

// runTasks computes every partition of ds and passes the results to sink.
// The first failure, from a task or from sink, cancels the remaining tasks
// and is returned unchanged.
func runTasks[T any](ctx context.Context, e *Engine, ds Dataset[T], sink func(i int, items []T) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i, p := range ds.Partitions() {
		g.Go(func() error {
			tctx, span := e.tracer.Start(gctx, "dataflow.task",
				trace.WithAttributes(attribute.Int("partition", p.Index)))
			defer span.End()
			e.logger.Debug("computing partition", "dataset", ds.ID(), "partition", p.Index)
			tc := &TaskContext{ctx: tctx, engine: e, partition: p.Index}
			seq, err := Iterator(tc, ds, p)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return err
			}
			return sink(i, slices.Collect(seq))
		})
	}
	return g.Wait()
}

// CollectPartitions materializes ds and returns its partitions in order.
func CollectPartitions[T any](ctx context.Context, e *Engine, ds Dataset[T]) ([][]T, error) {
	id := ds.ID()
	numPartitions := len(ds.Partitions())
	ctx, span := e.tracer.Start(ctx, "dataflow.collect", trace.WithAttributes(
		attribute.String("dataset", string(id)),
		attribute.Int("partitions", numPartitions)))
	defer span.End()
	e.setState(id, stateRecord{state: Materializing, numPartitions: numPartitions})
	out := make([][]T, numPartitions)
	err := runTasks(ctx, e, ds, func(i int, items []T) error {
		out[i] = items
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.setState(id, stateRecord{state: Unmaterialized})
		return nil, err
	}
	retained := ds.StorageLevel() != StorageNone
	if retained {
		e.setState(id, stateRecord{state: Materialized, numPartitions: numPartitions, retained: true})
	} else {
		e.setState(id, stateRecord{state: Unmaterialized})
	}
	return out, nil
}

// Collect materializes ds and concatenates its partitions.
func Collect[T any](ctx context.Context, e *Engine, ds Dataset[T]) ([]T, error) {
	parts, err := CollectPartitions(ctx, e, ds)
	if err != nil {
		return nil, err
	}
	return slices.Concat(parts...), nil
}

// Count materializes ds and returns the number of records.
func Count[T any](ctx context.Context, e *Engine, ds Dataset[T]) (int, error) {
	parts, err := CollectPartitions(ctx, e, ds)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	return n, nil
}
