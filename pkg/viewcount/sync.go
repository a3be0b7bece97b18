package viewcount

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/inkpress/coord/pkg/logger"
	"github.com/inkpress/coord/pkg/metrics"
	"github.com/inkpress/coord/pkg/queue"
)

// TaskName is the periodic task name of the sync job.
const TaskName = "viewcount.sync"

// Result reports one sync run.
type Result struct {
	Processed  int           `json:"processed"`
	Added      int64         `json:"added"`
	Errors     int           `json:"errors"`
	DurationMs int64         `json:"durationMs"`
	Duration   time.Duration `json:"-"`
}

// Syncer flushes the view buffer into the counter.
//
// Every entity is updated and drained on its own: a failed entity keeps its
// buffered amount for the next run and never blocks the rest of the batch.
// Only the synced amount is drained, so a re-run after a partial failure
// never counts a view twice.
type Syncer struct {
	buffer     *Buffer
	counter    Counter
	batchSize  int
	batchDelay time.Duration
	logger     *slog.Logger
	now        func() time.Time

	running sync.Mutex

	runs     prometheus.Counter
	synced   prometheus.Counter
	failures prometheus.Counter
	duration prometheus.Histogram
}

type SyncerOption func(*Syncer)

func WithSyncerLogger(l *slog.Logger) SyncerOption {
	return func(s *Syncer) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithSyncerClock(now func() time.Time) SyncerOption {
	return func(s *Syncer) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSyncerRegisterer exports run, entity, error and duration metrics.
func WithSyncerRegisterer(reg prometheus.Registerer) SyncerOption {
	return func(s *Syncer) {
		s.runs = metrics.Register(reg, s.runs)
		s.synced = metrics.Register(reg, s.synced)
		s.failures = metrics.Register(reg, s.failures)
		s.duration = metrics.Register(reg, s.duration)
	}
}

func NewSyncer(cfg Config, buffer *Buffer, counter Counter, opts ...SyncerOption) (*Syncer, error) {
	if counter == nil {
		return nil, ErrCounterNil
	}
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}

	s := &Syncer{
		buffer:     buffer,
		counter:    counter,
		batchSize:  cfg.BatchSize,
		batchDelay: cfg.BatchDelay,
		logger:     slog.Default(),
		now:        time.Now,
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace, Subsystem: "viewcount",
			Name: "sync_runs_total", Help: "Completed view sync runs.",
		}),
		synced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace, Subsystem: "viewcount",
			Name: "synced_entities_total", Help: "Entities whose buffered views were persisted.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace, Subsystem: "viewcount",
			Name: "sync_errors_total", Help: "Entities that failed to sync.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metrics.Namespace, Subsystem: "viewcount",
			Name: "sync_duration_seconds", Help: "Duration of view sync runs.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("viewcount"))
	return s, nil
}

// Run syncs everything currently buffered. Concurrent calls are serialized.
// Per-entity failures are counted in the result, not returned; the error is
// reserved for failing to read the buffer or a cancelled context.
func (s *Syncer) Run(ctx context.Context) (res Result, err error) {
	s.running.Lock()
	defer s.running.Unlock()

	start := s.now()
	defer func() {
		res.Duration = s.now().Sub(start)
		res.DurationMs = res.Duration.Milliseconds()
		s.runs.Inc()
		s.duration.Observe(res.Duration.Seconds())
	}()

	pending, err := s.buffer.Pending(ctx)
	if err != nil {
		return res, err
	}

	ids := make([]string, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var added atomic.Int64
	var failed atomic.Int32
	for i, batch := range chunk(ids, s.batchSize) {
		if i > 0 && s.batchDelay > 0 {
			select {
			case <-ctx.Done():
				res.Added, res.Errors = added.Load(), int(failed.Load())
				return res, ctx.Err()
			case <-time.After(s.batchDelay):
			}
		}

		var g errgroup.Group
		for _, id := range batch {
			amount := pending[id]
			g.Go(func() error {
				if err := s.syncOne(ctx, id, amount); err != nil {
					failed.Add(1)
					return nil
				}
				added.Add(amount)
				return nil
			})
		}
		_ = g.Wait()
		res.Processed += len(batch)
	}

	res.Added, res.Errors = added.Load(), int(failed.Load())
	s.synced.Add(float64(res.Processed - res.Errors))
	s.failures.Add(float64(res.Errors))

	s.logger.LogAttrs(ctx, slog.LevelInfo, "view sync finished",
		slog.Int("processed", res.Processed),
		slog.Int64("added", res.Added),
		slog.Int("errors", res.Errors),
		logger.Duration(s.now().Sub(start)),
	)
	return res, nil
}

func (s *Syncer) syncOne(ctx context.Context, id string, amount int64) error {
	err := s.counter.Add(ctx, id, amount)
	if err != nil && !errors.Is(err, ErrEntityNotFound) {
		s.logger.LogAttrs(ctx, slog.LevelError, "failed to sync views",
			logger.EntityID(id),
			logger.Count(amount),
			logger.Error(err),
		)
		return err
	}

	// Views of deleted entities are dropped from the buffer but still
	// reported as an error.
	if derr := s.buffer.Drain(ctx, id, amount); derr != nil {
		s.logger.LogAttrs(ctx, slog.LevelError, "failed to drain view buffer",
			logger.EntityID(id),
			logger.Count(amount),
			logger.Error(derr),
		)
		return derr
	}
	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "dropped views of missing entity",
			logger.EntityID(id),
			logger.Count(amount),
		)
	}
	return err
}

// Handler runs the sync as the periodic queue task TaskName.
func (s *Syncer) Handler() queue.Handler {
	return queue.NewPeriodicTaskHandler(TaskName, func(ctx context.Context) error {
		_, err := s.Run(ctx)
		return err
	})
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
