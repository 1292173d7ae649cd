// Package retention implements periodic cleanup of terminal queue rows:
// a background worker that deletes Done/Failed rows
// past a configurable age so outbox, inbox, timer and job-run tables
// don't grow without bound.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/bravellian/platform-sub002/clock"
	"github.com/bravellian/platform-sub002/internal/concurrency"
	"github.com/bravellian/platform-sub002/lifecycle"
	"github.com/bravellian/platform-sub002/metrics"
	"github.com/bravellian/platform-sub002/queue"
)

// Cleaner deletes terminal rows from one queue store. queue.Client
// satisfies this directly via its Clean method.
type Cleaner interface {
	Clean(ctx context.Context, status queue.Status, before *time.Time) (int64, error)
}

// Config controls one Worker's schedule and filter.
type Config struct {
	// Status restricts deletion to one terminal status; queue.Unknown
	// means both Done and Failed.
	Status queue.Status

	// Interval is how often the worker runs.
	Interval time.Duration

	// Before, when true, restricts deletion to rows whose LastSeenAt is
	// at or before now-Delta. When false, every row matching Status is
	// eligible regardless of age.
	Before bool
	Delta  time.Duration

	// Metrics records a cleanup run counter and a cleanup-duration
	// histogram. Nil defaults to metrics.Noop().
	Metrics metrics.Sink

	// Clock is consulted by beforeStamp's now-Delta cutoff. Nil defaults
	// to clock.System; tests inject a clock.Fake to exercise age-based
	// cleanup without sleeping real time.
	Clock clock.Clock
}

// Worker periodically invokes a Cleaner according to Config. It has the
// platform's standard start-once/stop-once lifecycle.
type Worker struct {
	lifecycle.Base

	cleaner Cleaner
	cfg     Config
	log     *slog.Logger
	clock   clock.Clock
	metrics metrics.Sink
	task    concurrency.TimerTask
}

// NewWorker constructs a Worker. It is not started automatically.
func NewWorker(cleaner Cleaner, cfg Config, log *slog.Logger) *Worker {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Noop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System
	}
	return &Worker{
		cleaner: cleaner,
		cfg:     cfg,
		log:     log,
		clock:   cfg.Clock,
		metrics: cfg.Metrics,
	}
}

func (w *Worker) beforeStamp() *time.Time {
	if !w.cfg.Before {
		return nil
	}
	t := w.clock.Now()
	if w.cfg.Delta != 0 {
		t = t.Add(-w.cfg.Delta)
	}
	return &t
}

// CleanOnce runs one cleanup pass directly, without the background
// loop's cadence, so tests can drive it against an injected clock.Fake.
func (w *Worker) CleanOnce(ctx context.Context) (int64, error) {
	before := w.beforeStamp()
	start := time.Now()
	n, err := w.cleaner.Clean(ctx, w.cfg.Status, before)
	w.metrics.ObserveDuration("retention_cleanup_duration_seconds", time.Since(start))
	if err != nil {
		w.log.Error("retention cleanup failed", "err", err)
		return 0, err
	}
	w.metrics.IncCounter("retention_cleanup_runs_total")
	w.log.Info("retention cleanup removed rows", "count", n)
	return n, nil
}

func (w *Worker) clean(ctx context.Context) {
	_, _ = w.CleanOnce(ctx)
}

// Start begins periodic cleanup. It returns lifecycle.ErrDoubleStarted if
// already running.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.TryStart(); err != nil {
		return err
	}
	w.task.Start(ctx, w.clean, w.cfg.Interval, w.clock)
	return nil
}

// Stop halts the worker, waiting up to timeout for the in-flight cleanup
// pass (if any) to finish.
func (w *Worker) Stop(timeout time.Duration) error {
	return w.TryStop(timeout, w.task.Stop)
}
