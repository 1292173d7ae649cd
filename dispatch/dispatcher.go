// Package dispatch implements the dispatcher (C7): polls a store for
// claimable work, resolves a handler by topic, and settles each row as
// Ack, Abandon (with backoff), or Fail, generalizing the teacher's
// Worker into a store-provider-driven, generic-over-id loop.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bravellian/platform-sub002/clock"
	"github.com/bravellian/platform-sub002/gate"
	"github.com/bravellian/platform-sub002/internal/concurrency"
	"github.com/bravellian/platform-sub002/lifecycle"
	"github.com/bravellian/platform-sub002/metrics"
	"github.com/bravellian/platform-sub002/queue"
	"github.com/bravellian/platform-sub002/storeprovider"
)

// Config configures a Dispatcher.
type Config struct {
	MaxAttempts  uint32
	BatchSize    int
	PollInterval time.Duration
	LeaseSeconds time.Duration
	Backoff      BackoffConfig

	// Metrics receives per-topic claim/ack/fail/abandon counters and
	// handler-latency histograms. Nil defaults to metrics.Noop().
	Metrics metrics.Sink

	// Clock paces the polling loop. Nil defaults to clock.System; tests
	// inject a clock.Fake to drive PollInterval without sleeping.
	Clock clock.Clock
}

// Dispatcher implements the RunOnce algorithm of spec.md §4.3 over a
// store provider, generic over the row id type.
type Dispatcher[I comparable] struct {
	lifecycle.Base

	provider storeprovider.Provider[queue.Client[I]]
	strategy storeprovider.Strategy[queue.Client[I]]
	resolver *HandlerResolver[I]
	cfg      Config
	log      *slog.Logger
	clock    clock.Clock
	metrics  metrics.Sink
	gate     *gate.Gate

	task concurrency.TimerTask
}

// New constructs a Dispatcher. gate may be nil, in which case the
// dispatcher never waits for schema readiness before its first tick.
func New[I comparable](
	provider storeprovider.Provider[queue.Client[I]],
	resolver *HandlerResolver[I],
	cfg Config,
	log *slog.Logger,
	g *gate.Gate,
) *Dispatcher[I] {
	if cfg.Backoff == (BackoffConfig{}) {
		cfg.Backoff = DefaultBackoff()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Noop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System
	}
	return &Dispatcher[I]{
		provider: provider,
		strategy: &storeprovider.RoundRobin[queue.Client[I]]{},
		resolver: resolver,
		cfg:      cfg,
		log:      log,
		clock:    cfg.Clock,
		metrics:  cfg.Metrics,
		gate:     g,
	}
}

// Start begins the outer polling loop: await schema readiness once, then
// loop RunOnce on PollInterval using the monotonic clock until Stop.
func (d *Dispatcher[I]) Start(ctx context.Context) error {
	if err := d.TryStart(); err != nil {
		return err
	}
	go func() {
		if d.gate != nil {
			state, err := d.gate.Await(ctx)
			if state == gate.Cancelled {
				return
			}
			if state == gate.Failed {
				d.log.Warn("schema gate failed, proceeding anyway", "err", err)
			}
		}
		d.task.Start(ctx, d.tick, d.cfg.PollInterval, d.clock)
	}()
	return nil
}

func (d *Dispatcher[I]) tick(ctx context.Context) {
	if _, err := d.RunOnce(ctx, d.cfg.BatchSize); err != nil {
		d.log.Error("dispatcher run failed", "err", err)
	}
}

// Stop halts the polling loop, waiting up to timeout for the in-flight
// tick to finish.
func (d *Dispatcher[I]) Stop(timeout time.Duration) error {
	return d.TryStop(timeout, d.task.Stop)
}

// RunOnce performs one claim/dispatch/settle cycle and returns the total
// number of rows claimed (successful and failed combined), per spec.md
// §4.3 steps 1-8.
func (d *Dispatcher[I]) RunOnce(ctx context.Context, batchSize int) (int, error) {
	store, ok, err := storeprovider.Pick(ctx, d.provider, d.strategy)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	ownerToken := uuid.New()
	rows, err := store.Claim(ctx, ownerToken, d.cfg.LeaseSeconds, batchSize)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	for _, row := range rows {
		d.metrics.IncCounter("dispatch_claimed_total", "topic", row.Topic)
	}

	var succeeded []I
	var succeededTopics []string
	var failed []failure[I]

	for _, row := range rows {
		start := time.Now()
		handler, ok := d.resolver.Resolve(row.Topic)
		if !ok {
			failed = append(failed, failure[I]{id: row.Id, topic: row.Topic, attempts: row.Attempts, errMsg: "no handler registered for topic " + row.Topic, permanent: true})
			continue
		}
		err := handler.Handle(ctx, row)
		d.metrics.ObserveDuration("dispatch_handle_duration_seconds", time.Since(start), "topic", row.Topic)
		if err != nil {
			failed = append(failed, failure[I]{id: row.Id, topic: row.Topic, attempts: row.Attempts, errMsg: err.Error()})
			continue
		}
		succeeded = append(succeeded, row.Id)
		succeededTopics = append(succeededTopics, row.Topic)
	}

	if len(succeeded) > 0 {
		if err := store.Ack(ctx, ownerToken, succeeded); err != nil {
			d.log.Error("ack failed", "count", len(succeeded), "err", err)
		} else {
			for _, topic := range succeededTopics {
				d.metrics.IncCounter("dispatch_acked_total", "topic", topic)
			}
		}
	}

	var errs []error
	for _, f := range failed {
		if f.permanent || f.attempts+1 > d.cfg.MaxAttempts {
			if err := store.Fail(ctx, ownerToken, []I{f.id}, f.errMsg); err != nil {
				errs = append(errs, err)
				continue
			}
			d.metrics.IncCounter("dispatch_failed_total", "topic", f.topic)
			continue
		}
		delay := d.cfg.Backoff.Next(f.attempts)
		if err := store.Abandon(ctx, ownerToken, []I{f.id}, f.errMsg, delay); err != nil {
			errs = append(errs, err)
			continue
		}
		d.metrics.IncCounter("dispatch_abandoned_total", "topic", f.topic)
	}

	return len(rows), errors.Join(errs...)
}

type failure[I comparable] struct {
	id       I
	topic    string
	attempts uint32
	errMsg   string
	// permanent marks a failure that retrying cannot fix (no handler for
	// the topic); such rows are failed regardless of attempts.
	permanent bool
}
