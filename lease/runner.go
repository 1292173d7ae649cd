package lease

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bravellian/platform-sub002/clock"
	"github.com/bravellian/platform-sub002/metrics"
)

// DefaultRenewPercent is the fraction of the lease duration at which a
// Runner fires its renewal timer (spec.md §4.2: "typically 0.6").
const DefaultRenewPercent = 0.6

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	LeaseDuration time.Duration
	// RenewPercent defaults to DefaultRenewPercent if zero.
	RenewPercent float64
	// Jitter adds up to this extra random delay to each renewal tick, to
	// avoid synchronized renewal storms across many runners.
	Jitter time.Duration

	// Metrics records lease acquisition/renewal/loss counters. Nil
	// defaults to metrics.Noop().
	Metrics metrics.Sink

	// Clock timestamps renewal log lines. Nil defaults to clock.System.
	Clock clock.Clock
}

// Runner is the in-process owner of a live lease (C5). It auto-renews on
// a timer and exposes a cancellation channel that closes exactly once
// when the lease is lost.
type Runner struct {
	svc      Service
	resource string
	owner    uuid.UUID
	cfg      RunnerConfig
	log      *slog.Logger
	clock    clock.Clock
	metrics  metrics.Sink
	fencing  atomic.Int64
	lost     chan struct{}
	lostOnce atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// Acquire attempts to take resource for ownerToken and, on success,
// starts a Runner that renews it in the background. It returns (nil, nil)
// if the resource is held by someone else.
func Acquire(ctx context.Context, svc Service, resource string, ownerToken uuid.UUID, cfg RunnerConfig, log *slog.Logger) (*Runner, error) {
	if cfg.RenewPercent <= 0 {
		cfg.RenewPercent = DefaultRenewPercent
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Noop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System
	}
	acquired, fencingToken, err := svc.Acquire(ctx, resource, ownerToken, cfg.LeaseDuration, nil)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, nil
	}
	r := &Runner{
		svc:      svc,
		resource: resource,
		owner:    ownerToken,
		cfg:      cfg,
		log:      log,
		clock:    cfg.Clock,
		metrics:  cfg.Metrics,
		lost:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	r.fencing.Store(fencingToken)
	r.metrics.IncCounter("lease_acquired_total", "resource", resource)
	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go r.renewLoop(runCtx)
	return r, nil
}

func (r *Runner) renewLoop(ctx context.Context) {
	defer close(r.done)
	interval := time.Duration(float64(r.cfg.LeaseDuration) * r.cfg.RenewPercent)
	if interval <= 0 {
		interval = r.cfg.LeaseDuration / 2
	}
	for {
		wait := interval
		if r.cfg.Jitter > 0 {
			wait += time.Duration(rand.Int64N(int64(r.cfg.Jitter)))
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if !r.tryRenew(ctx) {
			r.markLost()
			return
		}
	}
}

func (r *Runner) tryRenew(ctx context.Context) bool {
	renewed, fencingToken, err := r.svc.Renew(ctx, r.resource, r.owner, r.cfg.LeaseDuration)
	if err != nil {
		r.log.Error("lease renewal failed", "resource", r.resource, "at", r.clock.Now(), "err", err)
		return false
	}
	if !renewed {
		r.log.Warn("lease renewal rejected, resource no longer owned", "resource", r.resource, "at", r.clock.Now())
		return false
	}
	r.fencing.Store(fencingToken)
	r.metrics.IncCounter("lease_renewed_total", "resource", r.resource)
	return true
}

func (r *Runner) markLost() {
	if r.lostOnce.CompareAndSwap(false, true) {
		r.log.Warn("lease lost", "resource", r.resource, "owner", r.owner, "at", r.clock.Now())
		r.metrics.IncCounter("lease_lost_total", "resource", r.resource)
		close(r.lost)
	}
}

// FencingToken returns the most recently observed fencing token.
func (r *Runner) FencingToken() int64 {
	return r.fencing.Load()
}

// CancellationSignal is closed exactly once when the lease is lost.
func (r *Runner) CancellationSignal() <-chan struct{} {
	return r.lost
}

// ThrowIfLost returns a LostError if the lease has been lost. Borrowers
// must call this before any externally-visible action.
func (r *Runner) ThrowIfLost() error {
	select {
	case <-r.lost:
		return &LostError{Resource: r.resource, OwnerToken: fmt.Sprint(r.owner)}
	default:
		return nil
	}
}

// TryRenewNow forces an immediate renewal attempt outside the regular
// timer cadence, e.g. right before a critical section.
func (r *Runner) TryRenewNow(ctx context.Context) error {
	if err := r.ThrowIfLost(); err != nil {
		return err
	}
	if !r.tryRenew(ctx) {
		r.markLost()
		return &LostError{Resource: r.resource, OwnerToken: fmt.Sprint(r.owner)}
	}
	return nil
}

// Dispose stops the renewal timer and best-effort releases the lease.
// Loss of connectivity during disposal is tolerated; the lease will
// simply expire naturally.
func (r *Runner) Dispose(ctx context.Context) {
	r.cancel()
	<-r.done
	if r.ThrowIfLost() != nil {
		return
	}
	_ = r.svc.Release(ctx, r.resource, r.owner)
}
