package storeprovider

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bravellian/platform-sub002/clock"
	"github.com/bravellian/platform-sub002/internal/concurrency"
)

// Discoverer enumerates the currently-reachable stores, keyed by the
// caller's choice of stable identifier (e.g. a tenant or database name).
type Discoverer[S comparable] func(ctx context.Context) (map[string]S, error)

// Deployer optionally prepares a newly-discovered store (e.g. running
// schema.EnsureAll against it) before it is admitted to the rotation. A
// store whose Deployer call fails is not admitted this round; it is
// retried on the next discovery tick.
type Deployer[S comparable] func(ctx context.Context, store S) error

// Dynamic is a Provider that periodically re-runs a Discoverer and caches
// the result, admitting new stores (optionally gated by a Deployer) and
// dropping stores that disappeared. Claims already in flight against a
// dropped store are not interrupted — Dynamic only affects future
// selection, never existing leases or claims.
type Dynamic[S comparable] struct {
	discover Discoverer[S]
	deploy   Deployer[S]
	interval time.Duration
	clock    clock.Clock
	log      *slog.Logger

	task concurrency.TimerTask

	mu     sync.RWMutex
	keys   []string
	byKey  map[string]S
	stores []S
}

// DefaultDiscoveryInterval matches spec.md §4.5's "interval ~5 minutes".
const DefaultDiscoveryInterval = 5 * time.Minute

// NewDynamic constructs a Dynamic provider. deploy may be nil to admit
// newly-discovered stores unconditionally. c paces re-discovery; nil
// defaults to clock.System, and tests inject a clock.Fake to drive
// discovery ticks without sleeping real time.
func NewDynamic[S comparable](discover Discoverer[S], deploy Deployer[S], interval time.Duration, log *slog.Logger, c clock.Clock) *Dynamic[S] {
	if interval <= 0 {
		interval = DefaultDiscoveryInterval
	}
	if c == nil {
		c = clock.System
	}
	return &Dynamic[S]{
		discover: discover,
		deploy:   deploy,
		interval: interval,
		clock:    c,
		log:      log,
		byKey:    make(map[string]S),
	}
}

// Start begins periodic re-discovery, running one discovery pass
// immediately so GetAllStores is populated before the first tick.
func (d *Dynamic[S]) Start(ctx context.Context) error {
	d.refresh(ctx)
	d.task.Start(ctx, d.refresh, d.interval, d.clock)
	return nil
}

// Stop halts the discovery loop. It does not affect already-cached
// stores; callers that want to stop serving stores entirely should
// discard the Dynamic instance after Stop returns.
func (d *Dynamic[S]) Stop() concurrency.DoneChan {
	return d.task.Stop()
}

func (d *Dynamic[S]) refresh(ctx context.Context) {
	discovered, err := d.discover(ctx)
	if err != nil {
		d.log.Error("store discovery failed", "err", err)
		return
	}

	admitted := make(map[string]S, len(discovered))
	for key, store := range discovered {
		d.mu.RLock()
		_, known := d.byKey[key]
		d.mu.RUnlock()
		if !known && d.deploy != nil {
			if err := d.deploy(ctx, store); err != nil {
				d.log.Error("store deploy failed, skipping admission", "key", key, "err", err)
				continue
			}
		}
		admitted[key] = store
	}

	keys := make([]string, 0, len(admitted))
	stores := make([]S, 0, len(admitted))
	for k, v := range admitted {
		keys = append(keys, k)
		stores = append(stores, v)
	}

	d.mu.Lock()
	d.keys = keys
	d.byKey = admitted
	d.stores = stores
	d.mu.Unlock()
}

func (d *Dynamic[S]) GetAllStores(context.Context) ([]S, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]S(nil), d.stores...), nil
}

func (d *Dynamic[S]) GetStoreByKey(_ context.Context, key string) (S, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.byKey[key]
	return v, ok, nil
}

func (d *Dynamic[S]) GetStoreIdentifier(store S) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, k := range d.keys {
		if d.byKey[k] == store {
			return k
		}
	}
	return ""
}

var _ Provider[int] = (*Dynamic[int])(nil)
