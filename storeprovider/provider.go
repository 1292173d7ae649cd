// Package storeprovider implements the store-provider abstraction (C9):
// a read-only, possibly time-varying list of per-tenant stores with a
// pluggable selection strategy for picking one on each dispatcher tick.
package storeprovider

import (
	"context"
	"sync/atomic"
)

// Provider presents a read-only list of stores, one per tenant or
// database, that may change over time.
type Provider[S any] interface {
	// GetAllStores returns the current set of admitted stores.
	GetAllStores(ctx context.Context) ([]S, error)

	// GetStoreByKey returns the store identified by key, or the zero
	// value and false if no such store is currently admitted.
	GetStoreByKey(ctx context.Context, key string) (S, bool, error)

	// GetStoreIdentifier returns the stable key a store was admitted
	// under, the inverse of GetStoreByKey.
	GetStoreIdentifier(store S) string
}

// Strategy picks one store out of a non-empty slice.
type Strategy[S any] interface {
	Select(stores []S) S
}

// RoundRobin is the default selection strategy: a per-call monotonic
// index wrapped modulo the current store count. It bounds tail latency
// across tenants but makes no cross-tenant fairness guarantee beyond
// eventual service, since the store set can change between calls.
type RoundRobin[S any] struct {
	counter atomic.Uint64
}

func (r *RoundRobin[S]) Select(stores []S) S {
	n := uint64(len(stores))
	i := r.counter.Add(1) - 1
	return stores[i%n]
}

// Pick is a convenience wrapper combining a Provider and a Strategy: the
// shape dispatch.Dispatcher actually calls once per RunOnce.
func Pick[S any](ctx context.Context, p Provider[S], s Strategy[S]) (S, bool, error) {
	var zero S
	stores, err := p.GetAllStores(ctx)
	if err != nil {
		return zero, false, err
	}
	if len(stores) == 0 {
		return zero, false, nil
	}
	return s.Select(stores), true, nil
}
