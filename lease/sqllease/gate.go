package sqllease

import (
	"context"
	"sync"
	"time"

	"github.com/bravellian/platform-sub002/lease"
)

// gate is the optional coarse application-level mutex serializing
// upserts per resource name under extreme contention, per spec.md §4.2 /
// §5. It is opt-in because it serializes otherwise-independent resource
// acquisitions; Service only consults it when configured with a positive
// gate timeout.
type gate struct {
	locks sync.Map // map[string]chan struct{}
}

func (g *gate) acquire(ctx context.Context, resource string, timeout time.Duration) (func(), error) {
	chAny, _ := g.locks.LoadOrStore(resource, make(chan struct{}, 1))
	ch := chAny.(chan struct{})
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timer.C:
		return nil, &lease.GateTimeoutError{Resource: resource}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
