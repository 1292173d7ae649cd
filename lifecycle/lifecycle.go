// Package lifecycle provides the strict start/stop-once state machine
// shared by the platform's long-running loops: dispatch.Dispatcher,
// scheduler.Planner and retention.Worker all embed Base so they start
// exactly once and stop exactly once, with a bounded wait for graceful
// shutdown. lease.Runner does not embed Base; it is started by
// lease.Acquire and stopped by Runner.Dispose.
package lifecycle

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/bravellian/platform-sub002/internal/concurrency"
)

const (
	stopped = iota
	started
)

var (
	// ErrDoubleStarted is returned when Start is called on a component
	// that has already been started.
	ErrDoubleStarted = errors.New("component double start")

	// ErrDoubleStopped is returned when Stop is called on a component
	// that is not currently running.
	ErrDoubleStopped = errors.New("component double stop")

	// ErrStopTimeout is returned when a component fails to shut down
	// within the provided timeout during Stop. The component may still
	// be terminating in the background.
	ErrStopTimeout = errors.New("component stop timeout")
)

// Base implements the start-once/stop-once guard. Embed it and call
// TryStart/TryStop from the component's own Start/Stop methods.
type Base struct {
	state atomic.Int32
}

func (b *Base) TryStart() error {
	if !b.state.CompareAndSwap(stopped, started) {
		return ErrDoubleStarted
	}
	return nil
}

func (b *Base) TryStop(timeout time.Duration, df concurrency.DoneFunc) error {
	if !b.state.CompareAndSwap(started, stopped) {
		return ErrDoubleStopped
	}
	done := df()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}
