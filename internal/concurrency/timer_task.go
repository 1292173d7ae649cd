package concurrency

import (
	"context"
	"time"

	"github.com/bravellian/platform-sub002/clock"
)

// TimerHandler is invoked on every tick of a TimerTask.
type TimerHandler func(context.Context)

// TimerTask runs h once immediately and then on a fixed cadence measured
// against a clock.Clock, per the outer polling-loop algorithm: record
// next_tick := now + interval, run the handler, sleep for
// max(0, next_tick - now). Using a monotonic clock.Clock instead of a bare
// time.Ticker means a wall-clock jump (DST, NTP step) or a fake clock
// swapped in for tests never wedges the loop or causes a burst of ticks.
type TimerTask struct {
	cancel context.CancelFunc
	done   DoneChan
	clock  clock.Clock
}

func (t *TimerTask) do(ctx context.Context, h TimerHandler, interval time.Duration) {
	defer close(t.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		nextTick := t.clock.Now().Add(interval)
		h(ctx)
		sleep := nextTick.Sub(t.clock.Now())
		if sleep < 0 {
			sleep = 0
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Start begins the background loop. If c is nil, clock.System is used.
func (t *TimerTask) Start(ctx context.Context, h TimerHandler, interval time.Duration, c clock.Clock) {
	if c == nil {
		c = clock.System
	}
	t.clock = c
	t.done = make(DoneChan)
	ctx, t.cancel = context.WithCancel(ctx)
	go t.do(ctx, h, interval)
}

// Stop cancels the loop and returns a channel closed once the current
// handler invocation (if any) returns. Safe to call before Start: the
// loop is then a no-op and Stop returns a channel that's already closed.
func (t *TimerTask) Stop() DoneChan {
	if t.cancel == nil {
		done := make(DoneChan)
		close(done)
		return done
	}
	t.cancel()
	return t.done
}
