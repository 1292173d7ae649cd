// Package concurrency holds the small goroutine-lifecycle primitives shared
// by the platform's polling loops: the dispatcher, the scheduler planner,
// the retention worker and the dynamic store provider all start and stop
// the same way. The lease runner runs its own renewal loop instead.
package concurrency

import "sync"

// DoneChan is closed once to signal completion.
type DoneChan chan struct{}

// DoneFunc starts an asynchronous stop and returns a channel closed when it
// finishes.
type DoneFunc func() DoneChan

func WrapWaitGroup(wg *sync.WaitGroup) DoneChan {
	ret := make(DoneChan)
	go func() {
		wg.Wait()
		close(ret)
	}()
	return ret
}

// Combine waits on both channels and closes the returned one once both are
// done, so a caller can join e.g. a poll loop's shutdown with a worker
// pool's drain.
func Combine(first DoneChan, second DoneChan) DoneChan {
	ret := make(DoneChan)
	go func() {
		<-first
		<-second
		close(ret)
	}()
	return ret
}
