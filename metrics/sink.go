// Package metrics defines the process-lifetime metrics sink (C11):
// counters for claims, acks, retries, lease churn, and histograms for
// handler and cleanup latency, passed in at construction rather than
// registered against a global registry.
package metrics

import "time"

// Sink records counters and durations. Implementations must be safe for
// concurrent use.
type Sink interface {
	// IncCounter increments the named counter by one. labels are
	// alternating key/value pairs, e.g. IncCounter("claims_total",
	// "queue", "outbox").
	IncCounter(name string, labels ...string)

	// ObserveDuration records d against the named histogram.
	ObserveDuration(name string, d time.Duration, labels ...string)
}

type noopSink struct{}

func (noopSink) IncCounter(string, ...string)              {}
func (noopSink) ObserveDuration(string, time.Duration, ...string) {}

// Noop returns a Sink that discards everything, for callers (tests,
// simple CLIs) that don't want metrics wired up.
func Noop() Sink { return noopSink{} }
