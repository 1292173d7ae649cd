package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bravellian/platform-sub002/metrics"
)

func TestIncCounterRegistersAndIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := metrics.NewPrometheusSink(reg)

	sink.IncCounter("claims_total", "queue", "outbox")
	sink.IncCounter("claims_total", "queue", "outbox")
	sink.IncCounter("claims_total", "queue", "inbox")

	count, err := testutil.GatherAndCount(reg, "claims_total")
	if err != nil {
		t.Fatal(err)
	}
	// Two distinct label values ("outbox", "inbox") means two series.
	if count != 2 {
		t.Fatalf("want 2 series, got %d", count)
	}
}

func TestObserveDurationRegistersHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := metrics.NewPrometheusSink(reg)

	sink.ObserveDuration("dispatch_latency_seconds", 10*time.Millisecond, "queue", "outbox")

	count, err := testutil.GatherAndCount(reg, "dispatch_latency_seconds")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("want 1 observation, got %d", count)
	}
}

func TestNoopSinkDiscardsEverything(t *testing.T) {
	sink := metrics.Noop()
	sink.IncCounter("anything")
	sink.ObserveDuration("anything", time.Second)
}
