package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// counterLabel is the single label name every counter in this package
// carries; callers pass label values as a flat name/value pair so one
// vector definition covers every call site.
const counterLabel = "label"

// PrometheusSink is the default Sink, backed by
// github.com/prometheus/client_golang. Counters and histograms are
// created lazily per metric name the first time they're observed, and
// registered against the Registerer supplied at construction — never a
// package-level global registry.
type PrometheusSink struct {
	mu         sync.Mutex
	reg        prometheus.Registerer
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusSink builds a Sink registering its metrics against reg.
// Pass prometheus.DefaultRegisterer to use the global default registry,
// or a fresh prometheus.NewRegistry() for test isolation.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	return &PrometheusSink{
		reg:        reg,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

func (s *PrometheusSink) counterVec(name string) *prometheus.CounterVec {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: name + " total count",
	}, []string{counterLabel})
	s.reg.MustRegister(c)
	s.counters[name] = c
	return c
}

func (s *PrometheusSink) histogramVec(name string) *prometheus.HistogramVec {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.histograms[name]; ok {
		return h
	}
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    name + " duration seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{counterLabel})
	s.reg.MustRegister(h)
	s.histograms[name] = h
	return h
}

func flattenLabel(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	// labels is key/value pairs; join the values since this sink uses a
	// single catch-all label dimension to avoid a cardinality explosion
	// from unbounded label-key combinations across call sites.
	out := ""
	for i := 1; i < len(labels); i += 2 {
		if out != "" {
			out += ","
		}
		out += labels[i]
	}
	return out
}

func (s *PrometheusSink) IncCounter(name string, labels ...string) {
	s.counterVec(name).WithLabelValues(flattenLabel(labels)).Inc()
}

func (s *PrometheusSink) ObserveDuration(name string, d time.Duration, labels ...string) {
	s.histogramVec(name).WithLabelValues(flattenLabel(labels)).Observe(d.Seconds())
}

var _ Sink = (*PrometheusSink)(nil)
