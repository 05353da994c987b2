// Package metrics wires github.com/prometheus/client_golang the way
// topological.go expects its embedded metrics.Latency helper to behave:
// per-item issued/accepted/rejected timestamps feeding processing-time
// histograms, registered against an injected prometheus.Registerer rather
// than the global default registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/qudag/qudag/ids"
)

// Latency tracks issue-to-decision timing for a population of items
// (vertices, pending mutations) identified by ids.ID.
type Latency struct {
	processingTime prometheus.Histogram
	numProcessing  prometheus.Gauge
	numAccepted    prometheus.Counter
	numRejected    prometheus.Counter

	issuedAt map[ids.ID]time.Time
	now      func() time.Time
}

// NewLatency registers a Latency's metrics under the given namespace/subsystem
// and returns it ready to use. now defaults to time.Now; tests may override
// it to make processing-time assertions deterministic.
func NewLatency(namespace, subsystem string, reg prometheus.Registerer, now func() time.Time) (*Latency, error) {
	if now == nil {
		now = time.Now
	}
	l := &Latency{
		issuedAt: make(map[ids.ID]time.Time),
		now:      now,
		processingTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "processing_time_seconds",
			Help:      "time from issuance to decision",
			Buckets:   prometheus.DefBuckets,
		}),
		numProcessing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "processing",
			Help:      "number of items currently undecided",
		}),
		numAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "accepted_total",
			Help:      "number of items that reached Accepted",
		}),
		numRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rejected_total",
			Help:      "number of items that reached Rejected",
		}),
	}
	for _, c := range []prometheus.Collector{l.processingTime, l.numProcessing, l.numAccepted, l.numRejected} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Issued records that id entered the undecided pool.
func (l *Latency) Issued(id ids.ID) {
	l.issuedAt[id] = l.now()
	l.numProcessing.Set(float64(len(l.issuedAt)))
}

// Accepted records that id left the undecided pool as Accepted.
func (l *Latency) Accepted(id ids.ID) {
	l.observe(id)
	l.numAccepted.Inc()
}

// Rejected records that id left the undecided pool as Rejected.
func (l *Latency) Rejected(id ids.ID) {
	l.observe(id)
	l.numRejected.Inc()
}

func (l *Latency) observe(id ids.ID) {
	if start, ok := l.issuedAt[id]; ok {
		l.processingTime.Observe(l.now().Sub(start).Seconds())
		delete(l.issuedAt, id)
	}
	l.numProcessing.Set(float64(len(l.issuedAt)))
}

// NumProcessing returns the current undecided population size.
func (l *Latency) NumProcessing() int {
	return len(l.issuedAt)
}
