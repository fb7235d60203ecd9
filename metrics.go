package mqttbridge

import (
	"sync/atomic"
	"time"
)

// Metrics holds the pipeline's aggregate counters. All updates are atomic, so
// a single Metrics value is safely shared by the inbound adapter, every
// delivery worker, and the retry scheduler.
//
// Counters reset when the process restarts; pass the same Metrics to an
// admin endpoint or scraper for observability. The explicit value replaces
// implicit process-global state.
type Metrics struct {
	arrivals    atomic.Int64
	dropped     atomic.Int64
	delivered   atomic.Int64
	abandoned   atomic.Int64
	retries     atomic.Int64
	startedAt   atomic.Int64
}

// NewMetrics creates a Metrics value with its lifecycle start set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.startedAt.Store(time.Now().UnixNano())
	return m
}

// IncArrivals counts a message accepted by the inbound adapter.
func (m *Metrics) IncArrivals() { m.arrivals.Add(1) }

// IncDropped counts an envelope evicted under the drop-oldest policy.
func (m *Metrics) IncDropped() { m.dropped.Add(1) }

// IncDelivered counts an envelope that reached the Delivered state.
func (m *Metrics) IncDelivered() { m.delivered.Add(1) }

// IncAbandoned counts an envelope that reached the Abandoned state.
func (m *Metrics) IncAbandoned() { m.abandoned.Add(1) }

// IncRetries counts a scheduled retry.
func (m *Metrics) IncRetries() { m.retries.Add(1) }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Arrivals  int64     `json:"arrivals"`
	Dropped   int64     `json:"dropped"`
	Delivered int64     `json:"delivered"`
	Abandoned int64     `json:"abandoned"`
	Retries   int64     `json:"retries"`
	StartedAt time.Time `json:"startedAt"`
}

// Snapshot returns a consistent-enough copy of the counters for reporting.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Arrivals:  m.arrivals.Load(),
		Dropped:   m.dropped.Load(),
		Delivered: m.delivered.Load(),
		Abandoned: m.abandoned.Load(),
		Retries:   m.retries.Load(),
		StartedAt: time.Unix(0, m.startedAt.Load()),
	}
}

// Reset zeroes all counters and restarts the lifecycle clock.
func (m *Metrics) Reset() {
	m.arrivals.Store(0)
	m.dropped.Store(0)
	m.delivered.Store(0)
	m.abandoned.Store(0)
	m.retries.Store(0)
	m.startedAt.Store(time.Now().UnixNano())
}
