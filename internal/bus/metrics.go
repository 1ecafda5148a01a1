package bus

import (
	"fmt"
	"sync"
)

// Metrics tracks in-memory counters for bus activity. All counters are
// concurrency-safe and can be incremented from multiple goroutines.
type Metrics struct {
	mu sync.Mutex

	NumReceived   uint64
	NumCoalesced  uint64
	NumDropped    uint64
	NumMalformed  uint64
	NumRecomputes uint64
}

// NewMetrics creates a Metrics instance with all counters at zero.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncReceived increments the received counter.
func (m *Metrics) IncReceived() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NumReceived++
}

// IncCoalesced increments the coalesced counter.
func (m *Metrics) IncCoalesced() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NumCoalesced++
}

// IncDropped increments the dropped counter.
func (m *Metrics) IncDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NumDropped++
}

// IncMalformed increments the malformed counter.
func (m *Metrics) IncMalformed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NumMalformed++
}

// IncRecomputes increments the recompute counter.
func (m *Metrics) IncRecomputes() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NumRecomputes++
}

// MetricsSnapshot is a snapshot of current counter values. It is safe to
// read without holding the mutex.
type MetricsSnapshot struct {
	NumReceived   uint64
	NumCoalesced  uint64
	NumDropped    uint64
	NumMalformed  uint64
	NumRecomputes uint64
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		NumReceived:   m.NumReceived,
		NumCoalesced:  m.NumCoalesced,
		NumDropped:    m.NumDropped,
		NumMalformed:  m.NumMalformed,
		NumRecomputes: m.NumRecomputes,
	}
}

// String returns a human-readable rendering of the counters.
func (m *Metrics) String() string {
	snap := m.Snapshot()
	return fmt.Sprintf("bus metrics: received=%d coalesced=%d dropped=%d malformed=%d recomputes=%d",
		snap.NumReceived,
		snap.NumCoalesced,
		snap.NumDropped,
		snap.NumMalformed,
		snap.NumRecomputes,
	)
}
