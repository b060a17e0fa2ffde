// Package metrics provides lightweight operational counters for the SOCKS
// connector reactor. It is deliberately not a metrics server: no HTTP
// surface, no registry, just atomic counters a caller can snapshot. The
// dump-queue interface remains the only externally exposed observability
// surface; this package only backs the in-process Metrics.Snapshot method.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects connector-wide counters. All fields are safe for
// concurrent use; the reactor updates them from its single goroutine and
// Snapshot may be called from any goroutine (e.g. in response to a
// dump-queue request or a test assertion).
type Metrics struct {
	RequestsEnqueued  *Counter
	RequestsDeduped   *Counter
	ConnectAttempts   *Counter
	ConnectSuccesses  *Counter
	ConnectFailures   *Counter
	HandshakeSuccess  *Counter
	HandshakeFailures *Counter
	DNSQueriesSent    *Counter
	DNSFailures       *Counter
	PermanentRetries  *Counter
	TemporaryDeletes  *Counter
	QueueLength       *Gauge
	ConnectDuration    *Histogram

	startTime   time.Time
	startTimeMu sync.RWMutex
}

// New creates a new, zeroed Metrics instance.
func New() *Metrics {
	return &Metrics{
		RequestsEnqueued:  NewCounter(),
		RequestsDeduped:   NewCounter(),
		ConnectAttempts:   NewCounter(),
		ConnectSuccesses:  NewCounter(),
		ConnectFailures:   NewCounter(),
		HandshakeSuccess:  NewCounter(),
		HandshakeFailures: NewCounter(),
		DNSQueriesSent:    NewCounter(),
		DNSFailures:       NewCounter(),
		PermanentRetries:  NewCounter(),
		TemporaryDeletes:  NewCounter(),
		QueueLength:       NewGauge(),
		ConnectDuration:   NewHistogram(),
		startTime:         time.Now(),
	}
}

// RecordConnect records the outcome of one TCP connect attempt.
func (m *Metrics) RecordConnect(success bool, elapsed time.Duration) {
	m.ConnectAttempts.Inc()
	if success {
		m.ConnectSuccesses.Inc()
		m.ConnectDuration.Observe(elapsed)
	} else {
		m.ConnectFailures.Inc()
	}
}

// RecordHandshake records the outcome of a SOCKS4a/SOCKS5 handshake.
func (m *Metrics) RecordHandshake(success bool) {
	if success {
		m.HandshakeSuccess.Inc()
	} else {
		m.HandshakeFailures.Inc()
	}
}

// Uptime returns the time elapsed since the Metrics instance was created.
func (m *Metrics) Uptime() time.Duration {
	m.startTimeMu.RLock()
	defer m.startTimeMu.RUnlock()
	return time.Since(m.startTime)
}

// Snapshot is a point-in-time copy of all counters, safe to log or compare
// in tests without racing the live counters.
type Snapshot struct {
	RequestsEnqueued  int64
	RequestsDeduped   int64
	ConnectAttempts   int64
	ConnectSuccesses  int64
	ConnectFailures   int64
	HandshakeSuccess  int64
	HandshakeFailures int64
	DNSQueriesSent    int64
	DNSFailures       int64
	PermanentRetries  int64
	TemporaryDeletes  int64
	QueueLength       int64
	ConnectDurationAvg time.Duration
	UptimeSeconds     int64
}

// Snapshot returns a consistent-enough snapshot of the current counters.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		RequestsEnqueued:   m.RequestsEnqueued.Value(),
		RequestsDeduped:    m.RequestsDeduped.Value(),
		ConnectAttempts:    m.ConnectAttempts.Value(),
		ConnectSuccesses:   m.ConnectSuccesses.Value(),
		ConnectFailures:    m.ConnectFailures.Value(),
		HandshakeSuccess:   m.HandshakeSuccess.Value(),
		HandshakeFailures:  m.HandshakeFailures.Value(),
		DNSQueriesSent:     m.DNSQueriesSent.Value(),
		DNSFailures:        m.DNSFailures.Value(),
		PermanentRetries:   m.PermanentRetries.Value(),
		TemporaryDeletes:   m.TemporaryDeletes.Value(),
		QueueLength:        m.QueueLength.Value(),
		ConnectDurationAvg: m.ConnectDuration.Mean(),
		UptimeSeconds:      int64(m.Uptime().Seconds()),
	}
}

// Counter is a monotonically increasing counter.
type Counter struct {
	value int64
}

// NewCounter creates a new counter.
func NewCounter() *Counter { return &Counter{} }

// Inc increments the counter by 1.
func (c *Counter) Inc() { atomic.AddInt64(&c.value, 1) }

// Add adds n to the counter.
func (c *Counter) Add(n int64) { atomic.AddInt64(&c.value, n) }

// Value returns the current counter value.
func (c *Counter) Value() int64 { return atomic.LoadInt64(&c.value) }

// Gauge is a value that can go up or down.
type Gauge struct {
	value int64
}

// NewGauge creates a new gauge.
func NewGauge() *Gauge { return &Gauge{} }

// Set sets the gauge to a specific value.
func (g *Gauge) Set(value int64) { atomic.StoreInt64(&g.value, value) }

// Inc increments the gauge by 1.
func (g *Gauge) Inc() { atomic.AddInt64(&g.value, 1) }

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() { atomic.AddInt64(&g.value, -1) }

// Value returns the current gauge value.
func (g *Gauge) Value() int64 { return atomic.LoadInt64(&g.value) }

// Histogram tracks a bounded window of duration observations (connect
// latencies). It keeps the most recent 256 samples, enough to report a
// meaningful mean without unbounded growth over a long-running daemon.
type Histogram struct {
	mu           sync.RWMutex
	observations []time.Duration
}

const histogramWindow = 256

// NewHistogram creates a new histogram.
func NewHistogram() *Histogram {
	return &Histogram{observations: make([]time.Duration, 0, histogramWindow)}
}

// Observe records one duration sample.
func (h *Histogram) Observe(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.observations) >= histogramWindow {
		h.observations = h.observations[1:]
	}
	h.observations = append(h.observations, d)
}

// Mean returns the mean of all retained observations.
func (h *Histogram) Mean() time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.observations) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range h.observations {
		sum += d
	}
	return sum / time.Duration(len(h.observations))
}

// Count returns the number of retained observations.
func (h *Histogram) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observations)
}
