package metrics

import (
	"testing"
	"time"
)

func TestCounter(t *testing.T) {
	c := NewCounter()
	c.Inc()
	c.Add(4)
	if got := c.Value(); got != 5 {
		t.Fatalf("got %d, want 5", got)
	}
}

func TestGauge(t *testing.T) {
	g := NewGauge()
	g.Set(10)
	g.Inc()
	g.Dec()
	g.Dec()
	if got := g.Value(); got != 9 {
		t.Fatalf("got %d, want 9", got)
	}
}

func TestHistogramMean(t *testing.T) {
	h := NewHistogram()
	h.Observe(100 * time.Millisecond)
	h.Observe(300 * time.Millisecond)
	if got := h.Mean(); got != 200*time.Millisecond {
		t.Fatalf("got %v, want 200ms", got)
	}
	if h.Count() != 2 {
		t.Fatalf("got count %d, want 2", h.Count())
	}
}

func TestRecordConnect(t *testing.T) {
	m := New()
	m.RecordConnect(true, 50*time.Millisecond)
	m.RecordConnect(false, 0)

	snap := m.Snapshot()
	if snap.ConnectAttempts != 2 {
		t.Fatalf("got %d attempts, want 2", snap.ConnectAttempts)
	}
	if snap.ConnectSuccesses != 1 {
		t.Fatalf("got %d successes, want 1", snap.ConnectSuccesses)
	}
	if snap.ConnectFailures != 1 {
		t.Fatalf("got %d failures, want 1", snap.ConnectFailures)
	}
}

func TestRecordHandshake(t *testing.T) {
	m := New()
	m.RecordHandshake(true)
	m.RecordHandshake(false)
	snap := m.Snapshot()
	if snap.HandshakeSuccess != 1 || snap.HandshakeFailures != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}
