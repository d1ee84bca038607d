package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight pipeline counters.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	booksReceived   atomic.Uint64
	booksApplied    atomic.Uint64
	booksUnchanged  atomic.Uint64
	tradesReceived  atomic.Uint64
	tradesApplied   atomic.Uint64
	tradesDuplicate atomic.Uint64
	dropped         atomic.Uint64
	handlerErrors   atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
}

// RecordBook records a received book update and whether it changed state.
func (m *Metrics) RecordBook(applied bool) {
	if m == nil {
		return
	}
	m.booksReceived.Add(1)
	if applied {
		m.booksApplied.Add(1)
	} else {
		m.booksUnchanged.Add(1)
	}
}

// RecordTrade records a received trade and whether it was new.
func (m *Metrics) RecordTrade(applied bool) {
	if m == nil {
		return
	}
	m.tradesReceived.Add(1)
	if applied {
		m.tradesApplied.Add(1)
	} else {
		m.tradesDuplicate.Add(1)
	}
}

// RecordDrop records an update that was discarded (unknown pair, bad number).
func (m *Metrics) RecordDrop() {
	if m == nil {
		return
	}
	m.dropped.Add(1)
}

// RecordHandlerError records a failed handler call.
func (m *Metrics) RecordHandlerError() {
	if m == nil {
		return
	}
	m.handlerErrors.Add(1)
}

// RecordLatency records the processing time of one event.
func (m *Metrics) RecordLatency(latencyNs int64) {
	if m == nil {
		return
	}
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	if m == nil {
		return
	}
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	if m == nil {
		return
	}
	m.activeConnections.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	BooksReceived     uint64
	BooksApplied      uint64
	BooksUnchanged    uint64
	TradesReceived    uint64
	TradesApplied     uint64
	TradesDuplicate   uint64
	Dropped           uint64
	HandlerErrors     uint64
	AvgLatencyNs      int64
	ActiveConnections int32
	Timestamp         time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		BooksReceived:     m.booksReceived.Load(),
		BooksApplied:      m.booksApplied.Load(),
		BooksUnchanged:    m.booksUnchanged.Load(),
		TradesReceived:    m.tradesReceived.Load(),
		TradesApplied:     m.tradesApplied.Load(),
		TradesDuplicate:   m.tradesDuplicate.Load(),
		Dropped:           m.dropped.Load(),
		HandlerErrors:     m.handlerErrors.Load(),
		AvgLatencyNs:      avgLatency,
		ActiveConnections: m.activeConnections.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.booksReceived.Store(0)
	m.booksApplied.Store(0)
	m.booksUnchanged.Store(0)
	m.tradesReceived.Store(0)
	m.tradesApplied.Store(0)
	m.tradesDuplicate.Store(0)
	m.dropped.Store(0)
	m.handlerErrors.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeConnections.Store(0)
}
