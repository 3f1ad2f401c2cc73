// Package metrics implements the trade-metrics component (C11, SPEC_FULL.md
// §4.12): a rolling latency sample window with percentile readout and
// per-attempt component timing, grounded on the teacher's
// internal/trading/metrics.go.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

const sampleWindow = 100

// Metrics tracks trade execution latency and outcome counters across every
// buy/sell attempt the trader orchestrator (C7) makes.
type Metrics struct {
	samples   []int64
	sampleIdx int
	mu        sync.Mutex

	totalTrades   atomic.Int64
	successTrades atomic.Int64
	failedTrades  atomic.Int64

	lastQuoteMs atomic.Int64
	lastSignMs  atomic.Int64
	lastSendMs  atomic.Int64
	lastTotalMs atomic.Int64
}

// New builds a Metrics tracker with the default 100-sample rolling window.
func New() *Metrics {
	return &Metrics{samples: make([]int64, sampleWindow)}
}

// RecordTrade records one buy/sell attempt with its quote/sign/send
// component breakdown.
func (m *Metrics) RecordTrade(success bool, quoteMs, signMs, sendMs int64) {
	totalMs := quoteMs + signMs + sendMs

	m.mu.Lock()
	m.samples[m.sampleIdx%len(m.samples)] = totalMs
	m.sampleIdx++
	m.mu.Unlock()

	m.totalTrades.Add(1)
	if success {
		m.successTrades.Add(1)
	} else {
		m.failedTrades.Add(1)
	}

	m.lastQuoteMs.Store(quoteMs)
	m.lastSignMs.Store(signMs)
	m.lastSendMs.Store(sendMs)
	m.lastTotalMs.Store(totalMs)
}

// P50 returns the 50th percentile latency in milliseconds.
func (m *Metrics) P50() int64 { return m.percentile(50) }

// P95 returns the 95th percentile latency in milliseconds.
func (m *Metrics) P95() int64 { return m.percentile(95) }

// P99 returns the 99th percentile latency in milliseconds.
func (m *Metrics) P99() int64 { return m.percentile(99) }

// Avg returns the mean latency over the current sample window.
func (m *Metrics) Avg() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := m.windowCount()
	if count == 0 {
		return 0
	}
	var sum int64
	for i := 0; i < count; i++ {
		sum += m.samples[i]
	}
	return sum / int64(count)
}

func (m *Metrics) percentile(p int) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := m.windowCount()
	if count == 0 {
		return 0
	}

	sorted := make([]int64, count)
	copy(sorted, m.samples[:count])
	for i := 0; i < len(sorted)-1; i++ {
		for j := 0; j < len(sorted)-i-1; j++ {
			if sorted[j] > sorted[j+1] {
				sorted[j], sorted[j+1] = sorted[j+1], sorted[j]
			}
		}
	}

	idx := (p*count+99)/100 - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= count {
		idx = count - 1
	}
	return sorted[idx]
}

// windowCount must be called with m.mu held.
func (m *Metrics) windowCount() int {
	count := m.sampleIdx
	if count > len(m.samples) {
		count = len(m.samples)
	}
	return count
}

// LastBreakdown returns the most recent trade's component latencies.
func (m *Metrics) LastBreakdown() (quote, sign, send, total int64) {
	return m.lastQuoteMs.Load(), m.lastSignMs.Load(), m.lastSendMs.Load(), m.lastTotalMs.Load()
}

// Stats returns the aggregate trade counters and success rate (percent).
func (m *Metrics) Stats() (total, success, failed int64, successRate float64) {
	total = m.totalTrades.Load()
	success = m.successTrades.Load()
	failed = m.failedTrades.Load()
	if total > 0 {
		successRate = float64(success) / float64(total) * 100
	}
	return
}

// Snapshot is the JSON-friendly view exposed by the admin server's
// /metrics endpoint.
type Snapshot struct {
	TotalTrades   int64   `json:"total_trades"`
	SuccessTrades int64   `json:"success_trades"`
	FailedTrades  int64   `json:"failed_trades"`
	SuccessRate   float64 `json:"success_rate_pct"`
	P50Ms         int64   `json:"p50_ms"`
	P95Ms         int64   `json:"p95_ms"`
	P99Ms         int64   `json:"p99_ms"`
	AvgMs         int64   `json:"avg_ms"`
}

// Snapshot builds the current read-only view.
func (m *Metrics) Snapshot() Snapshot {
	total, success, failed, rate := m.Stats()
	return Snapshot{
		TotalTrades:   total,
		SuccessTrades: success,
		FailedTrades:  failed,
		SuccessRate:   rate,
		P50Ms:         m.P50(),
		P95Ms:         m.P95(),
		P99Ms:         m.P99(),
		AvgMs:         m.Avg(),
	}
}

// Timer marks the quote/sign/send boundaries of a single trade attempt.
type Timer struct {
	start    time.Time
	quoteEnd time.Time
	signEnd  time.Time
	sendEnd  time.Time
}

// NewTimer starts timing a trade attempt.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// MarkQuoteDone marks quote/build complete.
func (t *Timer) MarkQuoteDone() { t.quoteEnd = time.Now() }

// MarkSignDone marks transaction signing complete.
func (t *Timer) MarkSignDone() { t.signEnd = time.Now() }

// MarkSendDone marks submission complete.
func (t *Timer) MarkSendDone() { t.sendEnd = time.Now() }

// Breakdown returns milliseconds for each phase, using start as the
// baseline for any un-marked boundary (so an aborted attempt still yields
// a sane total instead of a negative duration).
func (t *Timer) Breakdown() (quoteMs, signMs, sendMs int64) {
	prev := t.start
	quoteMs = msOrZero(prev, t.quoteEnd)
	if !t.quoteEnd.IsZero() {
		prev = t.quoteEnd
	}
	signMs = msOrZero(prev, t.signEnd)
	if !t.signEnd.IsZero() {
		prev = t.signEnd
	}
	sendMs = msOrZero(prev, t.sendEnd)
	return
}

func msOrZero(from, to time.Time) int64 {
	if to.IsZero() {
		return 0
	}
	return to.Sub(from).Milliseconds()
}
