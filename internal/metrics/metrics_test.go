package metrics

import "testing"

func TestRecordTradeUpdatesCounters(t *testing.T) {
	m := New()
	m.RecordTrade(true, 10, 5, 20)
	m.RecordTrade(false, 10, 5, 20)

	total, success, failed, rate := m.Stats()
	if total != 2 || success != 1 || failed != 1 {
		t.Fatalf("Stats() = (%d,%d,%d), want (2,1,1)", total, success, failed)
	}
	if rate != 50 {
		t.Errorf("rate = %v, want 50", rate)
	}
}

func TestPercentilesOverKnownSamples(t *testing.T) {
	m := New()
	for i := 1; i <= 10; i++ {
		m.RecordTrade(true, int64(i*10), 0, 0)
	}
	if got := m.P50(); got != 50 {
		t.Errorf("P50 = %d, want 50", got)
	}
	if got := m.Avg(); got != 55 {
		t.Errorf("Avg = %d, want 55", got)
	}
}

func TestPercentilesEmptyWindow(t *testing.T) {
	m := New()
	if m.P50() != 0 || m.Avg() != 0 {
		t.Fatal("expected zero percentiles on an empty window")
	}
}

func TestSampleWindowWrapsAround(t *testing.T) {
	m := New()
	for i := 0; i < sampleWindow+10; i++ {
		m.RecordTrade(true, 1, 0, 0)
	}
	total, _, _, _ := m.Stats()
	if total != sampleWindow+10 {
		t.Errorf("total trades = %d, want %d", total, sampleWindow+10)
	}
	if got := m.Avg(); got != 1 {
		t.Errorf("Avg = %d, want 1 (window should only hold the latest samples)", got)
	}
}

func TestLastBreakdownReflectsMostRecentTrade(t *testing.T) {
	m := New()
	m.RecordTrade(true, 1, 2, 3)
	m.RecordTrade(true, 10, 20, 30)

	quote, sign, send, total := m.LastBreakdown()
	if quote != 10 || sign != 20 || send != 30 || total != 60 {
		t.Errorf("LastBreakdown() = (%d,%d,%d,%d), want (10,20,30,60)", quote, sign, send, total)
	}
}

func TestTimerBreakdownWithAllMarksSet(t *testing.T) {
	timer := NewTimer()
	timer.MarkQuoteDone()
	timer.MarkSignDone()
	timer.MarkSendDone()

	quoteMs, signMs, sendMs := timer.Breakdown()
	if quoteMs < 0 || signMs < 0 || sendMs < 0 {
		t.Errorf("Breakdown() = (%d,%d,%d), want all non-negative", quoteMs, signMs, sendMs)
	}
}

func TestTimerBreakdownWithAbortedAttempt(t *testing.T) {
	timer := NewTimer()
	timer.MarkQuoteDone()
	// sign/send never marked: attempt aborted after the quote.

	quoteMs, signMs, sendMs := timer.Breakdown()
	if quoteMs < 0 {
		t.Errorf("quoteMs = %d, want >= 0", quoteMs)
	}
	if signMs != 0 || sendMs != 0 {
		t.Errorf("signMs/sendMs = (%d,%d), want (0,0) for unmarked phases", signMs, sendMs)
	}
}

func TestSnapshotReflectsStatsAndPercentiles(t *testing.T) {
	m := New()
	m.RecordTrade(true, 10, 0, 0)
	m.RecordTrade(false, 20, 0, 0)

	snap := m.Snapshot()
	if snap.TotalTrades != 2 || snap.SuccessTrades != 1 || snap.FailedTrades != 1 {
		t.Errorf("Snapshot() = %+v, want totals (2,1,1)", snap)
	}
	if snap.SuccessRate != 50 {
		t.Errorf("SuccessRate = %v, want 50", snap.SuccessRate)
	}
}
