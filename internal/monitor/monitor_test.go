package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"memecoin-agent/internal/model"
	"memecoin-agent/internal/position"
	"memecoin-agent/internal/price"
)

type fakeSeller struct {
	calls []model.ExitDecision
}

func (f *fakeSeller) Sell(_ context.Context, tokenMint string, decision model.ExitDecision) {
	f.calls = append(f.calls, decision)
}

func newTestPosition(mint string, venue model.Venue, class model.SignalClass) *model.Position {
	pos := &model.Position{
		TokenMint:         mint,
		EntryPriceUSD:     1.0,
		RemainingTokens:   1000,
		OriginalTokens:    1000,
		StopLossPercent:   25,
		TakeProfitPercent: 50,
		EntryTime:         time.Now().Add(-time.Hour),
		Venue:             venue,
		Class:             class,
		PriceSynced:       true,
	}
	pos.DeriveLevels()
	return pos
}

func TestHandlePriceUpdateTriggersSellOnStopLoss(t *testing.T) {
	positions := position.NewRegistry()
	positions.Add(newTestPosition("mintA", model.VenueAggregator, model.SignalClassConsensus))

	seller := &fakeSeller{}
	m := New(positions, nil, seller, time.Second)

	m.handlePriceUpdate(t.Context(), model.PriceUpdate{TokenMint: "mintA", PriceUSD: 0.5}) // below 0.75 SL price

	if len(seller.calls) != 1 || seller.calls[0].Reason != model.ExitStopLoss {
		t.Fatalf("seller.calls = %+v, want one StopLoss call", seller.calls)
	}
}

func TestHandlePriceUpdateSyncsCurvePositionInsteadOfEvaluating(t *testing.T) {
	positions := position.NewRegistry()
	pos := newTestPosition("mintA", model.VenueCurve, model.SignalClassNinja)
	pos.PriceSynced = false
	pos.EntryTime = time.Now().Add(-10 * time.Second) // outside the 3s grace window
	positions.Add(pos)

	seller := &fakeSeller{}
	m := New(positions, nil, seller, time.Second)

	m.handlePriceUpdate(t.Context(), model.PriceUpdate{TokenMint: "mintA", PriceUSD: 2.0})

	if len(seller.calls) != 0 {
		t.Fatalf("expected the sync update to skip evaluation, got %+v", seller.calls)
	}
	got, _ := positions.Get("mintA")
	if !got.PriceSynced || got.EntryPriceUSD != 2.0 {
		t.Errorf("position = %+v, want synced at 2.0", got)
	}
}

func TestHandlePriceUpdateIgnoresUntrackedToken(t *testing.T) {
	positions := position.NewRegistry()
	seller := &fakeSeller{}
	m := New(positions, nil, seller, time.Second)

	m.handlePriceUpdate(t.Context(), model.PriceUpdate{TokenMint: "mintUnknown", PriceUSD: 1.0})

	if len(seller.calls) != 0 {
		t.Fatalf("expected no sell calls for an untracked token, got %+v", seller.calls)
	}
}

func TestHandleTickFallsBackToPollingWhenStreamAbsent(t *testing.T) {
	curveSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"usd_market_cap": float64(price.FixedSupply) * 2.0})
	}))
	defer curveSrv.Close()

	positions := position.NewRegistry()
	positions.Add(newTestPosition("mintA", model.VenueAggregator, model.SignalClassConsensus))

	stream := price.NewStream("wss://example.invalid/api/data", 150.0)
	polling := price.NewPollingSource("http://unused.invalid", curveSrv.URL)
	cache := price.NewCache(stream, polling)

	seller := &fakeSeller{}
	m := New(positions, cache, seller, time.Second)

	m.handleTick(t.Context())

	if len(seller.calls) != 1 || seller.calls[0].Reason != model.ExitTakeProfit {
		t.Fatalf("seller.calls = %+v, want one TakeProfit call (price 2.0 >= TP 1.5)", seller.calls)
	}
}

func TestRunExitsOnContextCancellation(t *testing.T) {
	positions := position.NewRegistry()
	stream := price.NewStream("wss://example.invalid/api/data", 150.0)
	cache := price.NewCache(stream, price.NewPollingSource("http://unused.invalid", "http://unused.invalid"))
	seller := &fakeSeller{}
	m := New(positions, cache, seller, time.Hour) // long tick so only cancellation ends Run

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected Run to return promptly after context cancellation")
	}
}
