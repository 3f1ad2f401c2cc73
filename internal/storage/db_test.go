package storage

import (
	"path/filepath"
	"testing"

	"memecoin-agent/internal/model"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	db, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertAndRecentTrades(t *testing.T) {
	db := newTestDB(t)

	sig := model.Signal{TokenMint: "mintA", TokenSymbol: "FOO"}
	if err := db.InsertTrade(model.TradeResult{
		Success: true, Action: model.ActionBuy, TokenMint: "mintA",
		TokenAmount: 1000, VenueTxID: "tx1", Timestamp: 100, Signal: &sig,
	}); err != nil {
		t.Fatalf("InsertTrade: %v", err)
	}
	if err := db.InsertTrade(model.TradeResult{
		Success: true, Action: model.ActionSell, TokenMint: "mintA",
		TokenAmount: 1000, VenueTxID: "tx2", RealizedPnL: 5.5, Timestamp: 200,
	}); err != nil {
		t.Fatalf("InsertTrade: %v", err)
	}

	trades, err := db.RecentTrades(10)
	if err != nil {
		t.Fatalf("RecentTrades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("len(trades) = %d, want 2", len(trades))
	}
	if trades[0].Action != "sell" || trades[0].Timestamp != 200 {
		t.Errorf("trades[0] = %+v, want the most recent (sell @200) first", trades[0])
	}
	if trades[1].TokenSymbol != "FOO" {
		t.Errorf("trades[1].TokenSymbol = %q, want FOO", trades[1].TokenSymbol)
	}
}

func TestInsertAndRecentSignals(t *testing.T) {
	db := newTestDB(t)

	sig := model.Signal{TokenMint: "mintA", TokenSymbol: "FOO", Class: model.SignalClassNinja, Strength: "strong", Timestamp: 100}
	if err := db.InsertSignal(sig); err != nil {
		t.Fatalf("InsertSignal: %v", err)
	}

	signals, err := db.RecentSignals(10)
	if err != nil {
		t.Fatalf("RecentSignals: %v", err)
	}
	if len(signals) != 1 || signals[0].Class != "ninja" {
		t.Fatalf("signals = %+v, want one ninja-class entry", signals)
	}
}

func TestStatsComputesWinRateOverSellsOnly(t *testing.T) {
	db := newTestDB(t)

	db.InsertTrade(model.TradeResult{Success: true, Action: model.ActionBuy, TokenMint: "mintA", Timestamp: 1})
	db.InsertTrade(model.TradeResult{Success: true, Action: model.ActionSell, TokenMint: "mintA", RealizedPnL: 10, Timestamp: 2})
	db.InsertTrade(model.TradeResult{Success: true, Action: model.ActionSell, TokenMint: "mintB", RealizedPnL: -5, Timestamp: 3})

	total, winRate, totalPnL, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if total != 2 {
		t.Errorf("total = %d, want 2 (buys excluded)", total)
	}
	if winRate != 50 {
		t.Errorf("winRate = %v, want 50", winRate)
	}
	if totalPnL != 5 {
		t.Errorf("totalPnL = %v, want 5", totalPnL)
	}
}
