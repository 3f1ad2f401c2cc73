// Package model holds the wire and domain types shared across the trading
// engine: signals coming off the queue, the positions the registry tracks,
// and the results published back out.
package model

import "time"

// SignalClass is the upstream classification that decides venue routing.
type SignalClass string

const (
	SignalClassNinja      SignalClass = "ninja"
	SignalClassConsensus  SignalClass = "consensus"
)

// Venue tags which adapter opened (and must close) a position.
type Venue string

const (
	VenueCurve      Venue = "curve"
	VenueAggregator Venue = "aggregator"
)

// Wallet is one of the trigger wallets that fired on a Signal.
type Wallet struct {
	Address string  `json:"address"`
	Label   string  `json:"label,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// Signal is the immutable entry-intent record delivered by C1.
type Signal struct {
	TokenMint         string      `json:"tokenMint"`
	TokenSymbol       string      `json:"tokenSymbol"`
	Class             SignalClass `json:"signalType"`
	Strength          string      `json:"strength"`
	EntryPriceUSD     float64     `json:"entryPriceUsd,omitempty"`
	MarketCapUSD      float64     `json:"marketCapUsd,omitempty"`
	LiquidityUSD      float64     `json:"liquidityUsd,omitempty"`
	StopLossPercent   float64     `json:"stopLossPercent"`
	TakeProfitPercent float64     `json:"takeProfitPercent"`
	Wallets           []Wallet    `json:"wallets,omitempty"`
	Timestamp         int64       `json:"timestamp"`
}

// PreSignal shares the Signal shape; it only ever warms the prepared-tx cache.
type PreSignal = Signal

// Position is the mutable record C5 owns for one open token exposure.
type Position struct {
	TokenMint         string
	TokenSymbol       string
	EntryPriceUSD     float64
	RemainingTokens   uint64
	OriginalTokens    uint64
	InvestedBaseUnits uint64 // lamports (or base-currency smallest unit) spent on entry
	StopLossPercent   float64
	TakeProfitPercent float64
	StopLossPrice     float64
	TakeProfitPrice   float64
	EntryTime         time.Time
	OpenTxID          string
	FailedSellCount   int
	Unsellable        bool
	UnsellableReason  string
	Venue             Venue
	PriceSynced       bool
	HighWaterPrice    float64
	Class             SignalClass
	ScaledExitStage   int
}

// DeriveLevels recomputes StopLossPrice/TakeProfitPrice from EntryPriceUSD and
// the configured SL/TP percentages. Invariant #2 in spec.md §3.
func (p *Position) DeriveLevels() {
	p.StopLossPrice = p.EntryPriceUSD * (1 - p.StopLossPercent/100)
	p.TakeProfitPrice = p.EntryPriceUSD * (1 + p.TakeProfitPercent/100)
}

// Snapshot returns a value copy safe to hand to a reader outside the registry's lock.
func (p *Position) Snapshot() Position {
	return *p
}

// PreparedTX is a pre-built, unsigned curve-venue buy warmed from a pre-signal.
type PreparedTX struct {
	TokenMint     string
	TokenSymbol   string
	TxBytes       []byte
	CreatedAt     time.Time
	MarketCapHint float64
	EntryHint     float64
}

// Expired reports whether the entry has outlived its TTL (invariant #6).
func (p *PreparedTX) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(p.CreatedAt) >= ttl
}

// PriceUpdate is a single tick out of the price feed for one token.
type PriceUpdate struct {
	TokenMint       string
	PriceUSD        float64
	MarketCapUSD    float64
	SourceTimestamp time.Time
}

// TradeAction distinguishes buy vs. sell results.
type TradeAction string

const (
	ActionBuy  TradeAction = "buy"
	ActionSell TradeAction = "sell"
)

// TradeResult is published back to C1 on every signal that reaches the
// orchestrator, success or failure (spec.md §3, §7 "results contract").
type TradeResult struct {
	Success       bool        `json:"success"`
	Action        TradeAction `json:"action"`
	TokenMint     string      `json:"tokenMint"`
	BaseAmount    uint64      `json:"baseAmount,omitempty"`
	TokenAmount   uint64      `json:"tokenAmount,omitempty"`
	VenueTxID     string      `json:"venueTxId,omitempty"`
	Error         string      `json:"error,omitempty"`
	LatencyMs     int64       `json:"latencyMs"`
	Attempt       int         `json:"attempt"`
	RealizedPnL   float64     `json:"realizedPnl,omitempty"`
	RealizedPnLPc float64     `json:"realizedPnlPercent,omitempty"`
	Signal        *Signal     `json:"signal,omitempty"`
	Timestamp     int64       `json:"timestamp"`
}

// ExitReason names why the monitor decided to sell.
type ExitReason string

const (
	ExitStopLoss          ExitReason = "StopLoss"
	ExitTakeProfit        ExitReason = "TakeProfit"
	ExitScaledTakeProfit   ExitReason = "ScaledTakeProfit"
)

// ExitDecision carries the reason plus the scale-out parameters, when any.
type ExitDecision struct {
	Reason         ExitReason
	Stage          int
	SellPercent    float64
	TriggerPercent float64
}
