// Package trader implements the trader orchestrator (C7, spec.md §4.7): the
// signal-to-position pipeline (venue route → build → sign → submit →
// register) and the sell orchestration C8 triggers on exit. Grounded on the
// teacher's Executor in internal/trading/executor.go — the
// callback-on-completion shape and the structured logging are kept; the
// Orchestrator holds no mutex of its own, and the buy/sell bodies are rewritten for the two-venue, staged-exit
// semantics this spec requires.
package trader

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"memecoin-agent/internal/blockchain"
	"memecoin-agent/internal/bundle"
	"memecoin-agent/internal/config"
	"memecoin-agent/internal/metrics"
	"memecoin-agent/internal/model"
	"memecoin-agent/internal/position"
	"memecoin-agent/internal/preparedtx"
	"memecoin-agent/internal/price"
	"memecoin-agent/internal/venue/aggregator"
	"memecoin-agent/internal/venue/curve"
)

// maxCurveBuyAttempts / maxAggregatorBuyAttempts bound a buy's
// sign-submit-retry loop and the *SellAttempts constants a sell's
// (spec.md §4.7); priceJumpVetoPercent is the pre-buy price-jump veto.
const (
	maxCurveBuyAttempts      = 2
	maxAggregatorBuyAttempts = 2
	buyRetryBackoff          = 500 * time.Millisecond

	maxCurveSellAttempts      = 3
	maxAggregatorSellAttempts = 5
	curveSellRetryBackoff     = 500 * time.Millisecond
	aggregatorSellRetryBackoff = 1 * time.Second

	priceJumpVetoPercent = 30.0
)

// Orchestrator is C7: it owns no state of its own beyond its collaborators —
// every mutation lands in the position registry or the prepared-tx cache.
type Orchestrator struct {
	cfg        *config.Manager
	wallet     *blockchain.Wallet
	rpc        *blockchain.RPCClient
	bundle     *bundle.Client
	aggregator *aggregator.Client
	curve      *curve.Client
	positions  *position.Registry
	prepared   *preparedtx.Cache
	prices     *price.Cache
	metrics    *metrics.Metrics
	txBuilder  *blockchain.TransactionBuilder

	publish func(context.Context, model.TradeResult) error
}

// New wires the orchestrator's collaborators. publish is typically
// queue.Bus.PublishResult; it is injected so trader has no direct dependency
// on the queue's transport. txBuilder is the single signer for every buy and
// sell attempt (spec.md §4.2's single-signer rule).
func New(
	cfg *config.Manager,
	wallet *blockchain.Wallet,
	rpc *blockchain.RPCClient,
	bundleClient *bundle.Client,
	aggregatorClient *aggregator.Client,
	curveClient *curve.Client,
	positions *position.Registry,
	prepared *preparedtx.Cache,
	prices *price.Cache,
	tradeMetrics *metrics.Metrics,
	txBuilder *blockchain.TransactionBuilder,
	publish func(context.Context, model.TradeResult) error,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		wallet:     wallet,
		rpc:        rpc,
		bundle:     bundleClient,
		aggregator: aggregatorClient,
		curve:      curveClient,
		positions:  positions,
		prepared:   prepared,
		prices:     prices,
		metrics:    tradeMetrics,
		txBuilder:  txBuilder,
		publish:    publish,
	}
}

// ProcessSignal runs the full buy path for one signal: precondition checks,
// venue routing, build/sign/submit, position registration, and result
// publication. Called sequentially by main.loop (spec.md §5) so that no two
// buys for the same token can race.
func (o *Orchestrator) ProcessSignal(ctx context.Context, sig model.Signal) {
	start := time.Now()
	result := o.buy(ctx, sig, start)
	if o.publish == nil {
		return
	}
	if err := o.publish(ctx, result); err != nil {
		log.Error().Err(err).Str("mint", sig.TokenMint).Msg("trader: failed to publish trade result")
	}
}

func (o *Orchestrator) buy(ctx context.Context, sig model.Signal, start time.Time) model.TradeResult {
	if o.positions.Has(sig.TokenMint) {
		log.Warn().Str("mint", sig.TokenMint).Msg("trader: signal for a token we already hold, skipping")
		return failureResult(sig, model.ActionBuy, start, "already have a position for this token")
	}

	if sig.Class == model.SignalClassNinja {
		return o.buyCurve(ctx, sig, start)
	}
	return o.buyAggregator(ctx, sig, start)
}

// Prepare is C7's pre-signal warm-up path: build a curve buy transaction
// ahead of time and cache it keyed by token. Never signs or submits; errors
// are logged and swallowed (spec.md §4.7).
func (o *Orchestrator) Prepare(ctx context.Context, pre model.PreSignal) {
	if o.positions.Has(pre.TokenMint) {
		return
	}

	trading := o.cfg.GetTrading()
	fees := o.cfg.Get().Fees

	txBytes, err := o.curve.BuildBuy(ctx, pre.TokenMint, o.wallet.Address(), trading.BaseAmountLamports, trading.SlippageBps, fees.PriorityFeeBuyLamports)
	if err != nil {
		log.Warn().Err(err).Str("mint", pre.TokenMint).Msg("trader: pre-signal warm-up build failed, swallowing")
		return
	}

	o.prepared.Insert(model.PreparedTX{
		TokenMint:     pre.TokenMint,
		TokenSymbol:   pre.TokenSymbol,
		TxBytes:       txBytes,
		CreatedAt:     time.Now(),
		MarketCapHint: pre.MarketCapUSD,
		EntryHint:     pre.EntryPriceUSD,
	})
	log.Debug().Str("mint", pre.TokenMint).Msg("trader: prepared-tx cached from pre-signal")
}

// submitWithFallback submits a signed transaction via the bundle submitter,
// falling back to plain RPC on any bundle-side failure (spec.md §4.3, §4.7).
func (o *Orchestrator) submitWithFallback(ctx context.Context, signedTx []byte) (string, error) {
	bundleID, err := o.bundle.Submit(ctx, signedTx)
	if err == nil {
		return bundleID, nil
	}
	log.Warn().Err(err).Msg("trader: bundle submission failed, falling back to RPC")

	sigB64 := base64.StdEncoding.EncodeToString(signedTx)
	txSig, rpcErr := o.rpc.SendTransaction(ctx, sigB64, true)
	if rpcErr != nil {
		return "", fmt.Errorf("bundle failed (%v) and RPC fallback failed: %w", err, rpcErr)
	}
	return txSig, nil
}

// recordTrade is nil-safe so tests (and any caller) can omit a metrics
// tracker without a guard at every call site.
func (o *Orchestrator) recordTrade(success bool, timer *metrics.Timer) {
	if o.metrics == nil {
		return
	}
	quoteMs, signMs, sendMs := timer.Breakdown()
	o.metrics.RecordTrade(success, quoteMs, signMs, sendMs)
}

func failureResult(sig model.Signal, action model.TradeAction, start time.Time, errMsg string) model.TradeResult {
	return model.TradeResult{
		Success:   false,
		Action:    action,
		TokenMint: sig.TokenMint,
		Error:     errMsg,
		LatencyMs: time.Since(start).Milliseconds(),
		Signal:    &sig,
		Timestamp: time.Now().Unix(),
	}
}
