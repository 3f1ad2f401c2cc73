package trader

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"memecoin-agent/internal/config"
	"memecoin-agent/internal/metrics"
	"memecoin-agent/internal/model"
	"memecoin-agent/internal/venue/aggregator"
)

func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

// buyAggregator is the consensus-class buy branch: venue A, with a
// price-jump veto against the signal's reference entry price before it
// commits to building a transaction (spec.md §4.7).
func (o *Orchestrator) buyAggregator(ctx context.Context, sig model.Signal, start time.Time) model.TradeResult {
	trading := o.cfg.GetTrading()
	fees := o.cfg.Get().Fees

	quote, err := o.aggregator.GetQuote(ctx, aggregator.SOLMint, sig.TokenMint, trading.BaseAmountLamports, trading.SlippageBps)
	if err != nil {
		return failureResult(sig, model.ActionBuy, start, fmt.Sprintf("quote failed: %v", err))
	}

	outAmount, err := parseUint(quote.OutAmount)
	if err != nil || outAmount == 0 {
		return failureResult(sig, model.ActionBuy, start, "quote returned no out amount")
	}
	currentPrice := float64(trading.BaseAmountLamports) / float64(outAmount)

	if sig.EntryPriceUSD > 0 {
		jumpPercent := (currentPrice - sig.EntryPriceUSD) / sig.EntryPriceUSD * 100
		if jumpPercent > priceJumpVetoPercent {
			log.Warn().Str("mint", sig.TokenMint).Float64("jumpPercent", jumpPercent).Msg("trader: price jumped past veto threshold, aborting buy")
			return failureResult(sig, model.ActionBuy, start, fmt.Sprintf("price jumped %.1f%% since signal, aborting", jumpPercent))
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAggregatorBuyAttempts; attempt++ {
		timer := metrics.NewTimer()
		build, err := o.aggregator.BuildBuy(ctx, sig.TokenMint, o.wallet.Address(), trading.BaseAmountLamports, trading.SlippageBps, fees.PriorityFeeBuyLamports)
		timer.MarkQuoteDone()
		if err != nil {
			lastErr = err
			o.recordTrade(false, timer)
			log.Warn().Err(err).Str("mint", sig.TokenMint).Int("attempt", attempt).Msg("trader: aggregator buy build failed")
			if attempt < maxAggregatorBuyAttempts {
				time.Sleep(buyRetryBackoff)
			}
			continue
		}

		signed := o.txBuilder.Sign(build.TxBytes)
		timer.MarkSignDone()
		venueTxID, submitErr := o.submitWithFallback(ctx, signed)
		timer.MarkSendDone()
		if submitErr != nil {
			lastErr = submitErr
			o.recordTrade(false, timer)
			log.Warn().Err(submitErr).Str("mint", sig.TokenMint).Int("attempt", attempt).Msg("trader: aggregator buy submission failed")
			if attempt < maxAggregatorBuyAttempts {
				time.Sleep(buyRetryBackoff)
				continue
			}
			break
		}
		o.recordTrade(true, timer)

		o.registerAggregatorPosition(sig, trading, outAmount, currentPrice, venueTxID)

		log.Info().Str("mint", sig.TokenMint).Str("venueTxId", venueTxID).Int("attempt", attempt).Msg("trader: aggregator buy executed")
		return model.TradeResult{
			Success:     true,
			Action:      model.ActionBuy,
			TokenMint:   sig.TokenMint,
			BaseAmount:  trading.BaseAmountLamports,
			TokenAmount: outAmount,
			VenueTxID:   venueTxID,
			LatencyMs:   time.Since(start).Milliseconds(),
			Attempt:     attempt,
			Signal:      &sig,
			Timestamp:   time.Now().Unix(),
		}
	}

	return failureResult(sig, model.ActionBuy, start, lastErr.Error())
}

// registerAggregatorPosition registers the position using the actual
// computed entry price, not the signal's reference price (spec.md §4.7).
func (o *Orchestrator) registerAggregatorPosition(sig model.Signal, trading config.TradingConfig, tokenAmount uint64, actualEntryPrice float64, venueTxID string) {
	pos := &model.Position{
		TokenMint:         sig.TokenMint,
		TokenSymbol:       sig.TokenSymbol,
		EntryPriceUSD:     actualEntryPrice,
		RemainingTokens:   tokenAmount,
		OriginalTokens:    tokenAmount,
		InvestedBaseUnits: trading.BaseAmountLamports,
		StopLossPercent:   sig.StopLossPercent,
		TakeProfitPercent: sig.TakeProfitPercent,
		EntryTime:         time.Now(),
		OpenTxID:          venueTxID,
		Venue:             model.VenueAggregator,
		PriceSynced:       true,
		Class:             sig.Class,
	}
	pos.DeriveLevels()
	o.positions.Add(pos)
}
