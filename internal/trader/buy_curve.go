package trader

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"memecoin-agent/internal/config"
	"memecoin-agent/internal/metrics"
	"memecoin-agent/internal/model"
)

// buyCurve is the ninja-class buy branch: direct-curve venue, fast-confirm
// from the prepared-tx cache on the first attempt, fresh build on retry
// (spec.md §4.7).
func (o *Orchestrator) buyCurve(ctx context.Context, sig model.Signal, start time.Time) model.TradeResult {
	trading := o.cfg.GetTrading()
	fees := o.cfg.Get().Fees

	var lastErr error
	for attempt := 1; attempt <= maxCurveBuyAttempts; attempt++ {
		timer := metrics.NewTimer()
		txBytes, err := o.curveBuyTxBytes(ctx, sig, attempt, trading.BaseAmountLamports, trading.SlippageBps, fees.PriorityFeeBuyLamports)
		timer.MarkQuoteDone()
		if err != nil {
			lastErr = err
			o.recordTrade(false, timer)
			log.Warn().Err(err).Str("mint", sig.TokenMint).Int("attempt", attempt).Msg("trader: curve buy build failed")
			if attempt < maxCurveBuyAttempts {
				time.Sleep(buyRetryBackoff)
			}
			continue
		}

		signed := o.txBuilder.Sign(txBytes)
		timer.MarkSignDone()
		venueTxID, submitErr := o.submitWithFallback(ctx, signed)
		timer.MarkSendDone()
		if submitErr != nil {
			lastErr = submitErr
			o.recordTrade(false, timer)
			log.Warn().Err(submitErr).Str("mint", sig.TokenMint).Int("attempt", attempt).Msg("trader: curve buy submission failed")
			if attempt < maxCurveBuyAttempts {
				time.Sleep(buyRetryBackoff)
				continue
			}
			break
		}

		o.recordTrade(true, timer)
		tokenAmount := o.estimateCurveTokenAmount(trading.BaseAmountLamports, sig.EntryPriceUSD)
		o.registerCurvePosition(sig, trading, tokenAmount, venueTxID)

		log.Info().Str("mint", sig.TokenMint).Str("venueTxId", venueTxID).Int("attempt", attempt).Msg("trader: curve buy executed")
		return model.TradeResult{
			Success:     true,
			Action:      model.ActionBuy,
			TokenMint:   sig.TokenMint,
			BaseAmount:  trading.BaseAmountLamports,
			TokenAmount: tokenAmount,
			VenueTxID:   venueTxID,
			LatencyMs:   time.Since(start).Milliseconds(),
			Attempt:     attempt,
			Signal:      &sig,
			Timestamp:   time.Now().Unix(),
		}
	}

	return failureResult(sig, model.ActionBuy, start, lastErr.Error())
}

// curveBuyTxBytes resolves the raw unsigned tx bytes for one attempt: a
// fast-confirm cache hit on attempt 1 if present, a fresh build otherwise.
// The cache entry is always removed after the first use (spec.md §4.6).
func (o *Orchestrator) curveBuyTxBytes(ctx context.Context, sig model.Signal, attempt int, baseAmount uint64, slippageBps int, priorityFee uint64) ([]byte, error) {
	if attempt == 1 {
		if entry, ok := o.prepared.Get(sig.TokenMint); ok {
			o.prepared.Remove(sig.TokenMint)
			log.Debug().Str("mint", sig.TokenMint).Msg("trader: fast-confirm cache hit")
			return entry.TxBytes, nil
		}
	} else {
		o.prepared.Remove(sig.TokenMint)
	}

	return o.curve.BuildBuy(ctx, sig.TokenMint, o.wallet.Address(), baseAmount, slippageBps, priorityFee)
}

// estimateCurveTokenAmount applies the resolved SOL/USD-live-value formula
// (base_amount · sol_usd_estimate) / entry_price_hint; exact fill is not
// reconciled (spec.md §4.7, Open Question (b)).
func (o *Orchestrator) estimateCurveTokenAmount(baseAmountLamports uint64, entryPriceHint float64) uint64 {
	if entryPriceHint <= 0 {
		return 0
	}
	baseSOL := float64(baseAmountLamports) / 1e9
	solUSD := o.prices.SOLUSD()
	return uint64((baseSOL * solUSD) / entryPriceHint)
}

func (o *Orchestrator) registerCurvePosition(sig model.Signal, trading config.TradingConfig, tokenAmount uint64, venueTxID string) {
	pos := &model.Position{
		TokenMint:         sig.TokenMint,
		TokenSymbol:       sig.TokenSymbol,
		EntryPriceUSD:     sig.EntryPriceUSD,
		RemainingTokens:   tokenAmount,
		OriginalTokens:    tokenAmount,
		InvestedBaseUnits: trading.BaseAmountLamports,
		StopLossPercent:   sig.StopLossPercent,
		TakeProfitPercent: sig.TakeProfitPercent,
		EntryTime:         time.Now(),
		OpenTxID:          venueTxID,
		Venue:             model.VenueCurve,
		PriceSynced:       false,
		Class:             sig.Class,
	}
	pos.DeriveLevels()
	o.positions.Add(pos)
}
