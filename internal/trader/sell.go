package trader

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"memecoin-agent/internal/blockchain"
	"memecoin-agent/internal/metrics"
	"memecoin-agent/internal/model"
	"memecoin-agent/internal/venue/curve"
)

// Sell runs C7's sell orchestration for one exit decision, triggered by C8
// (spec.md §4.7, §4.9). It routes by the position's venue flag and, on
// success, either closes the position or advances its scaled-exit stage.
func (o *Orchestrator) Sell(ctx context.Context, tokenMint string, decision model.ExitDecision) {
	pos, ok := o.positions.Get(tokenMint)
	if !ok || pos.Unsellable {
		return
	}

	start := time.Now()

	// Scaled exits optimistically mutate the registry before the venue sell
	// (spec.md §9); full exits (stop-loss, standard take-profit) only
	// decrement/remove the position once the sell has actually succeeded,
	// so a failed attempt leaves RemainingTokens untouched for the retry.
	isScaled := decision.Reason == model.ExitScaledTakeProfit

	sellPercent := 100.0
	tokensToSell := pos.RemainingTokens
	fullyClosed := false

	if isScaled {
		sellPercent = decision.SellPercent
		var advanced bool
		tokensToSell, fullyClosed, advanced = o.positions.AdvanceScaledExit(tokenMint, decision.Stage, sellPercent)
		if !advanced {
			return
		}
	}

	var venueTxID string
	var err error
	var routeAbsent bool
	switch pos.Venue {
	case model.VenueCurve:
		venueTxID, err, routeAbsent = o.sellCurve(ctx, pos, sellPercent)
	case model.VenueAggregator:
		venueTxID, err, routeAbsent = o.sellAggregator(ctx, pos, tokensToSell)
	}

	if err != nil {
		if routeAbsent {
			o.positions.IncrementFailedSell(tokenMint)
		}
		log.Error().Err(err).Str("mint", tokenMint).Str("reason", string(decision.Reason)).Msg("trader: sell failed")
		o.publishSellResult(ctx, pos, decision, tokensToSell, "", false, start, err.Error())
		return
	}

	if !isScaled {
		o.positions.Remove(tokenMint)
		fullyClosed = true
	} else if fullyClosed {
		o.positions.Remove(tokenMint)
	}

	log.Info().Str("mint", tokenMint).Str("venueTxId", venueTxID).Str("reason", string(decision.Reason)).
		Bool("fullyClosed", fullyClosed).Msg("trader: sell executed")
	o.publishSellResult(ctx, pos, decision, tokensToSell, venueTxID, true, start, "")
}

func (o *Orchestrator) publishSellResult(ctx context.Context, pos model.Position, decision model.ExitDecision, tokensSold uint64, venueTxID string, success bool, start time.Time, errMsg string) {
	if o.publish == nil {
		return
	}

	result := model.TradeResult{
		Success:     success,
		Action:      model.ActionSell,
		TokenMint:   pos.TokenMint,
		TokenAmount: tokensSold,
		VenueTxID:   venueTxID,
		Error:       errMsg,
		LatencyMs:   time.Since(start).Milliseconds(),
		Timestamp:   time.Now().Unix(),
	}

	if success {
		soldFraction := 0.0
		if pos.OriginalTokens > 0 {
			soldFraction = float64(tokensSold) / float64(pos.OriginalTokens)
		}
		investedSOL := float64(pos.InvestedBaseUnits) / 1e9 * soldFraction
		receivedSOL := estimateReceivedSOL(o, pos, tokensSold)
		result.RealizedPnL = receivedSOL - investedSOL
		if investedSOL > 0 {
			result.RealizedPnLPc = (receivedSOL/investedSOL - 1) * 100
		}
	}

	if err := o.publish(ctx, result); err != nil {
		log.Error().Err(err).Str("mint", pos.TokenMint).Msg("trader: failed to publish sell result")
	}
}

// estimateReceivedSOL values the sold tokens at the position's last-known
// USD price converted through the live SOL/USD cell; exact settlement
// against the on-chain fill is explicitly out of scope (spec.md §1 Non-goals).
func estimateReceivedSOL(o *Orchestrator, pos model.Position, tokensSold uint64) float64 {
	solUSD := o.prices.SOLUSD()
	if solUSD <= 0 {
		return 0
	}
	if update, ok := o.prices.Get(pos.TokenMint); ok && update.PriceUSD > 0 {
		return (float64(tokensSold) * update.PriceUSD) / solUSD
	}
	return (float64(tokensSold) * pos.EntryPriceUSD) / solUSD
}

// sellCurve always requests the decision's sell percent (historically always
// "100%"; extended to accept fractional amounts for ninja staged exits, per
// spec.md Open Question). Slippage escalates 5% per retry attempt.
func (o *Orchestrator) sellCurve(ctx context.Context, pos model.Position, sellPercent float64) (venueTxID string, err error, routeAbsent bool) {
	trading := o.cfg.GetTrading()
	fees := o.cfg.Get().Fees

	amountPercent := curve.FullSell
	if sellPercent < 100 {
		amountPercent = curve.PercentString(sellPercent)
	}

	var lastErr error
	for attempt := 1; attempt <= maxCurveSellAttempts; attempt++ {
		timer := metrics.NewTimer()
		slippageBps := trading.SlippageBps + (attempt-1)*500 // +5% per attempt

		txBytes, buildErr := o.curve.BuildSell(ctx, pos.TokenMint, o.wallet.Address(), amountPercent, slippageBps, fees.PriorityFeeSellLamports)
		timer.MarkQuoteDone()
		if buildErr != nil {
			lastErr = buildErr
			if blockchain.IsRouteAbsent(buildErr) {
				routeAbsent = true
			}
			o.recordTrade(false, timer)
			log.Warn().Err(buildErr).Str("mint", pos.TokenMint).Int("attempt", attempt).Msg("trader: curve sell build failed")
			if attempt < maxCurveSellAttempts {
				time.Sleep(curveSellRetryBackoff)
			}
			continue
		}

		signed := o.txBuilder.Sign(txBytes)
		timer.MarkSignDone()
		venueTxID, submitErr := o.submitWithFallback(ctx, signed)
		timer.MarkSendDone()
		if submitErr != nil {
			lastErr = submitErr
			if blockchain.IsRouteAbsent(submitErr) {
				routeAbsent = true
			}
			o.recordTrade(false, timer)
			log.Warn().Err(submitErr).Str("mint", pos.TokenMint).Int("attempt", attempt).Msg("trader: curve sell submission failed")
			if attempt < maxCurveSellAttempts {
				time.Sleep(curveSellRetryBackoff)
				continue
			}
			break
		}

		o.recordTrade(true, timer)
		return venueTxID, nil, false
	}

	return "", fmt.Errorf("curve sell exhausted %d attempts: %w", maxCurveSellAttempts, lastErr), routeAbsent
}

// sellAggregator escalates slippage by 500 + (attempt-1)*200 bps across 5
// attempts: extra slippage compensates for thinner exit-side depth.
func (o *Orchestrator) sellAggregator(ctx context.Context, pos model.Position, tokenAmount uint64) (venueTxID string, err error, routeAbsent bool) {
	trading := o.cfg.GetTrading()
	fees := o.cfg.Get().Fees

	var lastErr error
	for attempt := 1; attempt <= maxAggregatorSellAttempts; attempt++ {
		timer := metrics.NewTimer()
		slippageBps := trading.SlippageBps + 500 + (attempt-1)*200

		build, buildErr := o.aggregator.BuildSell(ctx, pos.TokenMint, o.wallet.Address(), tokenAmount, slippageBps, fees.PriorityFeeSellLamports)
		timer.MarkQuoteDone()
		if buildErr != nil {
			lastErr = buildErr
			if blockchain.IsRouteAbsent(buildErr) {
				routeAbsent = true
			}
			o.recordTrade(false, timer)
			log.Warn().Err(buildErr).Str("mint", pos.TokenMint).Int("attempt", attempt).Msg("trader: aggregator sell build failed")
			if attempt < maxAggregatorSellAttempts {
				time.Sleep(aggregatorSellRetryBackoff)
			}
			continue
		}

		signed := o.txBuilder.Sign(build.TxBytes)
		timer.MarkSignDone()
		venueTxID, submitErr := o.submitWithFallback(ctx, signed)
		timer.MarkSendDone()
		if submitErr != nil {
			lastErr = submitErr
			if blockchain.IsRouteAbsent(submitErr) {
				routeAbsent = true
			}
			o.recordTrade(false, timer)
			log.Warn().Err(submitErr).Str("mint", pos.TokenMint).Int("attempt", attempt).Msg("trader: aggregator sell submission failed")
			if attempt < maxAggregatorSellAttempts {
				time.Sleep(aggregatorSellRetryBackoff)
				continue
			}
			break
		}

		o.recordTrade(true, timer)
		return venueTxID, nil, false
	}

	return "", fmt.Errorf("aggregator sell exhausted %d attempts: %w", maxAggregatorSellAttempts, lastErr), routeAbsent
}
