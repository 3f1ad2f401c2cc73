// Package monitor implements the position monitor (C8, spec.md §4.8): a
// single cooperative task that selects on price updates, a timer tick, and
// a shutdown broadcast, evaluating the exit-decision state machine (§4.9)
// against every tracked position and triggering sells through C7.
package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"memecoin-agent/internal/model"
	"memecoin-agent/internal/position"
	"memecoin-agent/internal/price"
)

// PRICE_SYNC_WAIT_SECS in spec.md §4.9: a curve-venue position within this
// window of its entry time, and not yet synced, never triggers an exit.
const priceSyncWaitSecs = 3

// Seller is the subset of the trader orchestrator the monitor depends on.
type Seller interface {
	Sell(ctx context.Context, tokenMint string, decision model.ExitDecision)
}

// Monitor owns no position state; it reads snapshots from the registry and
// the price cache and delegates every mutation to them or to the seller.
type Monitor struct {
	positions    *position.Registry
	prices       *price.Cache
	seller       Seller
	tickInterval time.Duration
}

// New builds a Monitor with the configured tick interval (spec.md §6:
// "position-check interval seconds", default 5).
func New(positions *position.Registry, prices *price.Cache, seller Seller, tickInterval time.Duration) *Monitor {
	if tickInterval <= 0 {
		tickInterval = 5 * time.Second
	}
	return &Monitor{positions: positions, prices: prices, seller: seller, tickInterval: tickInterval}
}

// Run is the monitor's long-lived task: it selects on the price-update
// channel, the timer tick, and ctx cancellation (the shutdown broadcast),
// per spec.md §4.8/§5. It blocks until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()

	updates := m.prices.Updates()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("monitor: shutdown signal received, stopping")
			return

		case update, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			m.handlePriceUpdate(ctx, update)

		case <-ticker.C:
			m.handleTick(ctx)
		}
	}
}

// handlePriceUpdate is the streaming-source path: one update matching a
// tracked position (spec.md §4.8 item 1).
func (m *Monitor) handlePriceUpdate(ctx context.Context, update model.PriceUpdate) {
	pos, ok := m.positions.Get(update.TokenMint)
	if !ok {
		return
	}

	if pos.Venue == model.VenueCurve && !pos.PriceSynced {
		m.positions.SyncEntryPrice(update.TokenMint, update.PriceUSD)
		return // next update observes the synced state
	}

	m.positions.UpdateHighPrice(update.TokenMint, update.PriceUSD)
	m.evaluate(ctx, update.TokenMint, update.PriceUSD)
}

// handleTick is the polling path: snapshot every open position, consult the
// streaming cache first, and fall back to polling only when absent (spec.md
// §4.8 item 2).
func (m *Monitor) handleTick(ctx context.Context) {
	for _, pos := range m.positions.All() {
		var priceUSD float64

		if cached, ok := m.prices.Get(pos.TokenMint); ok {
			priceUSD = cached.PriceUSD
		} else {
			update, err := m.prices.Poll(ctx, pos.TokenMint)
			if err != nil {
				log.Debug().Err(err).Str("mint", pos.TokenMint).Msg("monitor: polling fallback failed")
				continue
			}
			priceUSD = update.PriceUSD
		}

		if pos.Venue == model.VenueCurve && !pos.PriceSynced {
			m.positions.SyncEntryPrice(pos.TokenMint, priceUSD)
			continue
		}

		m.positions.UpdateHighPrice(pos.TokenMint, priceUSD)
		m.evaluate(ctx, pos.TokenMint, priceUSD)
	}
}

func needsPriceSync(pos model.Position) bool {
	return !pos.PriceSynced && time.Since(pos.EntryTime) < priceSyncWaitSecs*time.Second
}

func (m *Monitor) evaluate(ctx context.Context, tokenMint string, currentPrice float64) {
	pos, ok := m.positions.Get(tokenMint)
	if !ok {
		return
	}

	decision, ok := CheckExit(pos, currentPrice)
	if !ok {
		return
	}

	log.Info().Str("mint", tokenMint).Str("reason", string(decision.Reason)).
		Float64("price", currentPrice).Msg("monitor: exit condition met, triggering sell")
	m.seller.Sell(ctx, tokenMint, decision)
}
