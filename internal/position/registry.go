// Package position implements the position registry (C5, spec.md §4.5): a
// process-wide, reader/writer-locked map from token mint to model.Position.
// No cross-restart persistence (spec.md explicitly excludes it); adapted
// from the teacher's PositionTracker shape in internal/trading/position.go.
package position

import (
	"math"
	"sync"

	"memecoin-agent/internal/model"
)

// MaxFailedSells is the cumulative failed-sell count at which a position is
// marked unsellable and the monitor stops triggering it (spec.md §4.7, §4.9).
const MaxFailedSells = 3

// Registry is the guarded map. All mutating methods take the write lock;
// reads take the read lock and return independent copies, per spec.md §5.
type Registry struct {
	mu        sync.RWMutex
	positions map[string]*model.Position
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{positions: make(map[string]*model.Position)}
}

// Add registers a new position, keyed by token mint.
func (r *Registry) Add(pos *model.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions[pos.TokenMint] = pos
}

// Remove deletes a position and returns it, if present.
func (r *Registry) Remove(tokenMint string) (model.Position, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.positions[tokenMint]
	if !ok {
		return model.Position{}, false
	}
	delete(r.positions, tokenMint)
	return pos.Snapshot(), true
}

// Get returns a thread-safe copy of one position.
func (r *Registry) Get(tokenMint string) (model.Position, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, ok := r.positions[tokenMint]
	if !ok {
		return model.Position{}, false
	}
	return pos.Snapshot(), true
}

// All returns thread-safe copies of every open position.
func (r *Registry) All() []model.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Position, 0, len(r.positions))
	for _, pos := range r.positions {
		out = append(out, pos.Snapshot())
	}
	return out
}

// Has reports whether a position exists for the token.
func (r *Registry) Has(tokenMint string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.positions[tokenMint]
	return ok
}

// Count returns the number of open positions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.positions)
}

// SyncEntryPrice overwrites the entry price with the real, on-chain-derived
// price (curve-venue positions only), resets the high-water mark, recomputes
// SL/TP, and marks the position synced. No-op if already synced or the
// position doesn't need sync. Returns true if it applied the sync.
func (r *Registry) SyncEntryPrice(tokenMint string, realPrice float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.positions[tokenMint]
	if !ok || pos.Venue != model.VenueCurve || pos.PriceSynced {
		return false
	}

	pos.EntryPriceUSD = realPrice
	pos.HighWaterPrice = realPrice
	pos.DeriveLevels()
	pos.PriceSynced = true
	return true
}

// UpdateHighPrice monotonically raises the high-water mark. Informational
// only; it does not gate any exit decision.
func (r *Registry) UpdateHighPrice(tokenMint string, price float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.positions[tokenMint]
	if !ok {
		return
	}
	if price > pos.HighWaterPrice {
		pos.HighWaterPrice = price
	}
}

// AdvanceScaledExit computes the scaled-exit sell under the write lock so
// two rapid price updates cannot both advance the same stage (spec.md §5).
// It returns the token amount to sell and whether the position is now fully
// closed; ok is false if the position doesn't exist.
func (r *Registry) AdvanceScaledExit(tokenMint string, stage int, sellPercent float64) (tokensToSell uint64, fullyClosed bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, exists := r.positions[tokenMint]
	if !exists {
		return 0, false, false
	}

	tokensToSell = uint64(math.Floor(float64(pos.RemainingTokens) * sellPercent / 100))
	if tokensToSell > pos.RemainingTokens {
		tokensToSell = pos.RemainingTokens
	}
	pos.RemainingTokens -= tokensToSell
	pos.ScaledExitStage = stage

	return tokensToSell, pos.RemainingTokens == 0, true
}

// IncrementFailedSell bumps the cumulative failed-sell counter; at
// MaxFailedSells it marks the position unsellable and reports that fact.
func (r *Registry) IncrementFailedSell(tokenMint string) (markedUnsellable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.positions[tokenMint]
	if !ok {
		return false
	}

	pos.FailedSellCount++
	if pos.FailedSellCount >= MaxFailedSells {
		pos.Unsellable = true
		pos.UnsellableReason = "3 cumulative sell failures"
		return true
	}
	return false
}

// MarkUnsellable force-marks a position unsellable with an explicit reason.
func (r *Registry) MarkUnsellable(tokenMint, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.positions[tokenMint]
	if !ok {
		return
	}
	pos.Unsellable = true
	pos.UnsellableReason = reason
}
