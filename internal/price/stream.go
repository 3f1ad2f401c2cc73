// Package price implements the price feed (C4, spec.md §4.4): a streaming
// websocket source fused with a polling HTTP fallback behind one cache.
//
// The teacher repo's internal/websocket package calls methods on a *Client
// type (AccountSubscribe, SignatureSubscribe, Unsubscribe) that is never
// defined anywhere in that package, and its subscription model (per-account
// RPC subscriptions) doesn't match this feed's per-token trade-event stream
// anyway. This Stream is written from scratch against the bonding-curve
// trade-event protocol, in the same connect/read-loop/reconnect shape the
// teacher uses for its other long-lived network clients.
package price

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"memecoin-agent/internal/model"
)

// FixedSupply is the fixed total token supply convention used to derive
// market cap from price, per spec.md §4.4.
const FixedSupply = 1_000_000_000.0

type subscribeMessage struct {
	Method string   `json:"method"`
	Keys   []string `json:"keys"`
}

// tradeEvent is the subset of fields the bonding-curve stream emits per trade.
type tradeEvent struct {
	Mint                  string   `json:"mint"`
	SolAmount             *float64 `json:"solAmount"`
	TokenAmount           *float64 `json:"tokenAmount"`
	VirtualSolReserves    *float64 `json:"virtualSolReserves"`
	VirtualTokenReserves  *float64 `json:"virtualTokenReserves"`
	Timestamp             *int64   `json:"timestamp"`
}

// Stream is the long-lived websocket source. It holds its own cache of the
// latest price per token and publishes every update on Updates().
type Stream struct {
	url string

	solUSD atomic.Value // float64

	mu       sync.RWMutex
	conn     *websocket.Conn
	tracked  map[string]struct{} // tokens ever subscribed, for resubscribe on reconnect
	prices   map[string]model.PriceUpdate

	subscribeCh chan string
	updates     chan model.PriceUpdate
}

// NewStream builds a streaming price source. initialSolUSD seeds the shared
// SOL/USD reference cell until the orchestrator updates it.
func NewStream(url string, initialSolUSD float64) *Stream {
	s := &Stream{
		url:         url,
		tracked:     make(map[string]struct{}),
		prices:      make(map[string]model.PriceUpdate),
		subscribeCh: make(chan string, 64),
		updates:     make(chan model.PriceUpdate, 256),
	}
	s.solUSD.Store(initialSolUSD)
	return s
}

// SetSOLUSD updates the shared SOL/USD reference cell (spec.md §5).
func (s *Stream) SetSOLUSD(price float64) {
	s.solUSD.Store(price)
}

// SOLUSD reads the current SOL/USD reference price.
func (s *Stream) SOLUSD() float64 {
	return s.solUSD.Load().(float64)
}

// Updates returns the outbound channel of price ticks. It is buffered to 256
// ticks, not unbounded; a tick that arrives while the buffer is full is
// dropped.
func (s *Stream) Updates() <-chan model.PriceUpdate {
	return s.updates
}

// Subscribe is idempotent; the token appears in the cache once the next
// trade event for it arrives.
func (s *Stream) Subscribe(tokenMint string) {
	s.mu.Lock()
	_, already := s.tracked[tokenMint]
	s.tracked[tokenMint] = struct{}{}
	s.mu.Unlock()

	if already {
		return
	}

	select {
	case s.subscribeCh <- tokenMint:
	default:
		log.Warn().Str("mint", tokenMint).Msg("price stream subscribe buffer full, dropping request")
	}
}

// Get returns the cached streaming price for a token, if any.
func (s *Stream) Get(tokenMint string) (model.PriceUpdate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	update, ok := s.prices[tokenMint]
	return update, ok
}

// Run connects and reconnects with exponential backoff (capped at 60s) until
// ctx is cancelled, per spec.md §4.4 and §5.
func (s *Stream) Run(ctx context.Context) {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.runOnce(ctx); err != nil {
			log.Warn().Err(err).Dur("retryIn", backoff).Msg("price stream disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 60*time.Second {
			backoff = 60 * time.Second
		}
	}
}

func (s *Stream) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	s.mu.Lock()
	s.conn = conn
	tracked := make([]string, 0, len(s.tracked))
	for mint := range s.tracked {
		tracked = append(tracked, mint)
	}
	s.mu.Unlock()

	if len(tracked) > 0 {
		if err := conn.WriteJSON(subscribeMessage{Method: "subscribeTokenTrade", Keys: tracked}); err != nil {
			return err
		}
		log.Info().Int("count", len(tracked)).Msg("price stream re-subscribed")
	}

	readErrCh := make(chan error, 1)
	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				readErrCh <- err
				return
			}
			s.handleMessage(raw)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErrCh:
			return err
		case mint := <-s.subscribeCh:
			if err := conn.WriteJSON(subscribeMessage{Method: "subscribeTokenTrade", Keys: []string{mint}}); err != nil {
				return err
			}
		}
	}
}

func (s *Stream) handleMessage(raw []byte) {
	var trade tradeEvent
	if err := json.Unmarshal(raw, &trade); err != nil || trade.Mint == "" {
		return
	}

	update, ok := s.computePrice(&trade)
	if !ok {
		return
	}

	s.mu.Lock()
	s.prices[update.TokenMint] = update
	s.mu.Unlock()

	select {
	case s.updates <- update:
	default:
		log.Warn().Str("mint", update.TokenMint).Msg("price update channel full, dropping tick")
	}
}

func (s *Stream) computePrice(trade *tradeEvent) (model.PriceUpdate, bool) {
	solUSD := s.SOLUSD()
	now := time.Now()
	if trade.Timestamp != nil {
		now = time.Unix(*trade.Timestamp, 0)
	}

	if trade.VirtualSolReserves != nil && trade.VirtualTokenReserves != nil && *trade.VirtualTokenReserves > 0 {
		priceSOL := *trade.VirtualSolReserves / *trade.VirtualTokenReserves
		priceUSD := priceSOL * solUSD
		return model.PriceUpdate{
			TokenMint:       trade.Mint,
			PriceUSD:        priceUSD,
			MarketCapUSD:    priceUSD * FixedSupply,
			SourceTimestamp: now,
		}, true
	}

	if trade.SolAmount != nil && trade.TokenAmount != nil && *trade.TokenAmount > 0 {
		priceSOL := *trade.SolAmount / *trade.TokenAmount
		priceUSD := priceSOL * solUSD
		return model.PriceUpdate{
			TokenMint:       trade.Mint,
			PriceUSD:        priceUSD,
			MarketCapUSD:    priceUSD * FixedSupply,
			SourceTimestamp: now,
		}, true
	}

	return model.PriceUpdate{}, false
}
