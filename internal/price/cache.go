package price

import (
	"context"

	"memecoin-agent/internal/model"
)

// Cache fuses the streaming source with the polling fallback behind the
// `get(token) -> Option<price>` / `subscribe(token)` contract spec.md §4.4
// describes.
type Cache struct {
	stream  *Stream
	polling *PollingSource
}

// NewCache wires a streaming source to its polling fallback.
func NewCache(stream *Stream, polling *PollingSource) *Cache {
	return &Cache{stream: stream, polling: polling}
}

// Get returns the cached streaming price, if any. It never polls: polling is
// the monitor's explicit fallback on its own timer tick (spec.md §4.8).
func (c *Cache) Get(tokenMint string) (model.PriceUpdate, bool) {
	return c.stream.Get(tokenMint)
}

// Subscribe registers a token with the streaming source.
func (c *Cache) Subscribe(tokenMint string) {
	c.stream.Subscribe(tokenMint)
}

// Poll queries the HTTP fallback directly, for the monitor's timer-tick path
// when a token is absent from the streaming cache.
func (c *Cache) Poll(ctx context.Context, tokenMint string) (model.PriceUpdate, error) {
	priceUSD, err := c.polling.Get(ctx, tokenMint)
	if err != nil {
		return model.PriceUpdate{}, err
	}
	return model.PriceUpdate{
		TokenMint:    tokenMint,
		PriceUSD:     priceUSD,
		MarketCapUSD: priceUSD * FixedSupply,
	}, nil
}

// Updates exposes the streaming source's outbound channel.
func (c *Cache) Updates() <-chan model.PriceUpdate {
	return c.stream.Updates()
}

// SetSOLUSD forwards to the streaming source's shared reference cell.
func (c *Cache) SetSOLUSD(price float64) {
	c.stream.SetSOLUSD(price)
}

// SOLUSD reads the shared SOL/USD reference cell.
func (c *Cache) SOLUSD() float64 {
	return c.stream.SOLUSD()
}
