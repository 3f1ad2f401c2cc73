// Package preparedtx implements the prepared-tx cache (C6, spec.md §4.6):
// a TTL-bounded, single-use warm cache of unsigned curve-venue buy
// transactions built ahead of time from pre-signals.
package preparedtx

import (
	"sync"
	"time"

	"memecoin-agent/internal/model"
)

// TTL is how long a prepared entry stays eligible for use (spec.md invariant #6).
const TTL = 60 * time.Second

// Cache is keyed by token mint; insert replaces any prior entry.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]model.PreparedTX
}

// NewCache builds an empty prepared-tx cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]model.PreparedTX)}
}

// Insert replaces any prior entry for the token.
func (c *Cache) Insert(entry model.PreparedTX) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.TokenMint] = entry
}

// Get returns the entry only if non-expired; an expired entry found on
// access is purged immediately (lazy cleanup), per spec.md §4.6.
func (c *Cache) Get(tokenMint string) (model.PreparedTX, bool) {
	c.mu.RLock()
	entry, ok := c.entries[tokenMint]
	c.mu.RUnlock()
	if !ok {
		return model.PreparedTX{}, false
	}

	if entry.Expired(TTL, time.Now()) {
		c.Remove(tokenMint)
		return model.PreparedTX{}, false
	}
	return entry, true
}

// Remove is unconditional; C7 calls this after every consumption attempt,
// success or failure, so an entry is never used twice.
func (c *Cache) Remove(tokenMint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tokenMint)
}

// PurgeExpired sweeps every entry and removes expired ones. RunPeriodicPurge
// calls it on a periodic tick, alongside the lazy purge in Get.
func (c *Cache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	purged := 0
	for mint, entry := range c.entries {
		if entry.Expired(TTL, now) {
			delete(c.entries, mint)
			purged++
		}
	}
	return purged
}

// RunPeriodicPurge blocks, sweeping expired entries every interval until done
// is closed. cmd/agent runs it as a background goroutine.
func (c *Cache) RunPeriodicPurge(done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.PurgeExpired()
		}
	}
}
