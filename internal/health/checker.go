// Package health implements the admin server's liveness probe: periodic
// reachability checks against the RPC endpoint and the signal queue.
// Grounded on the teacher's internal/health/checker.go, which ran the same
// periodic check/cache pattern against RPC and its Telegram listener; the
// second check is repointed at the Redis queue (C1) for this spec.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status is one component's latest reachability result.
type Status struct {
	Name    string
	Healthy bool
	Latency time.Duration
	Error   string
}

// Checker periodically probes RPC and the queue, caching the last result so
// the admin server's /health handler never blocks on a live network call.
type Checker struct {
	mu       sync.RWMutex
	statuses []Status
	rpcURL   string
	redis    *redis.Client
}

// NewChecker builds a Checker against the configured RPC URL and an already-
// connected Redis client (shared with the queue bus).
func NewChecker(rpcURL string, redisClient *redis.Client) *Checker {
	return &Checker{rpcURL: rpcURL, redis: redisClient}
}

// Start runs the initial check immediately, then every 10s until ctx ends.
func (c *Checker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.check(ctx)
			}
		}
	}()

	c.check(ctx)
}

func (c *Checker) check(ctx context.Context) {
	statuses := []Status{c.checkRPC(), c.checkQueue(ctx)}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

func (c *Checker) checkRPC() Status {
	start := time.Now()

	client := &http.Client{Timeout: 5 * time.Second}
	req, _ := http.NewRequest(http.MethodPost, c.rpcURL, nil)
	req.Header.Set("Content-Type", "application/json")

	_, err := client.Do(req)
	status := Status{Name: "rpc", Latency: time.Since(start), Healthy: err == nil}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

func (c *Checker) checkQueue(ctx context.Context) Status {
	start := time.Now()

	err := c.redis.Ping(ctx).Err()
	status := Status{Name: "queue", Latency: time.Since(start), Healthy: err == nil}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

// Statuses returns the most recently cached health results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statuses
}

// AllHealthy reports whether every checked component was healthy as of the
// last probe. Before the first probe has run, statuses is empty and the
// server is reported unhealthy rather than trivially healthy.
func (c *Checker) AllHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.statuses) == 0 {
		return false
	}
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}
