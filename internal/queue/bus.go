// Package queue implements the signal bus (C1, spec.md §4.1): durable,
// blocking-pop consumption of the signals and pre-signals lists, and
// left-push publication of trade results, on a Redis-compatible key-value
// bus via github.com/redis/go-redis/v9.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"memecoin-agent/internal/model"
)

// popTimeout bounds each blocking-pop round-trip (spec.md §6: "≈1 s").
const popTimeout = 1 * time.Second

// retryBackoff is how long a transient transport error waits before the
// next pop attempt (spec.md §6: "≈100 ms"); never fatal, retried forever.
const retryBackoff = 100 * time.Millisecond

// previewLen bounds how much of a malformed payload gets logged.
const previewLen = 200

// Bus wraps a Redis client bound to the three named lists.
type Bus struct {
	rdb            *redis.Client
	signalsList    string
	preSignalsList string
	resultsList    string
}

// New dials a Redis-compatible endpoint (redis:// or rediss:// URL) and
// binds it to the three list names from config.
func New(url, signalsList, preSignalsList, resultsList string) (*Bus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &Bus{
		rdb:            redis.NewClient(opts),
		signalsList:    signalsList,
		preSignalsList: preSignalsList,
		resultsList:    resultsList,
	}, nil
}

// Close releases the underlying connection pool.
func (b *Bus) Close() error {
	return b.rdb.Close()
}

// RedisClient exposes the underlying client for collaborators that need
// direct access (the health checker's queue-reachability probe).
func (b *Bus) RedisClient() *redis.Client {
	return b.rdb
}

// ConsumeSignals blocks-pops the signals list until ctx is done, decoding
// each payload and invoking handle. Malformed payloads are logged and
// skipped; transient errors back off and retry indefinitely. Never returns
// except when ctx is cancelled.
func (b *Bus) ConsumeSignals(ctx context.Context, handle func(model.Signal)) {
	b.consume(ctx, b.signalsList, handle)
}

// ConsumePreSignals mirrors ConsumeSignals for the pre-signals list.
func (b *Bus) ConsumePreSignals(ctx context.Context, handle func(model.PreSignal)) {
	b.consume(ctx, b.preSignalsList, handle)
}

func (b *Bus) consume(ctx context.Context, list string, handle func(model.Signal)) {
	for {
		if ctx.Err() != nil {
			return
		}

		result, err := b.rdb.BRPop(ctx, popTimeout, list).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // timed out with nothing queued; poll again
			}
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("list", list).Msg("queue: transient error polling list, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryBackoff):
			}
			continue
		}

		// result is [listName, payload]
		if len(result) != 2 {
			continue
		}
		payload := result[1]

		sig, ok, err := decodePayload(payload)
		if err != nil {
			log.Warn().Err(err).Str("list", list).Str("preview", preview(payload)).
				Msg("queue: malformed payload, skipping")
			continue
		}
		if !ok {
			log.Debug().Str("list", list).Msg("queue: payload missing signalType, discarding")
			continue
		}

		handle(sig)
	}
}

// decodePayload parses a queue payload into a Signal. ok is false (with a
// nil error) when the payload is well-formed JSON but carries no
// signalType; consume discards such a payload with only a debug-level log
// line, not the malformed-payload warning.
func decodePayload(payload string) (sig model.Signal, ok bool, err error) {
	if err := json.Unmarshal([]byte(payload), &sig); err != nil {
		return model.Signal{}, false, err
	}
	if sig.Class == "" {
		return model.Signal{}, false, nil
	}
	return sig, true, nil
}

// PublishResult left-pushes a Trade Result onto the results list
// (at-least-once semantics, spec.md §6).
func (b *Bus) PublishResult(ctx context.Context, result model.TradeResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return b.rdb.LPush(ctx, b.resultsList, body).Err()
}

func preview(payload string) string {
	if len(payload) <= previewLen {
		return payload
	}
	return payload[:previewLen] + "..."
}
