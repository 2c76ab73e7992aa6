package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tradewithmeai/cryptolake/internal/model"
)

// Deduper decides whether a CanonicalEvent has already been seen within
// the dedup window. At-least-once delivery from a reconnecting websocket
// means the same trade id can arrive twice; Deduper makes that safe.
type Deduper interface {
	SeenBefore(ctx context.Context, ev model.CanonicalEvent) bool
}

// NoopDeduper treats every event as new — used when no Redis address is
// configured. Duplicate suppression then falls entirely on the Bar
// Aggregator's idempotent rerun semantics.
type NoopDeduper struct{}

func (NoopDeduper) SeenBefore(context.Context, model.CanonicalEvent) bool { return false }

// RedisDeduper uses SETNX to claim a key for an event; the first writer
// wins and every later arrival of the same key is reported as a dup. It
// fails open: a Redis error is logged and the event is treated as new,
// since a missed duplicate is cheaper than stalling ingestion.
type RedisDeduper struct {
	client *redis.Client
	window time.Duration
}

func NewRedisDeduper(addr, password string, db int, window time.Duration) *RedisDeduper {
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &RedisDeduper{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		window: window,
	}
}

func dedupKey(ev model.CanonicalEvent) string {
	if ev.TradeID != nil {
		return fmt.Sprintf("dedup:%s:%s:%s:%d", ev.Exchange, ev.Symbol, ev.StreamKind, *ev.TradeID)
	}
	return fmt.Sprintf("dedup:%s:%s:%s:%d", ev.Exchange, ev.Symbol, ev.StreamKind, ev.TsEvent)
}

func (d *RedisDeduper) SeenBefore(ctx context.Context, ev model.CanonicalEvent) bool {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	ok, err := d.client.SetNX(ctx, dedupKey(ev), 1, d.window).Result()
	if err != nil {
		log.Warn().Err(err).Msg("dedup: redis unreachable, treating event as new")
		return false
	}
	return !ok
}

func (d *RedisDeduper) Close() error {
	return d.client.Close()
}
