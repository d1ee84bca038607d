package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"crypto_feed/internal/domain"

	"github.com/go-redis/redis/v8"
)

const defaultChannelPrefix = "crypto_feed"

// Publisher is the subset of *redis.Client used for publishing.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisHandler publishes each snapshot as JSON on "<prefix>:<exchange>:<pair>".
type RedisHandler struct {
	pub    Publisher
	prefix string
}

// NewRedisHandler creates a handler publishing through pub.
func NewRedisHandler(pub Publisher, prefix string) *RedisHandler {
	if prefix == "" {
		prefix = defaultChannelPrefix
	}
	return &RedisHandler{pub: pub, prefix: prefix}
}

func (h *RedisHandler) Name() string {
	return "redis"
}

// Channel returns the pub/sub channel of an instrument.
func (h *RedisHandler) Channel(exchange, pair string) string {
	return h.prefix + ":" + exchange + ":" + pair
}

// RotateTable is a no-op; pub/sub has no tables.
func (h *RedisHandler) RotateTable(context.Context, domain.Snapshot) error {
	return nil
}

func (h *RedisHandler) UpdateTable(ctx context.Context, snap domain.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	channel := h.Channel(snap.Exchange, snap.Pair)
	if err := h.pub.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}
