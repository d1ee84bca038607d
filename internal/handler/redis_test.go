package handler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"crypto_feed/internal/domain"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	channel string
	message []byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "publish", channel, message)
	if p.err != nil {
		cmd.SetErr(p.err)
		return cmd
	}
	p.msgs = append(p.msgs, published{channel, message.([]byte)})
	cmd.SetVal(1)
	return cmd
}

func TestRedisHandler_Publishes(t *testing.T) {
	pub := &fakePublisher{}
	h := NewRedisHandler(pub, "")
	ctx := context.Background()
	snap := bookSnap(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), 3)

	require.NoError(t, h.RotateTable(ctx, snap))
	require.NoError(t, h.UpdateTable(ctx, snap))

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "crypto_feed:Bitget:BTC/USDT", pub.msgs[0].channel)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(pub.msgs[0].message, &decoded))
	assert.Equal(t, "book", decoded["kind"])
	assert.Equal(t, float64(3), decoded["update_id"])
	bids := decoded["bids"].([]interface{})
	assert.Equal(t, "100", bids[0].(map[string]interface{})["price"])
}

func TestRedisHandler_Prefix(t *testing.T) {
	h := NewRedisHandler(&fakePublisher{}, "md")
	assert.Equal(t, "md:Upbit:BTC/KRW", h.Channel("Upbit", "BTC/KRW"))
	assert.Equal(t, "redis", h.Name())
}

func TestRedisHandler_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	h := NewRedisHandler(pub, "md")

	err := h.UpdateTable(context.Background(), bookSnap(time.Now(), 1))
	assert.ErrorIs(t, err, pub.err)
}

func TestHandlersImplementInterface(t *testing.T) {
	var _ domain.Handler = (*SQLHandler)(nil)
	var _ domain.Handler = (*RedisHandler)(nil)
}
