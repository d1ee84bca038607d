// Package exchange wires one configured exchange: pair mapping, normalizer
// and feed, with feed callbacks feeding the sequencer inbox.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"crypto_feed/internal/domain"
	"crypto_feed/internal/event"
	"crypto_feed/internal/feed"
	"crypto_feed/internal/infra"
	"crypto_feed/internal/mapping"
	"crypto_feed/internal/normalizer"
)

// Enqueuer accepts events for sequential processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, ev event.Event) bool
}

// Adapter is a loaded exchange.
type Adapter struct {
	Name       string
	Mapping    mapping.Mapping
	Normalizer *normalizer.Normalizer
	Feed       feed.Feed
}

// Load builds the adapter for cfg. The feed is created but not connected.
func Load(ctx context.Context, cfg infra.ExchangeConfig, registry *feed.Registry, handlers []domain.Handler, inbox Enqueuer, metrics *infra.Metrics) (*Adapter, error) {
	name := mapping.ExchangeName(cfg.Name)

	m, err := mapping.New(cfg.Pairs)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}

	depth := cfg.Depth
	if depth == 0 {
		depth = domain.DefaultDepth
	}
	norm := normalizer.New(name, m, depth, handlers, normalizer.WithMetrics(metrics))

	channels := make([]feed.Channel, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		channels = append(channels, feed.Channel(ch))
	}

	f, err := registry.New(name, feed.Options{
		Pairs:     m.ExternalPairs(),
		Channels:  channels,
		Callbacks: callbacks(ctx, name, inbox),
		Depth:     depth,
		URL:       cfg.URL,
		Metrics:   metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}

	slog.Info("Exchange loaded",
		slog.String("exchange", name),
		slog.Int("pairs", m.Len()),
		slog.Any("channels", cfg.Channels),
	)
	return &Adapter{Name: name, Mapping: m, Normalizer: norm, Feed: f}, nil
}

// callbacks turns feed callbacks into pooled events on the inbox.
// Events carry the adapter's name; the name a feed reports is ignored.
func callbacks(ctx context.Context, name string, inbox Enqueuer) feed.Callbacks {
	return feed.Callbacks{
		Book: func(_, pair string, book feed.Book, ts time.Time) {
			ev := event.NewBookEvent(name, pair, book)
			ev.FeedTime = ts
			ev.Ts = time.Now()
			inbox.Enqueue(ctx, ev)
		},
		Trade: func(_, pair, tradeID string, ts time.Time, side feed.Side, amount, price string) {
			ev := event.AcquireTradeEvent()
			ev.Exchange = name
			ev.Pair = pair
			ev.TradeID = tradeID
			ev.FeedTime = ts
			ev.Side = side
			ev.Amount = amount
			ev.Price = price
			ev.Ts = time.Now()
			inbox.Enqueue(ctx, ev)
		},
	}
}
