package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"crypto_feed/internal/domain"
	"crypto_feed/internal/engine"
	"crypto_feed/internal/event"
	"crypto_feed/internal/exchange"
	"crypto_feed/internal/feed"
	"crypto_feed/internal/feed/binance"
	"crypto_feed/internal/feed/bitget"
	"crypto_feed/internal/feed/upbit"
	"crypto_feed/internal/handler"
	"crypto_feed/internal/infra"
	"crypto_feed/internal/infra/storage"
	"crypto_feed/internal/service"

	"github.com/go-redis/redis/v8"
)

const redisPingTimeout = 5 * time.Second

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config    *infra.Config
	Metrics   *infra.Metrics
	Storage   *storage.Storage // nil when storage is disabled
	Redis     *redis.Client    // nil when redis is disabled
	Registry  *feed.Registry
	Snapshots *service.SnapshotService
	Handlers  []domain.Handler
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// NewRegistry returns the registry of every supported feed.
func NewRegistry() *feed.Registry {
	reg := feed.NewRegistry()
	reg.Register(bitget.Name, bitget.New)
	reg.Register(upbit.Name, upbit.New)
	reg.Register(binance.Name, binance.New)
	return reg
}

// Initialize loads config, sets up logging and opens every configured sink.
func (b *Bootstrap) Initialize(ctx context.Context, configPath string) error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))
	slog.Info("Bootstrapping crypto feed...", slog.String("config", configPath))

	b.Metrics = &infra.Metrics{}
	b.Registry = NewRegistry()
	event.Warmup()

	// 3. Handlers, in push order
	b.Snapshots = service.NewSnapshotService()
	b.Handlers = []domain.Handler{b.Snapshots}

	if cfg.Storage.Enabled {
		store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN)
		if err != nil {
			return err
		}
		b.Storage = store
		b.Handlers = append(b.Handlers, handler.NewSQLHandler(store, cfg.Storage.RotateDaily))
		slog.Info("Database initialized", slog.String("driver", cfg.Storage.Driver))
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return domain.NewNetworkError("redis", "ping", fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err))
		}
		b.Redis = client
		b.Handlers = append(b.Handlers, handler.NewRedisHandler(client, cfg.Redis.ChannelPrefix))
		slog.Info("Redis publisher ready", slog.String("addr", cfg.Redis.Addr))
	}

	return nil
}

// LoadExchanges builds every configured exchange and registers its normalizer with seq.
func (b *Bootstrap) LoadExchanges(ctx context.Context, seq *engine.Sequencer) ([]*exchange.Adapter, error) {
	adapters := make([]*exchange.Adapter, 0, len(b.Config.Exchanges))
	for _, exCfg := range b.Config.Exchanges {
		a, err := exchange.Load(ctx, exCfg, b.Registry, b.Handlers, seq, b.Metrics)
		if err != nil {
			return nil, err
		}
		seq.Register(a.Normalizer)
		adapters = append(adapters, a)
	}
	return adapters, nil
}

// RegisterInstruments records the loaded instruments in the instruments table.
// Instruments no longer configured stay in the table as inactive.
func (b *Bootstrap) RegisterInstruments(adapters []*exchange.Adapter) error {
	if b.Storage == nil {
		return nil
	}

	for _, a := range adapters {
		if err := b.Storage.DeactivateInstruments(a.Name); err != nil {
			return fmt.Errorf("deactivate %s instruments: %w", a.Name, err)
		}
		for _, pair := range a.Mapping.InternalPairs() {
			ext, _ := a.Mapping.External(pair)
			rec := &domain.InstrumentRecord{
				Exchange:     a.Name,
				Pair:         pair,
				ExternalPair: ext,
				IsActive:     true,
			}

			// Check if exists to preserve CreatedAt
			existing, err := b.Storage.GetInstrument(a.Name, pair)
			if err != nil {
				return err
			}
			if existing != nil {
				rec.CreatedAt = existing.CreatedAt
			}

			if err := b.Storage.UpsertInstrument(rec); err != nil {
				return fmt.Errorf("upsert %s %s: %w", a.Name, pair, err)
			}
		}

		recs, err := b.Storage.ListInstruments(a.Name)
		if err != nil {
			return fmt.Errorf("list %s instruments: %w", a.Name, err)
		}
		slog.Info("Instruments registered",
			slog.String("exchange", a.Name),
			slog.Int("active", a.Mapping.Len()),
			slog.Int("inactive", len(recs)-a.Mapping.Len()),
		)
	}
	return nil
}

// Close releases storage and redis connections.
func (b *Bootstrap) Close() {
	if b.Redis != nil {
		if err := b.Redis.Close(); err != nil {
			slog.Warn("Failed to close redis", slog.Any("error", err))
		}
	}
	if b.Storage != nil {
		if err := b.Storage.Close(); err != nil {
			slog.Warn("Failed to close storage", slog.Any("error", err))
		}
	}
}
