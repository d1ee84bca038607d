package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto_feed/internal/app"
	"crypto_feed/internal/engine"
	"crypto_feed/internal/feed"
	"crypto_feed/internal/infra"

	_ "net/http/pprof" // For pprof profiling
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	flag.Parse()

	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(ctx, *configPath); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()
	cfg := bootstrap.Config

	// 4. Sequencer and exchanges
	seq := engine.NewSequencer(cfg.Engine.InboxSize, bootstrap.Metrics, cfg.Engine.DumpFile)
	adapters, err := bootstrap.LoadExchanges(ctx, seq)
	if err != nil {
		slog.Error("Failed to load exchanges", slog.Any("error", err))
		os.Exit(1)
	}
	if err := bootstrap.RegisterInstruments(adapters); err != nil {
		slog.Error("Failed to register instruments", slog.Any("error", err))
	}

	go seq.Run(ctx)
	slog.InfoContext(ctx, "Sequencer started")

	// 5. HTTP: metrics and snapshots
	if cfg.HTTP.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", infra.MetricsHandler(infra.NewMetricsRegistry(bootstrap.Metrics)))
		mux.Handle("/snapshots", bootstrap.Snapshots)
		mux.Handle("/instruments", seq)
		srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		go func() {
			slog.Info("HTTP server started", slog.String("addr", cfg.HTTP.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("HTTP server failed", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	// 6. Feeds (blocks until shutdown)
	feeds := feed.NewHandler()
	for _, a := range adapters {
		feeds.AddFeed(a.Feed)
	}

	slog.InfoContext(ctx, "Crypto feed fully operational. Press Ctrl+C to exit.", slog.Int("exchanges", len(adapters)))
	if err := feeds.Run(ctx); err != nil {
		slog.Error("Feed handler failed", slog.Any("error", err))
	}

	// Sinks close only after the sequencer has left its last handler call.
	stop()
	<-seq.Done()

	slog.Info("Shutting down gracefully...")
}
