package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Handler runs a set of feeds for the lifetime of a context.
type Handler struct {
	mu    sync.Mutex
	feeds []Feed
}

// NewHandler creates an empty feed handler.
func NewHandler() *Handler {
	return &Handler{}
}

// AddFeed registers a feed to be started by Run.
func (h *Handler) AddFeed(f Feed) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.feeds = append(h.feeds, f)
}

// Feeds returns the registered feeds in insertion order.
func (h *Handler) Feeds() []Feed {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Feed(nil), h.feeds...)
}

// Run connects every feed, blocks until ctx is done, then disconnects them.
// A feed that fails to start aborts the run after the already started feeds are stopped.
func (h *Handler) Run(ctx context.Context) error {
	feeds := h.Feeds()
	started := make([]Feed, 0, len(feeds))

	stopAll := func() {
		var wg sync.WaitGroup
		for _, f := range started {
			wg.Add(1)
			go func(f Feed) {
				defer wg.Done()
				f.Disconnect()
			}(f)
		}
		wg.Wait()
	}

	for _, f := range feeds {
		if err := f.Connect(ctx); err != nil {
			stopAll()
			return fmt.Errorf("start %s: %w", f.Name(), err)
		}
		started = append(started, f)
		slog.InfoContext(ctx, "✅ Feed started", slog.String("feed", f.Name()))
	}

	<-ctx.Done()

	stopAll()
	slog.Info("Feeds stopped", slog.Int("count", len(started)))
	return nil
}
