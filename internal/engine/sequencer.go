package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"crypto_feed/internal/domain"
	"crypto_feed/internal/event"
	"crypto_feed/internal/infra"
	"crypto_feed/internal/normalizer"
)

// Sequencer is the single-threaded event processor.
// Feed goroutines only enqueue; every normalizer call happens on the Run goroutine.
type Sequencer struct {
	inbox       chan event.Event
	normalizers map[string]*normalizer.Normalizer
	nextSeq     uint64
	metrics     *infra.Metrics
	dumpFile    string
	done        chan struct{}

	mu sync.RWMutex // Guards normalizers for external reads
}

// NewSequencer creates a new sequencer instance.
func NewSequencer(inboxSize int, metrics *infra.Metrics, dumpFile string) *Sequencer {
	if dumpFile == "" {
		dumpFile = "panic_dump.json"
	}
	return &Sequencer{
		inbox:       make(chan event.Event, inboxSize),
		normalizers: make(map[string]*normalizer.Normalizer),
		nextSeq:     1,
		metrics:     metrics,
		dumpFile:    dumpFile,
		done:        make(chan struct{}),
	}
}

// Done is closed when Run has returned. Sinks may be closed after that.
func (s *Sequencer) Done() <-chan struct{} {
	return s.done
}

// Register routes events of n's exchange to n. A later registration for the
// same exchange replaces the earlier one.
func (s *Sequencer) Register(n *normalizer.Normalizer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.normalizers[n.Exchange()] = n
}

// Inbox returns the event channel. External workers send events here.
func (s *Sequencer) Inbox() chan<- event.Event {
	return s.inbox
}

// Enqueue blocks until ev is accepted or ctx ends. It reports whether ev was queued.
// A rejected event is returned to its pool.
func (s *Sequencer) Enqueue(ctx context.Context, ev event.Event) bool {
	select {
	case s.inbox <- ev:
		return true
	case <-ctx.Done():
		event.Release(ev)
		return false
	}
}

// Run starts the main event loop. This MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context) {
	slog.Info("Sequencer started")

	defer close(s.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState(s.dumpFile)
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sequencer stopping...", slog.Int("discarded", s.drain()))
			return
		case ev := <-s.inbox:
			s.processEvent(ctx, ev)
		}
	}
}

// drain releases events still buffered at shutdown and reports how many there were.
func (s *Sequencer) drain() int {
	n := 0
	for {
		select {
		case ev := <-s.inbox:
			event.Release(ev)
			n++
		default:
			return n
		}
	}
}

func (s *Sequencer) processEvent(ctx context.Context, ev event.Event) {
	defer event.Release(ev)

	ev.SetSeq(s.nextSeq)
	s.nextSeq++

	s.mu.RLock()
	n, ok := s.normalizers[ev.GetExchange()]
	s.mu.RUnlock()
	if !ok {
		s.drop(ev, fmt.Errorf("%s: %w", ev.GetExchange(), domain.ErrUnknownExchange))
		return
	}

	var err error
	var enqueued time.Time
	switch e := ev.(type) {
	case *event.BookEvent:
		enqueued = e.Ts
		err = n.OnBook(ctx, e.Pair, e.Book, e.FeedTime)
	case *event.TradeEvent:
		enqueued = e.Ts
		err = n.OnTrade(ctx, e.Pair, e.TradeID, e.FeedTime, e.Side, e.Amount, e.Price)
	default:
		slog.Warn("Unknown event type", slog.String("type", ev.GetType().String()))
		return
	}

	if err != nil {
		s.drop(ev, err)
	}
	if !enqueued.IsZero() {
		s.metrics.RecordLatency(time.Since(enqueued).Nanoseconds())
	}
}

func (s *Sequencer) drop(ev event.Event, err error) {
	s.metrics.RecordDrop()
	slog.Warn("Update dropped",
		slog.Uint64("seq", ev.GetSeq()),
		slog.String("type", ev.GetType().String()),
		slog.String("reason", domain.DropReason(err)),
		slog.Any("error", err),
	)
}

// Snapshots returns a copy of every instrument, ordered by exchange then pair (external read).
func (s *Sequencer) Snapshots() []domain.Snapshot {
	s.mu.RLock()
	names := make([]string, 0, len(s.normalizers))
	for name := range s.normalizers {
		names = append(names, name)
	}
	sort.Strings(names)
	var out []domain.Snapshot
	for _, name := range names {
		out = append(out, s.normalizers[name].Snapshots()...)
	}
	s.mu.RUnlock()
	return out
}

// GetSnapshot returns one instrument's state (external read).
func (s *Sequencer) GetSnapshot(exchange, pair string) (domain.Snapshot, bool) {
	s.mu.RLock()
	n, ok := s.normalizers[exchange]
	s.mu.RUnlock()
	if !ok {
		return domain.Snapshot{}, false
	}
	info, ok := n.Instrument(pair)
	if !ok {
		return domain.Snapshot{}, false
	}
	return info.Snapshot(), true
}

// ServeHTTP serves GET /instruments[?exchange=X&pair=Y] straight from instrument state.
func (s *Sequencer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body interface{}
	exchange, pair := r.URL.Query().Get("exchange"), r.URL.Query().Get("pair")
	if exchange != "" && pair != "" {
		snap, ok := s.GetSnapshot(exchange, pair)
		if !ok {
			http.Error(w, "instrument not found", http.StatusNotFound)
			return
		}
		body = snap
	} else {
		body = s.Snapshots()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// DumpState writes the entire internal state to a file (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	data := struct {
		NextSeq     uint64            `json:"next_seq"`
		Instruments []domain.Snapshot `json:"instruments"`
	}{
		NextSeq:     s.nextSeq,
		Instruments: s.Snapshots(),
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	err = os.WriteFile(filename, b, 0644)
	if err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
