// Package normalizer turns raw feed callbacks into instrument state changes and
// pushes every accepted change to the configured handlers.
package normalizer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"crypto_feed/internal/domain"
	"crypto_feed/internal/feed"
	"crypto_feed/internal/infra"
	"crypto_feed/internal/mapping"

	"github.com/shopspring/decimal"
)

// Option customizes a Normalizer.
type Option func(*Normalizer)

// WithClock replaces time.Now, used for update and receive times.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithMetrics attaches pipeline counters.
func WithMetrics(m *infra.Metrics) Option {
	return func(n *Normalizer) { n.metrics = m }
}

// Normalizer owns the instruments of one exchange.
type Normalizer struct {
	exchange    string
	mapping     mapping.Mapping
	instruments map[string]*domain.InstrumentInfo // internal pair -> state
	handlers    []domain.Handler

	now     func() time.Time
	metrics *infra.Metrics
}

// New creates a normalizer for exchange with one instrument per mapped pair.
// Handlers are called in the given order.
func New(exchange string, m mapping.Mapping, depth int, handlers []domain.Handler, opts ...Option) *Normalizer {
	n := &Normalizer{
		exchange:    exchange,
		mapping:     m,
		instruments: make(map[string]*domain.InstrumentInfo, m.Len()),
		handlers:    handlers,
		now:         time.Now,
	}
	for _, pair := range m.InternalPairs() {
		n.instruments[pair] = domain.NewInstrumentInfo(exchange, pair, depth)
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Exchange returns the exchange name this normalizer serves.
func (n *Normalizer) Exchange() string {
	return n.exchange
}

// Instrument returns the state of an internal pair.
func (n *Normalizer) Instrument(pair string) (*domain.InstrumentInfo, bool) {
	info, ok := n.instruments[pair]
	return info, ok
}

// Snapshots returns a copy of every instrument, ordered by pair.
func (n *Normalizer) Snapshots() []domain.Snapshot {
	out := make([]domain.Snapshot, 0, len(n.instruments))
	for _, info := range n.instruments {
		out = append(out, info.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pair < out[j].Pair })
	return out
}

func (n *Normalizer) resolve(external string) (*domain.InstrumentInfo, error) {
	internal, ok := n.mapping.Internal(external)
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", n.exchange, external, domain.ErrUnknownPair)
	}
	info, ok := n.instruments[internal]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", n.exchange, internal, domain.ErrUnknownPair)
	}
	return info, nil
}

// OnBook applies a full book for an external pair. ts is kept as the book's feed time.
// Nothing is pushed when the truncated book equals the current one.
func (n *Normalizer) OnBook(ctx context.Context, pair string, book feed.Book, ts time.Time) error {
	info, err := n.resolve(pair)
	if err != nil {
		return err
	}

	bids, err := parseLevels(book.Bids)
	if err != nil {
		return fmt.Errorf("%s %s bids: %w", n.exchange, pair, err)
	}
	asks, err := parseLevels(book.Asks)
	if err != nil {
		return fmt.Errorf("%s %s asks: %w", n.exchange, pair, err)
	}

	snap, changed := info.UpdateBidsAsks(bids, asks, ts, n.now())
	n.metrics.RecordBook(changed)
	if !changed {
		return nil
	}
	n.push(ctx, snap)
	return nil
}

// OnTrade applies one trade for an external pair.
// A trade whose ID equals the last accepted one is ignored.
func (n *Normalizer) OnTrade(ctx context.Context, pair, tradeID string, ts time.Time, side feed.Side, amount, price string) error {
	info, err := n.resolve(pair)
	if err != nil {
		return err
	}

	p, err := parseDecimal(price)
	if err != nil {
		return fmt.Errorf("%s %s trade %s price: %w", n.exchange, pair, tradeID, err)
	}
	a, err := parseDecimal(amount)
	if err != nil {
		return fmt.Errorf("%s %s trade %s amount: %w", n.exchange, pair, tradeID, err)
	}

	now := n.now()
	trade := domain.Trade{
		ID:         tradeID,
		Side:       string(side),
		Price:      p,
		Amount:     a,
		Timestamp:  ts,
		ReceivedAt: now,
	}
	snap, isNew := info.UpdateTrade(trade, now)
	n.metrics.RecordTrade(isNew)
	if !isNew {
		return nil
	}
	n.push(ctx, snap)
	return nil
}

// push calls RotateTable then UpdateTable on every handler in order.
// A failing handler is logged and skipped; the rest still run.
func (n *Normalizer) push(ctx context.Context, snap domain.Snapshot) {
	for _, h := range n.handlers {
		if err := h.RotateTable(ctx, snap); err != nil {
			n.handlerError(h, "rotate", snap, err)
			continue
		}
		if err := h.UpdateTable(ctx, snap); err != nil {
			n.handlerError(h, "update", snap, err)
		}
	}
}

func (n *Normalizer) handlerError(h domain.Handler, op string, snap domain.Snapshot, err error) {
	n.metrics.RecordHandlerError()
	slog.Error("Handler failed",
		slog.String("handler", h.Name()),
		slog.String("op", op),
		slog.String("exchange", snap.Exchange),
		slog.String("pair", snap.Pair),
		slog.Any("error", err),
	)
}

func parseLevels(side map[string]string) ([]domain.Level, error) {
	levels := make([]domain.Level, 0, len(side))
	for price, volume := range side {
		p, err := parseDecimal(price)
		if err != nil {
			return nil, err
		}
		v, err := parseDecimal(volume)
		if err != nil {
			return nil, err
		}
		levels = append(levels, domain.Level{Price: p, Volume: v})
	}
	return levels, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", domain.ErrInvalidNumber, s)
	}
	return d, nil
}
