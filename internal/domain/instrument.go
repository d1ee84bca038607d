package domain

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultDepth is the number of levels kept per book side.
const DefaultDepth = 5

// UpdateKind tells which part of an instrument changed.
type UpdateKind int

const (
	UpdateBook UpdateKind = iota + 1
	UpdateTrade
)

// String returns the string representation of UpdateKind
func (k UpdateKind) String() string {
	switch k {
	case UpdateBook:
		return "book"
	case UpdateTrade:
		return "trade"
	default:
		return "unknown"
	}
}

// MarshalText lets snapshots carry "book"/"trade" in JSON.
func (k UpdateKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText accepts the names written by MarshalText.
func (k *UpdateKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "book":
		*k = UpdateBook
	case "trade":
		*k = UpdateTrade
	case "unknown":
		*k = 0
	default:
		return fmt.Errorf("unknown update kind %q", text)
	}
	return nil
}

// Level is one price level of a book side.
type Level struct {
	Price  decimal.Decimal `json:"price"`
	Volume decimal.Decimal `json:"volume"`
}

// Trade is a single normalized trade tick.
type Trade struct {
	ID         string          `json:"id"`
	Side       string          `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Amount     decimal.Decimal `json:"amount"`
	Timestamp  time.Time       `json:"timestamp"`   // Feed time
	ReceivedAt time.Time       `json:"received_at"` // Ingestion time
}

// Snapshot is a point-in-time copy of an InstrumentInfo handed to handlers.
type Snapshot struct {
	Exchange   string     `json:"exchange"`
	Pair       string     `json:"pair"`
	Kind       UpdateKind `json:"kind"`
	UpdateID   uint64     `json:"update_id"`
	Bids       []Level    `json:"bids"`
	Asks       []Level    `json:"asks"`
	BookTime   time.Time  `json:"book_time"` // Feed time of the current book
	LastTrade  *Trade     `json:"last_trade,omitempty"`
	UpdateTime time.Time  `json:"update_time"`
}

// InstrumentInfo holds the live state of one pair on one exchange.
// Only the normalizer of the owning exchange mutates it.
type InstrumentInfo struct {
	mu sync.RWMutex

	exchange string
	pair     string
	depth    int

	bids       []Level
	asks       []Level
	bookTime   time.Time
	lastTrade  *Trade
	kind       UpdateKind
	updateID   uint64
	updateTime time.Time
}

// NewInstrumentInfo creates an empty instrument. depth <= 0 keeps every level.
func NewInstrumentInfo(exchange, pair string, depth int) *InstrumentInfo {
	return &InstrumentInfo{
		exchange: exchange,
		pair:     pair,
		depth:    depth,
	}
}

// Exchange returns the owning exchange name.
func (i *InstrumentInfo) Exchange() string { return i.exchange }

// Pair returns the internal pair name (e.g. "BTC/USDT").
func (i *InstrumentInfo) Pair() string { return i.pair }

// UpdateBidsAsks replaces the book with the given levels. bookTime is the feed's timestamp.
// It reports false and leaves the state untouched when the resulting book equals the current one.
func (i *InstrumentInfo) UpdateBidsAsks(bids, asks []Level, bookTime, now time.Time) (Snapshot, bool) {
	bids = normalizeSide(bids, i.depth, true)
	asks = normalizeSide(asks, i.depth, false)

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.updateID > 0 && levelsEqual(i.bids, bids) && levelsEqual(i.asks, asks) {
		return Snapshot{}, false
	}

	i.bids = bids
	i.asks = asks
	i.bookTime = bookTime
	i.touch(UpdateBook, now)
	return i.snapshotLocked(), true
}

// UpdateTrade records a trade. A trade whose ID equals the last accepted ID is a duplicate.
// Trades without an ID are always accepted.
func (i *InstrumentInfo) UpdateTrade(trade Trade, now time.Time) (Snapshot, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.lastTrade != nil && trade.ID != "" && trade.ID == i.lastTrade.ID {
		return Snapshot{}, false
	}

	t := trade
	i.lastTrade = &t
	i.touch(UpdateTrade, now)
	return i.snapshotLocked(), true
}

// Snapshot returns a copy of the current state.
func (i *InstrumentInfo) Snapshot() Snapshot {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.snapshotLocked()
}

func (i *InstrumentInfo) touch(kind UpdateKind, now time.Time) {
	i.kind = kind
	i.updateID++
	i.updateTime = now
}

func (i *InstrumentInfo) snapshotLocked() Snapshot {
	snap := Snapshot{
		Exchange:   i.exchange,
		Pair:       i.pair,
		Kind:       i.kind,
		UpdateID:   i.updateID,
		Bids:       append([]Level(nil), i.bids...),
		Asks:       append([]Level(nil), i.asks...),
		BookTime:   i.bookTime,
		UpdateTime: i.updateTime,
	}
	if i.lastTrade != nil {
		t := *i.lastTrade
		snap.LastTrade = &t
	}
	return snap
}

// normalizeSide merges levels quoted at the same price, drops empty levels,
// sorts best price first and cuts to depth. Feeds can send one price under two
// spellings ("100" and "100.0"); their volumes are summed, so the result does not
// depend on input order. The input slice is not modified.
func normalizeSide(levels []Level, depth int, descending bool) []Level {
	sorted := append([]Level(nil), levels...)
	sort.Slice(sorted, func(a, b int) bool {
		if descending {
			return sorted[a].Price.GreaterThan(sorted[b].Price)
		}
		return sorted[a].Price.LessThan(sorted[b].Price)
	})

	out := make([]Level, 0, len(sorted))
	for _, l := range sorted {
		if n := len(out); n > 0 && out[n-1].Price.Equal(l.Price) {
			out[n-1].Volume = out[n-1].Volume.Add(l.Volume)
			continue
		}
		out = append(out, l)
	}

	kept := out[:0]
	for _, l := range out {
		if !l.Volume.IsZero() {
			kept = append(kept, l)
		}
	}

	if depth > 0 && len(kept) > depth {
		kept = kept[:depth]
	}
	return kept
}

func levelsEqual(a, b []Level) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Price.Equal(b[i].Price) || !a[i].Volume.Equal(b[i].Volume) {
			return false
		}
	}
	return true
}
