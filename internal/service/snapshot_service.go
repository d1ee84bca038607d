package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"

	"crypto_feed/internal/domain"

	"github.com/shopspring/decimal"
)

// SnapshotView is a snapshot plus derived top-of-book figures.
type SnapshotView struct {
	domain.Snapshot
	Mid    *decimal.Decimal `json:"mid,omitempty"`
	Spread *decimal.Decimal `json:"spread,omitempty"`
}

// SnapshotService keeps the latest snapshot of every instrument in memory.
// It is a domain.Handler and an http.Handler.
type SnapshotService struct {
	mu        sync.RWMutex
	snapshots map[string]domain.Snapshot // exchange|pair -> latest
}

// NewSnapshotService creates an empty service.
func NewSnapshotService() *SnapshotService {
	return &SnapshotService{snapshots: make(map[string]domain.Snapshot)}
}

func key(exchange, pair string) string {
	return exchange + "|" + pair
}

func (s *SnapshotService) Name() string {
	return "memory"
}

// RotateTable is a no-op; only the latest state is kept.
func (s *SnapshotService) RotateTable(context.Context, domain.Snapshot) error {
	return nil
}

// UpdateTable stores snap unless a newer update of the same instrument is already held.
func (s *SnapshotService) UpdateTable(_ context.Context, snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(snap.Exchange, snap.Pair)
	if cur, ok := s.snapshots[k]; ok && cur.UpdateID > snap.UpdateID {
		return nil
	}
	s.snapshots[k] = snap
	return nil
}

// GetAll returns every snapshot sorted by exchange then pair.
func (s *SnapshotService) GetAll() []domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Snapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		result = append(result, snap)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Exchange != result[j].Exchange {
			return result[i].Exchange < result[j].Exchange
		}
		return result[i].Pair < result[j].Pair
	})

	return result
}

// Get returns the latest snapshot of one instrument.
func (s *SnapshotService) Get(exchange, pair string) (domain.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[key(exchange, pair)]
	return snap, ok
}

// View adds mid price and spread when both sides are present.
func View(snap domain.Snapshot) SnapshotView {
	v := SnapshotView{Snapshot: snap}
	if len(snap.Bids) == 0 || len(snap.Asks) == 0 {
		return v
	}
	bid, ask := snap.Bids[0].Price, snap.Asks[0].Price
	mid := bid.Add(ask).Div(decimal.NewFromInt(2))
	spread := ask.Sub(bid)
	v.Mid = &mid
	v.Spread = &spread
	return v
}

// ServeHTTP serves GET /snapshots[?exchange=X[&pair=Y]].
func (s *SnapshotService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	exchange := r.URL.Query().Get("exchange")
	pair := r.URL.Query().Get("pair")

	if exchange != "" && pair != "" {
		snap, ok := s.Get(exchange, pair)
		if !ok {
			http.Error(w, "instrument not found", http.StatusNotFound)
			return
		}
		writeJSON(w, View(snap))
		return
	}

	all := s.GetAll()
	views := make([]SnapshotView, 0, len(all))
	for _, snap := range all {
		if exchange != "" && snap.Exchange != exchange {
			continue
		}
		views = append(views, View(snap))
	}
	writeJSON(w, views)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
