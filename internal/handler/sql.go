// Package handler holds the outbound sinks for normalized instrument updates.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"crypto_feed/internal/domain"
)

// SQLHandler writes one row per update into a per-instrument snapshot table.
// With daily rotation the table name carries the UTC date of the update.
type SQLHandler struct {
	repo        domain.SnapshotRepository
	rotateDaily bool

	mu     sync.Mutex
	tables map[string]string // exchange|pair -> active table
}

// NewSQLHandler creates a handler over repo.
func NewSQLHandler(repo domain.SnapshotRepository, rotateDaily bool) *SQLHandler {
	return &SQLHandler{
		repo:        repo,
		rotateDaily: rotateDaily,
		tables:      make(map[string]string),
	}
}

func (h *SQLHandler) Name() string {
	return "sql"
}

// TableName builds "<exchange>_<base>_<quote>_snapshot[_YYYYMMDD]".
func TableName(exchange, pair string, day time.Time, daily bool) string {
	name := sanitize(exchange) + "_" + sanitize(pair) + "_snapshot"
	if daily {
		name += "_" + day.UTC().Format("20060102")
	}
	return name
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, s)
}

func instrumentKey(snap domain.Snapshot) string {
	return snap.Exchange + "|" + snap.Pair
}

// RotateTable switches to the table for the update's date, creating it on first use.
func (h *SQLHandler) RotateTable(_ context.Context, snap domain.Snapshot) error {
	table := TableName(snap.Exchange, snap.Pair, snap.UpdateTime, h.rotateDaily)
	key := instrumentKey(snap)

	h.mu.Lock()
	defer h.mu.Unlock()

	prev := h.tables[key]
	if prev == table {
		return nil
	}
	if err := h.repo.EnsureSnapshotTable(table); err != nil {
		return fmt.Errorf("rotate %s: %w", table, err)
	}
	h.tables[key] = table
	if prev != "" {
		slog.Info("Snapshot table rotated", slog.String("from", prev), slog.String("to", table))
	}
	return nil
}

// UpdateTable appends snap to the active table.
func (h *SQLHandler) UpdateTable(ctx context.Context, snap domain.Snapshot) error {
	h.mu.Lock()
	table, ok := h.tables[instrumentKey(snap)]
	h.mu.Unlock()
	if !ok {
		if err := h.RotateTable(ctx, snap); err != nil {
			return err
		}
		return h.UpdateTable(ctx, snap)
	}

	if err := h.repo.InsertSnapshot(table, domain.NewSnapshotRow(snap)); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// activeTable returns the table currently written for an instrument.
func (h *SQLHandler) activeTable(exchange, pair string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.tables[exchange+"|"+pair]
	return t, ok
}
