package domain

import "context"

// Handler receives normalized instrument updates.
// The normalizer calls RotateTable and then UpdateTable for every accepted update.
type Handler interface {
	Name() string
	// RotateTable rolls the handler's output over to a new table when needed.
	RotateTable(ctx context.Context, snap Snapshot) error
	// UpdateTable pushes the updated state.
	UpdateTable(ctx context.Context, snap Snapshot) error
}

// SnapshotRepository persists snapshots into named tables.
type SnapshotRepository interface {
	EnsureSnapshotTable(table string) error
	InsertSnapshot(table string, row *SnapshotRow) error
}
