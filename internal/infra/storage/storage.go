package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"crypto_feed/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Storage persists instruments and snapshot rows through gorm.
type Storage struct {
	db *gorm.DB

	mu     sync.Mutex
	tables map[string]struct{} // snapshot tables known to exist
}

// Open connects to the database behind driver and migrates the static tables.
func Open(driver, dsn string) (*Storage, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		// Ensure directory exists
		if dir := filepath.Dir(dsn); dir != "." && dsn != ":memory:" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create DB directory: %w", err)
			}
		}
		// Pure Go SQLite
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, &domain.ConfigError{Field: "storage.driver", Err: fmt.Errorf("unsupported driver %q", driver)}
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return New(db)
}

// New wraps an open connection and runs the instrument migration.
func New(db *gorm.DB) (*Storage, error) {
	if err := db.AutoMigrate(&domain.InstrumentRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Storage{db: db, tables: make(map[string]struct{})}, nil
}

// Close closes the underlying connection pool.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Instrument Operations
// ======================================================================================

// UpsertInstrument creates or updates an instrument record
func (s *Storage) UpsertInstrument(rec *domain.InstrumentRecord) error {
	return s.db.Save(rec).Error
}

// GetInstrument retrieves an instrument by exchange and pair
func (s *Storage) GetInstrument(exchange, pair string) (*domain.InstrumentRecord, error) {
	var rec domain.InstrumentRecord
	err := s.db.First(&rec, "exchange = ? AND pair = ?", exchange, pair).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListInstruments retrieves all instruments of an exchange ordered by pair
func (s *Storage) ListInstruments(exchange string) ([]domain.InstrumentRecord, error) {
	var recs []domain.InstrumentRecord
	err := s.db.Where("exchange = ?", exchange).Order("pair").Find(&recs).Error
	return recs, err
}

// DeactivateInstruments marks every instrument of an exchange inactive
func (s *Storage) DeactivateInstruments(exchange string) error {
	return s.db.Model(&domain.InstrumentRecord{}).
		Where("exchange = ?", exchange).
		Update("is_active", false).Error
}

// ======================================================================================
// Snapshot Operations
// ======================================================================================

// EnsureSnapshotTable creates the snapshot table if it does not exist yet.
func (s *Storage) EnsureSnapshotTable(table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tables[table]; ok {
		return nil
	}
	if err := s.db.Table(table).AutoMigrate(&domain.SnapshotRow{}); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	s.tables[table] = struct{}{}
	return nil
}

// InsertSnapshot appends a row to a snapshot table
func (s *Storage) InsertSnapshot(table string, row *domain.SnapshotRow) error {
	return s.db.Table(table).Create(row).Error
}

// ListSnapshots returns the rows of a snapshot table in insertion order
func (s *Storage) ListSnapshots(table string) ([]domain.SnapshotRow, error) {
	var rows []domain.SnapshotRow
	err := s.db.Table(table).Order("id").Find(&rows).Error
	return rows, err
}

// HasTable reports whether a table exists in the database
func (s *Storage) HasTable(table string) bool {
	return s.db.Migrator().HasTable(table)
}
