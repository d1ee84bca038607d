package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InstrumentRecord represents a configured instrument registered at load time
type InstrumentRecord struct {
	Exchange     string    `gorm:"primaryKey" json:"exchange"`
	Pair         string    `gorm:"primaryKey" json:"pair"`
	ExternalPair string    `json:"external_pair"`
	IsActive     bool      `json:"is_active" gorm:"index"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName pins the table name regardless of naming strategy.
func (InstrumentRecord) TableName() string {
	return "instruments"
}

// SnapshotRow is one persisted update of an instrument
type SnapshotRow struct {
	ID          uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	UpdateID    uint64          `json:"update_id"`
	UpdateType  string          `json:"update_type"`
	Exchange    string          `json:"exchange"`
	Pair        string          `json:"pair"`
	Bids        []Level         `gorm:"serializer:json" json:"bids"`
	Asks        []Level         `gorm:"serializer:json" json:"asks"`
	TradeID     string          `json:"trade_id"`
	TradeSide   string          `json:"trade_side"`
	TradePrice  decimal.Decimal `gorm:"type:varchar(64)" json:"trade_price"`
	TradeAmount decimal.Decimal `gorm:"type:varchar(64)" json:"trade_amount"`
	TradeTime   *time.Time      `json:"trade_time"`
	BookTime    *time.Time      `json:"book_time"`
	UpdateTime  time.Time       `json:"update_time"`
}

// NewSnapshotRow flattens a snapshot into a row.
func NewSnapshotRow(snap Snapshot) *SnapshotRow {
	row := &SnapshotRow{
		UpdateID:   snap.UpdateID,
		UpdateType: snap.Kind.String(),
		Exchange:   snap.Exchange,
		Pair:       snap.Pair,
		Bids:       snap.Bids,
		Asks:       snap.Asks,
		UpdateTime: snap.UpdateTime,
	}
	if !snap.BookTime.IsZero() {
		bt := snap.BookTime
		row.BookTime = &bt
	}
	if t := snap.LastTrade; t != nil {
		ts := t.Timestamp
		row.TradeID = t.ID
		row.TradeSide = t.Side
		row.TradePrice = t.Price
		row.TradeAmount = t.Amount
		row.TradeTime = &ts
	}
	return row
}
