package event

import (
	"time"

	"crypto_feed/internal/feed"
)

// Type identifies an event kind.
type Type uint8

const (
	TypeBook Type = iota + 1
	TypeTrade
)

func (t Type) String() string {
	switch t {
	case TypeBook:
		return "book"
	case TypeTrade:
		return "trade"
	default:
		return "unknown"
	}
}

// Event is anything the sequencer consumes.
type Event interface {
	GetSeq() uint64
	SetSeq(seq uint64)
	GetType() Type
	GetExchange() string
}

// BaseEvent carries the sequence number and the enqueue time.
type BaseEvent struct {
	Seq      uint64
	Ts       time.Time // Enqueue time, used for latency
	Exchange string
	Pair     string // External pair
}

func (e *BaseEvent) GetSeq() uint64      { return e.Seq }
func (e *BaseEvent) SetSeq(seq uint64)   { e.Seq = seq }
func (e *BaseEvent) GetExchange() string { return e.Exchange }

// BookEvent is one book callback.
type BookEvent struct {
	BaseEvent
	Book     feed.Book
	FeedTime time.Time
}

func (e *BookEvent) GetType() Type { return TypeBook }

// TradeEvent is one trade callback.
type TradeEvent struct {
	BaseEvent
	TradeID  string
	Side     feed.Side
	Amount   string
	Price    string
	FeedTime time.Time
}

func (e *TradeEvent) GetType() Type { return TypeTrade }
