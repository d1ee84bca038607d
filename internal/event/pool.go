package event

import (
	"sync"

	"crypto_feed/internal/feed"
)

// Pools for the two hot event types. Feed goroutines acquire, the sequencer
// releases after processing.
//
// Usage:
//
//	ev := AcquireTradeEvent()
//	ev.Exchange = "Bitget"
//	inbox <- ev
//	// ... sequencer processes ...
//	ReleaseTradeEvent(ev)
var bookPool = sync.Pool{
	New: func() interface{} {
		return &BookEvent{}
	},
}

// AcquireBookEvent gets a BookEvent from the pool.
// The returned event has zero values and must be initialized.
func AcquireBookEvent() *BookEvent {
	return bookPool.Get().(*BookEvent)
}

// ReleaseBookEvent resets ev and returns it to the pool.
func ReleaseBookEvent(ev *BookEvent) {
	if ev == nil {
		return
	}
	*ev = BookEvent{}
	bookPool.Put(ev)
}

var tradePool = sync.Pool{
	New: func() interface{} {
		return &TradeEvent{}
	},
}

// AcquireTradeEvent gets a TradeEvent from the pool.
func AcquireTradeEvent() *TradeEvent {
	return tradePool.Get().(*TradeEvent)
}

// ReleaseTradeEvent resets ev and returns it to the pool.
func ReleaseTradeEvent(ev *TradeEvent) {
	if ev == nil {
		return
	}
	*ev = TradeEvent{}
	tradePool.Put(ev)
}

// Release returns any pooled event to its pool.
func Release(ev Event) {
	switch e := ev.(type) {
	case *BookEvent:
		ReleaseBookEvent(e)
	case *TradeEvent:
		ReleaseTradeEvent(e)
	}
}

// Warmup pre-allocates event objects to reduce GC pressure at startup.
func Warmup() {
	const batchSize = 1000

	books := make([]*BookEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		books = append(books, AcquireBookEvent())
	}
	for _, ev := range books {
		ReleaseBookEvent(ev)
	}

	trades := make([]*TradeEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		trades = append(trades, AcquireTradeEvent())
	}
	for _, ev := range trades {
		ReleaseTradeEvent(ev)
	}
}

// NewBookEvent acquires a BookEvent and fills it.
func NewBookEvent(exchange, pair string, book feed.Book) *BookEvent {
	ev := AcquireBookEvent()
	ev.Exchange = exchange
	ev.Pair = pair
	ev.Book = book
	return ev
}
