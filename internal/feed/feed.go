// Package feed defines the contract between exchange websocket workers and the
// normalizer: callback signatures, the Feed lifecycle, a name registry, and a
// handler that runs a set of feeds until shutdown.
package feed

import (
	"context"
	"time"

	"crypto_feed/internal/infra"
)

// Channel is a market-data stream a feed can subscribe to.
type Channel string

const (
	L2Book Channel = infra.ChannelL2Book
	Trades Channel = infra.ChannelTrades
)

// Side is the aggressor side of a trade.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Book is a raw book payload: price -> volume, both as exchange strings.
type Book struct {
	Bids map[string]string
	Asks map[string]string
}

// NewBook returns a book with empty sides.
func NewBook() Book {
	return Book{Bids: make(map[string]string), Asks: make(map[string]string)}
}

// BookCallback receives a full book for an external pair ("BTC-USDT").
type BookCallback func(exchange, pair string, book Book, ts time.Time)

// TradeCallback receives one trade for an external pair.
type TradeCallback func(exchange, pair, tradeID string, ts time.Time, side Side, amount, price string)

// Callbacks bundles the callbacks a feed invokes. Nil callbacks are skipped.
type Callbacks struct {
	Book  BookCallback
	Trade TradeCallback
}

// Options configures a feed instance.
type Options struct {
	Pairs     []string // External pair names
	Channels  []Channel
	Callbacks Callbacks
	Depth     int
	URL       string // Overrides the default endpoint when set
	Metrics   *infra.Metrics
}

// Has reports whether ch is among the subscribed channels.
func (o Options) Has(ch Channel) bool {
	for _, c := range o.Channels {
		if c == ch {
			return true
		}
	}
	return false
}

// Feed is one exchange connection.
type Feed interface {
	Name() string
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
}
