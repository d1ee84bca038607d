package upbit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"crypto_feed/internal/feed"
)

const (
	// Name is the registry key of this feed.
	Name = "Upbit"

	wsURL        = "wss://api.upbit.com/websocket/v1"
	pingInterval = 60 * time.Second
	maxCodes     = 50
)

// orderbookResponse represents Upbit WebSocket orderbook response
type orderbookResponse struct {
	Type      string          `json:"type"` // orderbook
	Code      string          `json:"code"` // KRW-BTC
	Timestamp int64           `json:"timestamp"`
	Units     []orderbookUnit `json:"orderbook_units"`
}

type orderbookUnit struct {
	AskPrice json.Number `json:"ask_price"`
	BidPrice json.Number `json:"bid_price"`
	AskSize  json.Number `json:"ask_size"`
	BidSize  json.Number `json:"bid_size"`
}

// tradeResponse represents Upbit WebSocket trade response
type tradeResponse struct {
	Type           string      `json:"type"` // trade
	Code           string      `json:"code"`
	TradePrice     json.Number `json:"trade_price"`
	TradeVolume    json.Number `json:"trade_volume"`
	AskBid         string      `json:"ask_bid"` // ASK(매도), BID(매수)
	TradeTimestamp int64       `json:"trade_timestamp"`
	SequentialID   json.Number `json:"sequential_id"` // 체결 고유 ID
}

// Feed streams Upbit orderbooks and trades.
type Feed struct {
	*feed.Worker

	opts  feed.Options
	codes map[string]string // KRW-BTC -> BTC-KRW
	now   func() time.Time
}

// New creates an Upbit feed. Registered as a feed.Constructor.
func New(opts feed.Options) (feed.Feed, error) {
	if len(opts.Pairs) > maxCodes {
		return nil, fmt.Errorf("upbit: %d pairs exceed the limit of %d", len(opts.Pairs), maxCodes)
	}
	f := newFeed(opts)
	url := opts.URL
	if url == "" {
		url = wsURL
	}
	f.Worker = feed.NewWorker(feed.WorkerConfig{
		Name:         Name,
		URL:          url,
		PingInterval: pingInterval,
		PingMessage:  []byte("PING"),
		PongMessage:  []byte(`{"status":"UP"}`),
		Metrics:      opts.Metrics,
	}, f)
	return f, nil
}

func newFeed(opts feed.Options) *Feed {
	codes := make(map[string]string, len(opts.Pairs))
	for _, p := range opts.Pairs {
		codes[MarketCode(p)] = p
	}
	return &Feed{opts: opts, codes: codes, now: time.Now}
}

// MarketCode converts "BTC-KRW" to Upbit's quote-first "KRW-BTC".
func MarketCode(pair string) string {
	base, quote, ok := strings.Cut(strings.ToUpper(pair), "-")
	if !ok {
		return strings.ToUpper(pair)
	}
	return quote + "-" + base
}

func (f *Feed) Subscribe(w *feed.Worker) error {
	return w.WriteJSON(f.subscribeRequest())
}

func (f *Feed) subscribeRequest() []map[string]interface{} {
	codes := make([]string, 0, len(f.opts.Pairs))
	for _, p := range f.opts.Pairs {
		codes = append(codes, MarketCode(p))
	}

	msg := []map[string]interface{}{
		{"ticket": fmt.Sprintf("crypto-feed-%d", f.now().UnixNano())},
	}
	if f.opts.Has(feed.L2Book) {
		msg = append(msg, map[string]interface{}{"type": "orderbook", "codes": codes})
	}
	if f.opts.Has(feed.Trades) {
		msg = append(msg, map[string]interface{}{"type": "trade", "codes": codes})
	}
	return msg
}

func (f *Feed) HandleMessage(msg []byte) {
	var head struct {
		Type string `json:"type"`
		Code string `json:"code"`
	}
	if json.Unmarshal(msg, &head) != nil {
		return
	}
	pair, ok := f.codes[head.Code]
	if !ok {
		return
	}

	switch head.Type {
	case "orderbook":
		f.handleOrderbook(pair, msg)
	case "trade":
		f.handleTrade(pair, msg)
	}
}

func decode(msg []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()
	return dec.Decode(v)
}

func (f *Feed) handleOrderbook(pair string, msg []byte) {
	cb := f.opts.Callbacks.Book
	if cb == nil {
		return
	}
	var resp orderbookResponse
	if decode(msg, &resp) != nil {
		return
	}

	book := feed.NewBook()
	for _, u := range resp.Units {
		if u.BidPrice != "" {
			book.Bids[u.BidPrice.String()] = u.BidSize.String()
		}
		if u.AskPrice != "" {
			book.Asks[u.AskPrice.String()] = u.AskSize.String()
		}
	}
	cb(Name, pair, book, f.msToTime(resp.Timestamp))
}

func (f *Feed) handleTrade(pair string, msg []byte) {
	cb := f.opts.Callbacks.Trade
	if cb == nil {
		return
	}
	var resp tradeResponse
	if decode(msg, &resp) != nil {
		return
	}

	side := feed.Sell
	if resp.AskBid == "BID" {
		side = feed.Buy
	}
	cb(Name, pair, resp.SequentialID.String(), f.msToTime(resp.TradeTimestamp), side,
		resp.TradeVolume.String(), resp.TradePrice.String())
}

func (f *Feed) msToTime(ms int64) time.Time {
	if ms <= 0 {
		return f.now()
	}
	return time.UnixMilli(ms).UTC()
}
