package binance

import (
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"crypto_feed/internal/feed"

	"github.com/tidwall/gjson"
)

const (
	// Name is the registry key of this feed.
	Name = "Binance"

	streamURL = "wss://stream.binance.com:9443/stream"
)

// Feed streams Binance partial depth and trades over a combined stream.
// Binance sends websocket ping frames itself, so no application ping is set.
type Feed struct {
	*feed.Worker

	opts    feed.Options
	symbols map[string]string // btcusdt -> BTC-USDT
	reqID   atomic.Int64
	now     func() time.Time
}

// New creates a Binance spot feed. Registered as a feed.Constructor.
func New(opts feed.Options) (feed.Feed, error) {
	f := newFeed(opts)
	url := opts.URL
	if url == "" {
		url = streamURL
	}
	f.Worker = feed.NewWorker(feed.WorkerConfig{
		Name:    Name,
		URL:     url,
		Metrics: opts.Metrics,
	}, f)
	return f, nil
}

func newFeed(opts feed.Options) *Feed {
	symbols := make(map[string]string, len(opts.Pairs))
	for _, p := range opts.Pairs {
		symbols[Symbol(p)] = p
	}
	return &Feed{opts: opts, symbols: symbols, now: time.Now}
}

// Symbol converts "BTC-USDT" to the lowercase stream symbol "btcusdt".
func Symbol(pair string) string {
	return strings.ToLower(strings.ReplaceAll(pair, "-", ""))
}

// depthLevels picks the nearest partial depth stream Binance offers (5, 10, 20).
func depthLevels(depth int) string {
	switch {
	case depth > 0 && depth <= 5:
		return "5"
	case depth > 0 && depth <= 10:
		return "10"
	default:
		return "20"
	}
}

func (f *Feed) streams() []string {
	out := make([]string, 0, 2*len(f.opts.Pairs))
	for _, p := range f.opts.Pairs {
		s := Symbol(p)
		if f.opts.Has(feed.L2Book) {
			out = append(out, s+"@depth"+depthLevels(f.opts.Depth)+"@100ms")
		}
		if f.opts.Has(feed.Trades) {
			out = append(out, s+"@trade")
		}
	}
	return out
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

func (f *Feed) Subscribe(w *feed.Worker) error {
	return w.WriteJSON(f.subscribeRequest())
}

func (f *Feed) subscribeRequest() subscribeRequest {
	return subscribeRequest{Method: "SUBSCRIBE", Params: f.streams(), ID: f.reqID.Add(1)}
}

func (f *Feed) HandleMessage(msg []byte) {
	if !gjson.ValidBytes(msg) {
		slog.Debug("Binance unparsable frame")
		return
	}
	res := gjson.ParseBytes(msg)
	if errMsg := res.Get("error.msg"); errMsg.Exists() {
		slog.Warn("Binance error response", slog.String("msg", errMsg.String()))
		return
	}

	stream := res.Get("stream").String()
	if stream == "" {
		return // subscription ack
	}
	symbol, kind, _ := strings.Cut(stream, "@")
	pair, ok := f.symbols[symbol]
	if !ok {
		return
	}

	data := res.Get("data")
	switch {
	case strings.HasPrefix(kind, "depth"):
		f.handleDepth(pair, data)
	case kind == "trade":
		f.handleTrade(pair, data)
	}
}

// Partial depth frames carry no event time; the receive time is used.
func (f *Feed) handleDepth(pair string, data gjson.Result) {
	cb := f.opts.Callbacks.Book
	if cb == nil {
		return
	}
	book := feed.NewBook()
	fillSide(book.Bids, data.Get("bids"))
	fillSide(book.Asks, data.Get("asks"))
	cb(Name, pair, book, f.now().UTC())
}

func fillSide(side map[string]string, rows gjson.Result) {
	rows.ForEach(func(_, row gjson.Result) bool {
		lv := row.Array()
		if len(lv) >= 2 {
			side[lv[0].String()] = lv[1].String()
		}
		return true
	})
}

func (f *Feed) handleTrade(pair string, data gjson.Result) {
	cb := f.opts.Callbacks.Trade
	if cb == nil {
		return
	}
	// m: buyer is the maker, so the aggressor sold
	side := feed.Buy
	if data.Get("m").Bool() {
		side = feed.Sell
	}
	ts := f.now().UTC()
	if ms := data.Get("T").Int(); ms > 0 {
		ts = time.UnixMilli(ms).UTC()
	}
	cb(Name, pair, data.Get("t").String(), ts, side, data.Get("q").String(), data.Get("p").String())
}
