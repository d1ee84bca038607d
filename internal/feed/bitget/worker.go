package bitget

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"crypto_feed/internal/feed"
)

// Feed streams Bitget spot books and trades.
type Feed struct {
	*feed.Worker

	opts    feed.Options
	symbols map[string]string // instId -> external pair
	now     func() time.Time
}

// New creates a Bitget spot feed. Registered as a feed.Constructor.
func New(opts feed.Options) (feed.Feed, error) {
	f := newFeed(opts)
	url := opts.URL
	if url == "" {
		url = publicWSURL
	}
	f.Worker = feed.NewWorker(feed.WorkerConfig{
		Name:         Name,
		URL:          url,
		PingInterval: pingInterval,
		PingMessage:  []byte("ping"),
		PongMessage:  []byte("pong"),
		Metrics:      opts.Metrics,
	}, f)
	return f, nil
}

func newFeed(opts feed.Options) *Feed {
	symbols := make(map[string]string, len(opts.Pairs))
	for _, p := range opts.Pairs {
		symbols[InstID(p)] = p
	}
	return &Feed{opts: opts, symbols: symbols, now: time.Now}
}

// InstID converts "BTC-USDT" to Bitget's "BTCUSDT".
func InstID(pair string) string {
	return strings.ToUpper(strings.ReplaceAll(pair, "-", ""))
}

func bookChannel(depth int) string {
	switch {
	case depth == 1:
		return channelBooks1
	case depth > 0 && depth <= 5:
		return channelBooks5
	default:
		return channelBooks
	}
}

func (f *Feed) Subscribe(w *feed.Worker) error {
	return w.WriteJSON(f.subscribeRequest())
}

func (f *Feed) subscribeRequest() subscribeRequest {
	args := make([]subscribeArg, 0, 2*len(f.opts.Pairs))
	for _, p := range f.opts.Pairs {
		id := InstID(p)
		if f.opts.Has(feed.L2Book) {
			args = append(args, subscribeArg{InstType: instTypeSpot, Channel: bookChannel(f.opts.Depth), InstId: id})
		}
		if f.opts.Has(feed.Trades) {
			args = append(args, subscribeArg{InstType: instTypeSpot, Channel: channelTrade, InstId: id})
		}
	}
	return subscribeRequest{Op: "subscribe", Args: args}
}

func (f *Feed) HandleMessage(msg []byte) {
	var head pushMessage
	if err := json.Unmarshal(msg, &head); err != nil {
		slog.Debug("Bitget unparsable frame", slog.Any("error", err))
		return
	}
	if head.Event == "error" {
		slog.Warn("Bitget error event", slog.Int("code", head.Code), slog.String("msg", head.Msg))
		return
	}
	if head.Event != "" {
		return
	}

	pair, ok := f.symbols[head.Arg.InstId]
	if !ok {
		return
	}

	switch head.Arg.Channel {
	case channelBooks1, channelBooks5, channelBooks:
		f.handleBook(pair, msg)
	case channelTrade:
		f.handleTrade(pair, msg)
	}
}

func (f *Feed) handleBook(pair string, msg []byte) {
	cb := f.opts.Callbacks.Book
	if cb == nil {
		return
	}
	var resp bookMessage
	if err := json.Unmarshal(msg, &resp); err != nil {
		return
	}
	for _, data := range resp.Data {
		book := feed.NewBook()
		fillSide(book.Bids, data.Bids)
		fillSide(book.Asks, data.Asks)
		cb(Name, pair, book, f.parseTs(data.Ts))
	}
}

func (f *Feed) handleTrade(pair string, msg []byte) {
	cb := f.opts.Callbacks.Trade
	if cb == nil {
		return
	}
	var resp tradeMessage
	if err := json.Unmarshal(msg, &resp); err != nil {
		return
	}
	for _, data := range resp.Data {
		side := feed.Buy
		if data.Side == "sell" {
			side = feed.Sell
		}
		cb(Name, pair, data.TradeId, f.parseTs(data.Ts), side, data.Size, data.Price)
	}
}

func fillSide(side map[string]string, rows [][]string) {
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		side[row[0]] = row[1]
	}
}

// Bitget sends Timestamp in Milliseconds (string)
func (f *Feed) parseTs(ms string) time.Time {
	v, err := strconv.ParseInt(ms, 10, 64)
	if err != nil || v <= 0 {
		return f.now()
	}
	return time.UnixMilli(v).UTC()
}
