package bitget

import (
	"testing"
	"time"

	"crypto_feed/internal/feed"
)

type captured struct {
	books  []feed.Book
	pairs  []string
	ts     []time.Time
	trades []string
	sides  []feed.Side
}

func newTestFeed(c *captured, channels ...feed.Channel) *Feed {
	return newFeed(feed.Options{
		Pairs:    []string{"BTC-USDT", "ETH-USDT"},
		Channels: channels,
		Depth:    5,
		Callbacks: feed.Callbacks{
			Book: func(exchange, pair string, book feed.Book, ts time.Time) {
				c.books = append(c.books, book)
				c.pairs = append(c.pairs, pair)
				c.ts = append(c.ts, ts)
			},
			Trade: func(exchange, pair, tradeID string, ts time.Time, side feed.Side, amount, price string) {
				c.trades = append(c.trades, pair+"|"+tradeID+"|"+amount+"|"+price)
				c.sides = append(c.sides, side)
			},
		},
	})
}

func TestInstID(t *testing.T) {
	if got := InstID("btc-usdt"); got != "BTCUSDT" {
		t.Errorf("InstID = %s, want BTCUSDT", got)
	}
}

func TestSubscribeRequest(t *testing.T) {
	t.Run("both channels", func(t *testing.T) {
		f := newTestFeed(&captured{}, feed.L2Book, feed.Trades)
		req := f.subscribeRequest()
		if req.Op != "subscribe" || len(req.Args) != 4 {
			t.Fatalf("Unexpected request: %+v", req)
		}
		if req.Args[0].Channel != channelBooks5 || req.Args[0].InstId != "BTCUSDT" || req.Args[0].InstType != "SPOT" {
			t.Errorf("Unexpected first arg: %+v", req.Args[0])
		}
		if req.Args[1].Channel != channelTrade {
			t.Errorf("Expected trade channel, got %s", req.Args[1].Channel)
		}
	})

	t.Run("trades only", func(t *testing.T) {
		f := newTestFeed(&captured{}, feed.Trades)
		req := f.subscribeRequest()
		if len(req.Args) != 2 || req.Args[0].Channel != channelTrade {
			t.Errorf("Unexpected request: %+v", req)
		}
	})
}

func TestBookChannel(t *testing.T) {
	tests := []struct {
		depth int
		want  string
	}{
		{1, channelBooks1},
		{5, channelBooks5},
		{10, channelBooks},
		{0, channelBooks},
	}
	for _, tt := range tests {
		if got := bookChannel(tt.depth); got != tt.want {
			t.Errorf("bookChannel(%d) = %s, want %s", tt.depth, got, tt.want)
		}
	}
}

func TestHandleMessage_Book(t *testing.T) {
	c := &captured{}
	f := newTestFeed(c, feed.L2Book, feed.Trades)

	msg := `{"action":"snapshot","arg":{"instType":"SPOT","channel":"books5","instId":"BTCUSDT"},
		"data":[{"asks":[["27000.5","8.760"],["27001.0","0.400"]],"bids":[["27000.0","2.710"]],"checksum":0,"ts":"1695716059516"}],"ts":1695716059516}`
	f.HandleMessage([]byte(msg))

	if len(c.books) != 1 {
		t.Fatalf("Expected 1 book, got %d", len(c.books))
	}
	if c.pairs[0] != "BTC-USDT" {
		t.Errorf("Expected external pair BTC-USDT, got %s", c.pairs[0])
	}
	book := c.books[0]
	if book.Bids["27000.0"] != "2.710" || len(book.Asks) != 2 || book.Asks["27001.0"] != "0.400" {
		t.Errorf("Unexpected book: %+v", book)
	}
	if !c.ts[0].Equal(time.UnixMilli(1695716059516)) {
		t.Errorf("Unexpected ts: %v", c.ts[0])
	}
}

func TestHandleMessage_Trade(t *testing.T) {
	c := &captured{}
	f := newTestFeed(c, feed.L2Book, feed.Trades)

	msg := `{"action":"update","arg":{"instType":"SPOT","channel":"trade","instId":"ETHUSDT"},
		"data":[{"ts":"1695709835822","price":"1600.5","size":"0.13","side":"sell","tradeId":"111"},
		        {"ts":"1695709835823","price":"1600.6","size":"0.2","side":"buy","tradeId":"112"}],"ts":1695709835822}`
	f.HandleMessage([]byte(msg))

	if len(c.trades) != 2 {
		t.Fatalf("Expected 2 trades, got %d", len(c.trades))
	}
	if c.trades[0] != "ETH-USDT|111|0.13|1600.5" {
		t.Errorf("Unexpected trade: %s", c.trades[0])
	}
	if c.sides[0] != feed.Sell || c.sides[1] != feed.Buy {
		t.Errorf("Unexpected sides: %v", c.sides)
	}
}

func TestHandleMessage_Ignored(t *testing.T) {
	c := &captured{}
	f := newTestFeed(c, feed.L2Book, feed.Trades)

	frames := []string{
		`not json`,
		`{"event":"subscribe","arg":{"instType":"SPOT","channel":"books5","instId":"BTCUSDT"}}`,
		`{"event":"error","code":30001,"msg":"instType:SPOT,channel:books5,instId:FOOUSDT doesn't exist"}`,
		`{"action":"snapshot","arg":{"instType":"SPOT","channel":"books5","instId":"XRPUSDT"},"data":[{"asks":[],"bids":[],"ts":"1"}]}`,
	}
	for _, fr := range frames {
		f.HandleMessage([]byte(fr))
	}

	if len(c.books) != 0 || len(c.trades) != 0 {
		t.Errorf("Expected no callbacks, got %d books and %d trades", len(c.books), len(c.trades))
	}
}
