package binance

import (
	"testing"
	"time"

	"crypto_feed/internal/feed"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbol(t *testing.T) {
	assert.Equal(t, "btcusdt", Symbol("BTC-USDT"))
}

func TestStreams(t *testing.T) {
	tests := []struct {
		name     string
		depth    int
		channels []feed.Channel
		want     []string
	}{
		{"both", 5, []feed.Channel{feed.L2Book, feed.Trades}, []string{"btcusdt@depth5@100ms", "btcusdt@trade"}},
		{"depth 10", 8, []feed.Channel{feed.L2Book}, []string{"btcusdt@depth10@100ms"}},
		{"unlimited", 0, []feed.Channel{feed.L2Book}, []string{"btcusdt@depth20@100ms"}},
		{"trades", 5, []feed.Channel{feed.Trades}, []string{"btcusdt@trade"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFeed(feed.Options{Pairs: []string{"BTC-USDT"}, Channels: tt.channels, Depth: tt.depth})
			assert.Equal(t, tt.want, f.streams())
		})
	}
}

func TestSubscribeRequest_IncrementsID(t *testing.T) {
	f := newFeed(feed.Options{Pairs: []string{"BTC-USDT"}, Channels: []feed.Channel{feed.Trades}})
	first := f.subscribeRequest()
	second := f.subscribeRequest()
	assert.Equal(t, "SUBSCRIBE", first.Method)
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
}

func TestHandleMessage_Depth(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	var gotPair string
	var gotBook feed.Book
	var gotTs time.Time
	f := newFeed(feed.Options{
		Pairs: []string{"BTC-USDT"},
		Callbacks: feed.Callbacks{Book: func(exchange, pair string, book feed.Book, ts time.Time) {
			gotPair, gotBook, gotTs = pair, book, ts
		}},
	})
	f.now = func() time.Time { return now }

	f.HandleMessage([]byte(`{"stream":"btcusdt@depth5@100ms","data":{"lastUpdateId":160,
		"bids":[["0.0024","10"],["0.0023","5"]],"asks":[["0.0026","100"]]}}`))

	assert.Equal(t, "BTC-USDT", gotPair)
	assert.Equal(t, map[string]string{"0.0024": "10", "0.0023": "5"}, gotBook.Bids)
	assert.Equal(t, map[string]string{"0.0026": "100"}, gotBook.Asks)
	assert.Equal(t, now, gotTs)
}

func TestHandleMessage_Trade(t *testing.T) {
	type trade struct {
		id, amount, price string
		side              feed.Side
		ts                time.Time
	}
	var got []trade
	f := newFeed(feed.Options{
		Pairs: []string{"BTC-USDT"},
		Callbacks: feed.Callbacks{Trade: func(exchange, pair, tradeID string, ts time.Time, side feed.Side, amount, price string) {
			got = append(got, trade{tradeID, amount, price, side, ts})
		}},
	})

	f.HandleMessage([]byte(`{"stream":"btcusdt@trade","data":{"e":"trade","E":1672515782136,"s":"BTCUSDT","t":12345,"p":"0.001","q":"100","T":1672515782136,"m":true}}`))
	f.HandleMessage([]byte(`{"stream":"btcusdt@trade","data":{"e":"trade","t":12346,"p":"0.002","q":"1","T":1672515782137,"m":false}}`))

	require.Len(t, got, 2)
	assert.Equal(t, "12345", got[0].id)
	assert.Equal(t, feed.Sell, got[0].side)
	assert.Equal(t, feed.Buy, got[1].side)
	assert.Equal(t, "100", got[0].amount)
	assert.True(t, got[0].ts.Equal(time.UnixMilli(1672515782136)))
}

func TestHandleMessage_Ignored(t *testing.T) {
	calls := 0
	f := newFeed(feed.Options{
		Pairs: []string{"BTC-USDT"},
		Callbacks: feed.Callbacks{
			Book:  func(string, string, feed.Book, time.Time) { calls++ },
			Trade: func(string, string, string, time.Time, feed.Side, string, string) { calls++ },
		},
	})

	for _, fr := range []string{
		`garbage`,
		`{"result":null,"id":1}`,
		`{"error":{"code":2,"msg":"Invalid request"},"id":1}`,
		`{"stream":"ethusdt@trade","data":{"t":1,"p":"1","q":"1"}}`,
	} {
		f.HandleMessage([]byte(fr))
	}
	assert.Zero(t, calls)
}
