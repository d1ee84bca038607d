package normalizer

import (
	"context"
	"errors"
	"testing"
	"time"

	"crypto_feed/internal/domain"
	"crypto_feed/internal/feed"
	"crypto_feed/internal/infra"
	"crypto_feed/internal/mapping"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	handler string
	op      string
	snap    domain.Snapshot
}

type recorder struct {
	name      string
	calls     *[]call
	rotateErr error
	updateErr error
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) RotateTable(_ context.Context, snap domain.Snapshot) error {
	*r.calls = append(*r.calls, call{r.name, "rotate", snap})
	return r.rotateErr
}

func (r *recorder) UpdateTable(_ context.Context, snap domain.Snapshot) error {
	*r.calls = append(*r.calls, call{r.name, "update", snap})
	return r.updateErr
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T, handlers ...domain.Handler) (*Normalizer, *infra.Metrics) {
	t.Helper()
	m, err := mapping.New([]string{"BTC/USD", "ETH/USD"})
	require.NoError(t, err)
	metrics := &infra.Metrics{}
	n := New("Bitget", m, domain.DefaultDepth, handlers,
		WithClock(func() time.Time { return fixedNow }),
		WithMetrics(metrics),
	)
	return n, metrics
}

func book(bids, asks map[string]string) feed.Book {
	return feed.Book{Bids: bids, Asks: asks}
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestOnBook_SinglePush(t *testing.T) {
	var calls []call
	n, metrics := setup(t, &recorder{name: "h1", calls: &calls})

	err := n.OnBook(context.Background(), "BTC-USD",
		book(map[string]string{"100.0": "2.0"}, map[string]string{"101.0": "1.5"}), fixedNow)
	require.NoError(t, err)

	info, ok := n.Instrument("BTC/USD")
	require.True(t, ok)
	snap := info.Snapshot()
	require.Len(t, snap.Bids, 1)
	require.Len(t, snap.Asks, 1)
	assert.True(t, snap.Bids[0].Price.Equal(d("100")))
	assert.True(t, snap.Bids[0].Volume.Equal(d("2")))
	assert.True(t, snap.Asks[0].Price.Equal(d("101")))
	assert.True(t, snap.Asks[0].Volume.Equal(d("1.5")))

	require.Len(t, calls, 2)
	assert.Equal(t, "rotate", calls[0].op)
	assert.Equal(t, "update", calls[1].op)
	assert.Equal(t, "BTC/USD", calls[1].snap.Pair)
	assert.Equal(t, domain.UpdateBook, calls[1].snap.Kind)
	assert.Equal(t, uint64(1), metrics.Snapshot().BooksApplied)
}

func TestOnBook_IdenticalUpdateIsDeduplicated(t *testing.T) {
	var calls []call
	n, metrics := setup(t, &recorder{name: "h1", calls: &calls})
	ctx := context.Background()

	first := book(map[string]string{"100.0": "2.0"}, map[string]string{"101.0": "1.5"})
	// Same numbers, different text.
	second := book(map[string]string{"100": "2"}, map[string]string{"101.00": "1.50"})

	require.NoError(t, n.OnBook(ctx, "BTC-USD", first, fixedNow))
	require.NoError(t, n.OnBook(ctx, "BTC-USD", second, fixedNow))

	assert.Len(t, calls, 2, "only the first book reaches the handler")
	snap := metrics.Snapshot()
	assert.Equal(t, uint64(2), snap.BooksReceived)
	assert.Equal(t, uint64(1), snap.BooksUnchanged)
}

func TestOnBook_ChangedVolumePushesAgain(t *testing.T) {
	var calls []call
	n, _ := setup(t, &recorder{name: "h1", calls: &calls})
	ctx := context.Background()

	require.NoError(t, n.OnBook(ctx, "BTC-USD", book(map[string]string{"100": "2"}, nil), fixedNow))
	require.NoError(t, n.OnBook(ctx, "BTC-USD", book(map[string]string{"100": "2.5"}, nil), fixedNow))

	require.Len(t, calls, 4)
	assert.Equal(t, uint64(2), calls[3].snap.UpdateID)
}

func TestOnBook_SamePriceSpelledTwice(t *testing.T) {
	var calls []call
	n, _ := setup(t, &recorder{name: "h1", calls: &calls})
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		b := book(map[string]string{"100": "1", "100.0": "2"}, map[string]string{"101": "1"})
		require.NoError(t, n.OnBook(ctx, "BTC-USD", b, fixedNow))
	}

	require.Len(t, calls, 2, "repeating one callback pushes once")
	bids := calls[1].snap.Bids
	require.Len(t, bids, 1)
	assert.True(t, bids[0].Volume.Equal(d("3")))
}

func TestOnBook_KeepsFeedTime(t *testing.T) {
	var calls []call
	n, _ := setup(t, &recorder{name: "h1", calls: &calls})
	feedTime := fixedNow.Add(-250 * time.Millisecond)

	require.NoError(t, n.OnBook(context.Background(), "BTC-USD", book(map[string]string{"100": "1"}, nil), feedTime))

	require.Len(t, calls, 2)
	assert.Equal(t, feedTime, calls[1].snap.BookTime)
	assert.Equal(t, fixedNow, calls[1].snap.UpdateTime)
}

func TestOnBook_SortsAndTruncates(t *testing.T) {
	var calls []call
	n, _ := setup(t, &recorder{name: "h1", calls: &calls})

	bids := map[string]string{"1": "1", "2": "1", "3": "1", "4": "1", "5": "1", "6": "1", "7": "0"}
	asks := map[string]string{"10": "1", "9": "1", "8": "1"}
	require.NoError(t, n.OnBook(context.Background(), "BTC-USD", book(bids, asks), fixedNow))

	snap := calls[1].snap
	require.Len(t, snap.Bids, domain.DefaultDepth)
	assert.True(t, snap.Bids[0].Price.Equal(d("6")), "best bid first, zero volume dropped")
	assert.True(t, snap.Asks[0].Price.Equal(d("8")), "best ask first")
}

func TestOnBook_UnknownPair(t *testing.T) {
	var calls []call
	n, _ := setup(t, &recorder{name: "h1", calls: &calls})

	err := n.OnBook(context.Background(), "XRP-USD", book(map[string]string{"1": "1"}, nil), fixedNow)
	assert.ErrorIs(t, err, domain.ErrUnknownPair)
	assert.Empty(t, calls)
	for _, s := range n.Snapshots() {
		assert.Zero(t, s.UpdateID, "no instrument may change")
	}
}

func TestOnBook_InvalidNumber(t *testing.T) {
	var calls []call
	n, _ := setup(t, &recorder{name: "h1", calls: &calls})

	err := n.OnBook(context.Background(), "BTC-USD", book(map[string]string{"abc": "1"}, nil), fixedNow)
	assert.ErrorIs(t, err, domain.ErrInvalidNumber)

	err = n.OnBook(context.Background(), "BTC-USD", book(nil, map[string]string{"1": "1.2.3"}), fixedNow)
	assert.ErrorIs(t, err, domain.ErrInvalidNumber)
	assert.Empty(t, calls)
}

func TestOnTrade_Deduplicates(t *testing.T) {
	var calls []call
	n, metrics := setup(t, &recorder{name: "h1", calls: &calls})
	ctx := context.Background()
	feedTime := fixedNow.Add(-time.Second)

	require.NoError(t, n.OnTrade(ctx, "ETH-USD", "42", feedTime, feed.Buy, "0.5", "3000"))
	require.NoError(t, n.OnTrade(ctx, "ETH-USD", "42", feedTime, feed.Buy, "0.5", "3000"))

	require.Len(t, calls, 2)
	trade := calls[1].snap.LastTrade
	require.NotNil(t, trade)
	assert.Equal(t, "42", trade.ID)
	assert.Equal(t, "buy", trade.Side)
	assert.True(t, trade.Price.Equal(d("3000")))
	assert.Equal(t, feedTime, trade.Timestamp)
	assert.Equal(t, fixedNow, trade.ReceivedAt, "receive time comes from the clock")
	assert.Equal(t, domain.UpdateTrade, calls[1].snap.Kind)

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.TradesApplied)
	assert.Equal(t, uint64(1), snap.TradesDuplicate)
}

func TestOnTrade_DistinctIDsPush(t *testing.T) {
	var calls []call
	n, _ := setup(t, &recorder{name: "h1", calls: &calls})
	ctx := context.Background()

	require.NoError(t, n.OnTrade(ctx, "ETH-USD", "1", fixedNow, feed.Buy, "1", "10"))
	require.NoError(t, n.OnTrade(ctx, "ETH-USD", "2", fixedNow, feed.Sell, "1", "10"))
	assert.Len(t, calls, 4)
}

func TestOnTrade_UnknownPair(t *testing.T) {
	var calls []call
	n, _ := setup(t, &recorder{name: "h1", calls: &calls})

	err := n.OnTrade(context.Background(), "DOGE-USD", "1", fixedNow, feed.Buy, "1", "1")
	assert.ErrorIs(t, err, domain.ErrUnknownPair)
	assert.Empty(t, calls)
	for _, s := range n.Snapshots() {
		assert.Nil(t, s.LastTrade)
	}
}

func TestOnTrade_InvalidNumber(t *testing.T) {
	n, _ := setup(t)
	err := n.OnTrade(context.Background(), "ETH-USD", "1", fixedNow, feed.Buy, "1", "NaN?")
	assert.ErrorIs(t, err, domain.ErrInvalidNumber)
}

func TestFanOut_OrderAndErrors(t *testing.T) {
	var calls []call
	failing := &recorder{name: "bad", calls: &calls, rotateErr: errors.New("disk full")}
	h1 := &recorder{name: "h1", calls: &calls}
	h2 := &recorder{name: "h2", calls: &calls, updateErr: errors.New("timeout")}
	n, metrics := setup(t, h1, failing, h2)

	require.NoError(t, n.OnTrade(context.Background(), "BTC-USD", "1", fixedNow, feed.Sell, "1", "1"))

	var got []string
	for _, c := range calls {
		got = append(got, c.handler+":"+c.op)
	}
	assert.Equal(t, []string{"h1:rotate", "h1:update", "bad:rotate", "h2:rotate", "h2:update"}, got)
	assert.Equal(t, uint64(2), metrics.Snapshot().HandlerErrors)
}

func TestSnapshots_Sorted(t *testing.T) {
	n, _ := setup(t)
	snaps := n.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "BTC/USD", snaps[0].Pair)
	assert.Equal(t, "ETH/USD", snaps[1].Pair)
	assert.Equal(t, "Bitget", n.Exchange())
}
