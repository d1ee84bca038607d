package bitget

import (
	"time"
)

const (
	// Name is the registry key of this feed.
	Name = "Bitget"

	publicWSURL  = "wss://ws.bitget.com/v2/ws/public"
	pingInterval = 30 * time.Second

	instTypeSpot  = "SPOT"
	channelTrade  = "trade"
	channelBooks1 = "books1"
	channelBooks5 = "books5"
	channelBooks  = "books15"
)

// subscribeRequest Structure
type subscribeRequest struct {
	Op   string         `json:"op"`
	Args []subscribeArg `json:"args"`
}

type subscribeArg struct {
	InstType string `json:"instType"`
	Channel  string `json:"channel"`
	InstId   string `json:"instId"`
}

// pushMessage is the envelope of every data push.
type pushMessage struct {
	Action string       `json:"action"` // snapshot, update
	Event  string       `json:"event"`  // subscribe, error
	Code   int          `json:"code"`
	Msg    string       `json:"msg"`
	Arg    subscribeArg `json:"arg"`
	Ts     int64        `json:"ts"`
}

type bookMessage struct {
	Data []bookData `json:"data"`
}

type bookData struct {
	Asks [][]string `json:"asks"` // [price, size]
	Bids [][]string `json:"bids"`
	Ts   string     `json:"ts"`
}

type tradeMessage struct {
	Data []tradeData `json:"data"`
}

type tradeData struct {
	Ts      string `json:"ts"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"` // buy, sell
	TradeId string `json:"tradeId"`
}
