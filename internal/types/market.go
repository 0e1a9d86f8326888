package types

import (
	"time"

	"github.com/moznion/go-optional"
)

// DataType identifies a class of market data handled by the data store.
type DataType string

const (
	DataTypeTicker    DataType = "ticker"
	DataTypeOrderbook DataType = "orderbook"
	DataTypeCandle    DataType = "candle"
)

// Candle is a single OHLCV bar for a market. Immutable once produced.
type Candle struct {
	Market    string    `json:"market"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Ticker is the latest traded state of a market.
type Ticker struct {
	Market            string    `json:"market"`
	TradePrice        float64   `json:"trade_price"`
	HighPrice         float64   `json:"high_price"`
	LowPrice          float64   `json:"low_price"`
	SignedChangeRate  float64   `json:"signed_change_rate"`
	AccTradeVolume24h float64   `json:"acc_trade_volume_24h"`
	Timestamp         time.Time `json:"timestamp"`
}

// OrderbookUnit is a single price level of an orderbook snapshot.
type OrderbookUnit struct {
	AskPrice float64 `json:"ask_price"`
	BidPrice float64 `json:"bid_price"`
	AskSize  float64 `json:"ask_size"`
	BidSize  float64 `json:"bid_size"`
}

// OrderbookSnapshot is a point-in-time view of a market's order book.
type OrderbookSnapshot struct {
	Market       string          `json:"market"`
	Timestamp    time.Time       `json:"timestamp"`
	TotalAskSize float64         `json:"total_ask_size"`
	TotalBidSize float64         `json:"total_bid_size"`
	Units        []OrderbookUnit `json:"orderbook_units"`
}

// Event is a single market data update delivered to strategies and
// subscribers. Exactly one of the payload fields is set, matching Type.
type Event struct {
	Type      DataType
	Market    string
	Candle    optional.Option[Candle]
	Ticker    optional.Option[Ticker]
	Orderbook optional.Option[OrderbookSnapshot]
}

// NewCandleEvent builds an Event carrying a candle payload.
func NewCandleEvent(candle Candle) Event {
	return Event{
		Type:      DataTypeCandle,
		Market:    candle.Market,
		Candle:    optional.Some(candle),
		Ticker:    optional.None[Ticker](),
		Orderbook: optional.None[OrderbookSnapshot](),
	}
}

// NewTickerEvent builds an Event carrying a ticker payload.
func NewTickerEvent(ticker Ticker) Event {
	return Event{
		Type:      DataTypeTicker,
		Market:    ticker.Market,
		Candle:    optional.None[Candle](),
		Ticker:    optional.Some(ticker),
		Orderbook: optional.None[OrderbookSnapshot](),
	}
}

// NewOrderbookEvent builds an Event carrying an orderbook payload.
func NewOrderbookEvent(orderbook OrderbookSnapshot) Event {
	return Event{
		Type:      DataTypeOrderbook,
		Market:    orderbook.Market,
		Candle:    optional.None[Candle](),
		Ticker:    optional.None[Ticker](),
		Orderbook: optional.Some(orderbook),
	}
}
