// Package exchange defines the capability interface the trading core uses to
// talk to the exchange, plus the Upbit implementation of it. The core never
// constructs a client itself; the composition root injects one.
package exchange

import (
	"context"
	"time"

	"github.com/quantbit/upbit-engine/internal/types"
)

// Side is the exchange-level order side. Upbit uses bid/ask rather than
// buy/sell.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// OrderType is the exchange-level order type.
type OrderType string

const (
	OrderTypeLimit OrderType = "limit"
	// OrderTypePrice is a market buy order quoted in quote currency.
	OrderTypePrice OrderType = "price"
	// OrderTypeMarket is a market sell order quoted in base currency.
	OrderTypeMarket OrderType = "market"
)

// OrderState is the lifecycle state reported by the exchange.
type OrderState string

const (
	OrderStateWait   OrderState = "wait"
	OrderStateDone   OrderState = "done"
	OrderStateCancel OrderState = "cancel"
)

// Account is a single currency balance of the trading account.
type Account struct {
	Currency    string
	Balance     float64
	Locked      float64
	AvgBuyPrice float64
}

// Order is an order as reported by the exchange.
type Order struct {
	ID        string
	Market    string
	Side      Side
	State     OrderState
	Price     float64
	Volume    float64
	CreatedAt time.Time
}

// Market is a tradable market listed on the exchange.
type Market struct {
	Name        string
	KoreanName  string
	EnglishName string
}

// Exchange is the capability the trading core depends on. Every call may
// fail with a distinguishable fetch or order error (pkg/errors codes).
type Exchange interface {
	// GetMarkets returns all tradable markets.
	GetMarkets(ctx context.Context) ([]Market, error)
	// GetTicker returns the latest tickers for the given markets.
	GetTicker(ctx context.Context, markets []string) ([]types.Ticker, error)
	// GetOrderbook returns orderbook snapshots for the given markets.
	GetOrderbook(ctx context.Context, markets []string) ([]types.OrderbookSnapshot, error)
	// GetCandles returns up to count minute candles for the market,
	// newest first, at the given minute unit.
	GetCandles(ctx context.Context, market string, unit int, count int) ([]types.Candle, error)
	// GetAccounts returns the balances of the trading account.
	GetAccounts(ctx context.Context) ([]Account, error)
	// CreateOrder submits an order and returns the exchange's view of it.
	CreateOrder(ctx context.Context, market string, side Side, volume float64, price float64, orderType OrderType) (Order, error)
	// CancelOrder cancels the order with the given id.
	CancelOrder(ctx context.Context, id string) error
	// GetOrder returns the current state of the order with the given id.
	GetOrder(ctx context.Context, id string) (Order, error)
}
