// Package strategy defines the trading strategy lifecycle contract and the
// concrete strategies shipped with the engine. Strategies are pure state
// machines over candle events: they never talk to the exchange directly,
// only to the injected executor.
package strategy

import (
	"context"

	"github.com/quantbit/upbit-engine/internal/logger"
	"github.com/quantbit/upbit-engine/internal/types"
)

// Position is a strategy's per-market position state. There are no short or
// partial positions.
type Position string

const (
	PositionNone Position = "none"
	PositionLong Position = "long"
)

// Executor is the slice of the order execution gateway a strategy needs.
type Executor interface {
	// Buy submits a buy order for the given notional amount of quote
	// currency.
	Buy(ctx context.Context, market string, price float64, amount float64, reason string) (types.Order, error)
	// Sell submits a sell order for the given volume of base currency.
	Sell(ctx context.Context, market string, price float64, volume float64, reason string) (types.Order, error)
	// HeldVolume reports the base currency volume currently held for the
	// market.
	HeldVolume(ctx context.Context, market string) (float64, error)
}

// TradingContext carries the collaborators a strategy receives at
// initialization time.
type TradingContext struct {
	// Markets the strategy operates on.
	Markets []string
	// Executor routes signals to orders. Nil in backtests, where the
	// replay engine applies signals to its own portfolio.
	Executor Executor
	// TradeAmount is the quote currency notional committed per buy
	// signal.
	TradeAmount float64
	// Logger for strategy level diagnostics.
	Logger *logger.Logger
}

// Strategy is the lifecycle contract shared by live trading and backtests.
type Strategy interface {
	// Name identifies the strategy in the registry and the API.
	Name() string
	// Initialize resets all per-market state for the given context.
	Initialize(tctx *TradingContext) error
	// OnData consumes one market data event and returns the resulting
	// signal, if any. Non-candle events yield SignalTypeNone.
	OnData(event types.Event) types.SignalType
	// OnSignal reacts to a signal returned by OnData.
	OnSignal(ctx context.Context, signal types.SignalType, event types.Event)
}
