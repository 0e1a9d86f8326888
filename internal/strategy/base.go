package strategy

import (
	"context"

	"go.uber.org/zap"

	"github.com/quantbit/upbit-engine/internal/types"
)

// baseStrategy holds the state shared by every concrete strategy: a bounded
// candle window and a position state per market. Both are mutated only from
// OnData and OnSignal.
type baseStrategy struct {
	maxWindow int
	tctx      *TradingContext
	windows   map[string][]types.Candle
	positions map[string]Position
}

func newBaseStrategy(maxWindow int) baseStrategy {
	return baseStrategy{
		maxWindow: maxWindow,
		windows:   make(map[string][]types.Candle),
		positions: make(map[string]Position),
	}
}

// Initialize implements Strategy.
func (b *baseStrategy) Initialize(tctx *TradingContext) error {
	b.tctx = tctx
	b.windows = make(map[string][]types.Candle)
	b.positions = make(map[string]Position)

	for _, market := range tctx.Markets {
		b.positions[market] = PositionNone
	}

	return nil
}

// appendCandle adds the candle to its market's window, evicting the oldest
// entry past the cap, and returns the window's closing prices.
func (b *baseStrategy) appendCandle(candle types.Candle) []float64 {
	window := append(b.windows[candle.Market], candle)
	if len(window) > b.maxWindow {
		window = window[1:]
	}
	b.windows[candle.Market] = window

	closes := make([]float64, len(window))
	for i, c := range window {
		closes[i] = c.Close
	}

	return closes
}

func (b *baseStrategy) position(market string) Position {
	if p, ok := b.positions[market]; ok {
		return p
	}

	return PositionNone
}

func (b *baseStrategy) setPosition(market string, p Position) {
	b.positions[market] = p
}

// executeSignal is the default OnSignal behavior: route the signal to the
// executor when one is present, otherwise just log it. Buys commit the
// configured trade amount; sells liquidate the full held volume.
func (b *baseStrategy) executeSignal(ctx context.Context, name string, signal types.SignalType, event types.Event) {
	log := b.tctx.Logger

	candle, err := event.Candle.Take()
	if err != nil {
		return
	}

	log.Info("strategy signal",
		zap.String("strategy", name),
		zap.String("market", event.Market),
		zap.String("signal", string(signal)),
		zap.Float64("price", candle.Close))

	executor := b.tctx.Executor
	if executor == nil {
		return
	}

	switch signal {
	case types.SignalTypeBuy:
		if _, err := executor.Buy(ctx, candle.Market, candle.Close, b.tctx.TradeAmount, name); err != nil {
			log.Error("buy order failed",
				zap.String("strategy", name),
				zap.String("market", candle.Market),
				zap.Error(err))
		}
	case types.SignalTypeSell:
		volume, err := executor.HeldVolume(ctx, candle.Market)
		if err != nil {
			log.Error("failed to read held volume",
				zap.String("market", candle.Market),
				zap.Error(err))

			return
		}
		if volume <= 0 {
			return
		}

		if _, err := executor.Sell(ctx, candle.Market, candle.Close, volume, name); err != nil {
			log.Error("sell order failed",
				zap.String("strategy", name),
				zap.String("market", candle.Market),
				zap.Error(err))
		}
	case types.SignalTypeNone:
	}
}
