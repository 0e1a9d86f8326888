package strategy

import (
	"context"

	"github.com/quantbit/upbit-engine/internal/indicator"
	"github.com/quantbit/upbit-engine/internal/types"
)

const (
	defaultRSIPeriod  = 14
	defaultOverbought = 70.0
	defaultOversold   = 30.0
	rsiWindowLimit    = 300
	rsiHistoryLimit   = 10

	// RSIReversal is the registry name of the RSI strategy.
	RSIReversal = "rsi_reversal"
)

// RSIStrategy trades threshold crossings of the Relative Strength Index.
// Signals fire only on the crossing itself, never while the index stays
// beyond a threshold: a buy when RSI recovers up through the oversold line,
// a sell when it falls back through the overbought line.
type RSIStrategy struct {
	baseStrategy
	period     int
	overbought float64
	oversold   float64
	// recent keeps the last few RSI values per market for inspection
	// through the API.
	recent map[string][]float64
}

// NewRSIStrategy creates an RSI strategy. Non-positive parameters fall back
// to the 14/70/30 defaults.
func NewRSIStrategy(period int, overbought, oversold float64) *RSIStrategy {
	if period <= 0 {
		period = defaultRSIPeriod
	}
	if overbought <= 0 {
		overbought = defaultOverbought
	}
	if oversold <= 0 {
		oversold = defaultOversold
	}

	return &RSIStrategy{
		baseStrategy: newBaseStrategy(rsiWindowLimit),
		period:       period,
		overbought:   overbought,
		oversold:     oversold,
		recent:       make(map[string][]float64),
	}
}

// Name implements Strategy.
func (s *RSIStrategy) Name() string {
	return RSIReversal
}

// Initialize implements Strategy.
func (s *RSIStrategy) Initialize(tctx *TradingContext) error {
	s.recent = make(map[string][]float64)

	return s.baseStrategy.Initialize(tctx)
}

// RecentValues returns the retained RSI values for a market, oldest first.
func (s *RSIStrategy) RecentValues(market string) []float64 {
	return append([]float64(nil), s.recent[market]...)
}

// OnData implements Strategy.
func (s *RSIStrategy) OnData(event types.Event) types.SignalType {
	candle, err := event.Candle.Take()
	if err != nil {
		return types.SignalTypeNone
	}

	closes := s.appendCandle(candle)

	// Both the current and the previous RSI need period+1 closes.
	if len(closes) < s.period+2 {
		return types.SignalTypeNone
	}

	current := indicator.RSI(closes, s.period)
	previous := indicator.RSI(closes[:len(closes)-1], s.period)

	market := candle.Market
	s.retain(market, current)

	if previous <= s.oversold && current > s.oversold && s.position(market) != PositionLong {
		s.setPosition(market, PositionLong)

		return types.SignalTypeBuy
	}

	if previous >= s.overbought && current < s.overbought && s.position(market) == PositionLong {
		s.setPosition(market, PositionNone)

		return types.SignalTypeSell
	}

	return types.SignalTypeNone
}

// OnSignal implements Strategy.
func (s *RSIStrategy) OnSignal(ctx context.Context, signal types.SignalType, event types.Event) {
	s.executeSignal(ctx, s.Name(), signal, event)
}

func (s *RSIStrategy) retain(market string, value float64) {
	values := append(s.recent[market], value)
	if len(values) > rsiHistoryLimit {
		values = values[1:]
	}
	s.recent[market] = values
}
