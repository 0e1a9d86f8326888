package strategy

import (
	"context"

	"github.com/quantbit/upbit-engine/internal/indicator"
	"github.com/quantbit/upbit-engine/internal/types"
)

const (
	defaultShortPeriod = 5
	defaultLongPeriod  = 20
	maCrossWindowLimit = 100

	// MovingAverageCross is the registry name of the MA cross strategy.
	MovingAverageCross = "moving_average_cross"
)

// MACross trades golden and dead crosses of a short and a long simple
// moving average. It opens a long on a golden cross and closes it on a dead
// cross; crosses while already in the corresponding state are ignored.
type MACross struct {
	baseStrategy
	shortPeriod int
	longPeriod  int
}

// NewMACross creates a moving average cross strategy. Non-positive periods
// fall back to the 5/20 defaults.
func NewMACross(shortPeriod, longPeriod int) *MACross {
	if shortPeriod <= 0 {
		shortPeriod = defaultShortPeriod
	}
	if longPeriod <= 0 {
		longPeriod = defaultLongPeriod
	}

	return &MACross{
		baseStrategy: newBaseStrategy(maCrossWindowLimit),
		shortPeriod:  shortPeriod,
		longPeriod:   longPeriod,
	}
}

// Name implements Strategy.
func (s *MACross) Name() string {
	return MovingAverageCross
}

// OnData implements Strategy. The cross is detected by comparing the
// averages over the full window against the averages over the window
// excluding the newest candle.
func (s *MACross) OnData(event types.Event) types.SignalType {
	candle, err := event.Candle.Take()
	if err != nil {
		return types.SignalTypeNone
	}

	closes := s.appendCandle(candle)
	if len(closes) < s.longPeriod {
		return types.SignalTypeNone
	}

	currentShort := indicator.SMA(closes, s.shortPeriod)
	currentLong := indicator.SMA(closes, s.longPeriod)
	previousShort := indicator.SMA(closes[:len(closes)-1], s.shortPeriod)
	previousLong := indicator.SMA(closes[:len(closes)-1], s.longPeriod)

	market := candle.Market

	goldenCross := previousShort <= previousLong && currentShort > currentLong
	if goldenCross && s.position(market) != PositionLong {
		s.setPosition(market, PositionLong)

		return types.SignalTypeBuy
	}

	deadCross := previousShort >= previousLong && currentShort < currentLong
	if deadCross && s.position(market) == PositionLong {
		s.setPosition(market, PositionNone)

		return types.SignalTypeSell
	}

	return types.SignalTypeNone
}

// OnSignal implements Strategy.
func (s *MACross) OnSignal(ctx context.Context, signal types.SignalType, event types.Event) {
	s.executeSignal(ctx, s.Name(), signal, event)
}
