package mocks

import (
	"math/rand"
	"time"

	"github.com/quantbit/upbit-engine/internal/types"
)

// CandleGeneratorConfig configures synthetic candle generation for tests
// and for seeding backtest data.
type CandleGeneratorConfig struct {
	// Market the candles are generated for.
	Market string
	// Start is the timestamp of the first candle.
	Start time.Time
	// Count is the number of candles to generate.
	Count int
	// UnitMinutes is the candle interval in minutes.
	UnitMinutes int
	// InitialPrice is the closing price the walk starts from.
	InitialPrice float64
	// Volatility is the maximum per-candle fractional price change.
	Volatility float64
	// Trend is a fractional drift added to every candle's change.
	Trend float64
	// Seed fixes the random walk; runs with the same seed are identical.
	Seed int64
}

// GenerateCandles produces a deterministic random walk candle series in
// chronological order.
func GenerateCandles(config CandleGeneratorConfig) []types.Candle {
	if config.UnitMinutes <= 0 {
		config.UnitMinutes = 1
	}
	if config.InitialPrice <= 0 {
		config.InitialPrice = 50_000
	}
	if config.Volatility <= 0 {
		config.Volatility = 0.01
	}

	rng := rand.New(rand.NewSource(config.Seed))
	candles := make([]types.Candle, 0, config.Count)
	price := config.InitialPrice

	for i := 0; i < config.Count; i++ {
		change := (rng.Float64()*2-1)*config.Volatility + config.Trend
		open := price
		close := open * (1 + change)

		high := open
		if close > high {
			high = close
		}
		high *= 1 + rng.Float64()*config.Volatility/2

		low := open
		if close < low {
			low = close
		}
		low *= 1 - rng.Float64()*config.Volatility/2

		candles = append(candles, types.Candle{
			Market:    config.Market,
			Timestamp: config.Start.Add(time.Duration(i*config.UnitMinutes) * time.Minute),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    rng.Float64() * 10,
		})

		price = close
	}

	return candles
}
