package mocks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateCandles(t *testing.T) {
	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	t.Run("produces requested count in chronological order", func(t *testing.T) {
		candles := GenerateCandles(CandleGeneratorConfig{
			Market:       "KRW-BTC",
			Start:        start,
			Count:        50,
			UnitMinutes:  5,
			InitialPrice: 50_000,
			Volatility:   0.01,
			Seed:         1,
		})
		assert.Len(t, candles, 50)
		for i, c := range candles {
			assert.Equal(t, "KRW-BTC", c.Market)
			assert.Equal(t, start.Add(time.Duration(i*5)*time.Minute), c.Timestamp)
		}
	})

	t.Run("high and low bound open and close", func(t *testing.T) {
		candles := GenerateCandles(CandleGeneratorConfig{
			Market:       "KRW-ETH",
			Start:        start,
			Count:        200,
			UnitMinutes:  1,
			InitialPrice: 3_000,
			Volatility:   0.02,
			Seed:         7,
		})
		for _, c := range candles {
			assert.GreaterOrEqual(t, c.High, c.Open)
			assert.GreaterOrEqual(t, c.High, c.Close)
			assert.LessOrEqual(t, c.Low, c.Open)
			assert.LessOrEqual(t, c.Low, c.Close)
			assert.Greater(t, c.Volume, 0.0)
		}
	})

	t.Run("same seed yields identical series", func(t *testing.T) {
		config := CandleGeneratorConfig{
			Market:       "KRW-BTC",
			Start:        start,
			Count:        20,
			UnitMinutes:  1,
			InitialPrice: 50_000,
			Volatility:   0.01,
			Seed:         42,
		}
		assert.Equal(t, GenerateCandles(config), GenerateCandles(config))
	})

	t.Run("positive trend drifts price upward", func(t *testing.T) {
		candles := GenerateCandles(CandleGeneratorConfig{
			Market:       "KRW-BTC",
			Start:        start,
			Count:        500,
			UnitMinutes:  1,
			InitialPrice: 50_000,
			Volatility:   0.005,
			Trend:        0.002,
			Seed:         3,
		})
		assert.Greater(t, candles[len(candles)-1].Close, candles[0].Open)
	})

	t.Run("defaults fill in zero values", func(t *testing.T) {
		candles := GenerateCandles(CandleGeneratorConfig{
			Market: "KRW-BTC",
			Start:  start,
			Count:  3,
			Seed:   5,
		})
		assert.Len(t, candles, 3)
		assert.Equal(t, start.Add(time.Minute), candles[1].Timestamp)
		assert.Greater(t, candles[0].Open, 0.0)
	})
}
