// Package backtest replays persisted candle history through a strategy and
// a simulated portfolio, producing summary performance metrics.
package backtest

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/quantbit/upbit-engine/internal/logger"
	"github.com/quantbit/upbit-engine/internal/market"
	"github.com/quantbit/upbit-engine/internal/strategy"
	"github.com/quantbit/upbit-engine/internal/types"
	"github.com/quantbit/upbit-engine/pkg/errors"
)

const dateLayout = "2006-01-02"

// Config holds the simulation parameters of a backtest engine.
type Config struct {
	// InitialBalance is the starting cash of each run, in quote currency.
	InitialBalance float64 `yaml:"initialBalance" validate:"gt=0"`
	// FeeRate is the simulated exchange fee as a fraction of notional.
	FeeRate float64 `yaml:"feeRate" validate:"gte=0"`
	// SlippageRate is the adverse price movement applied to simulated
	// executions, as a fraction of price.
	SlippageRate float64 `yaml:"slippageRate" validate:"gte=0"`
	// MinOrderAmount is the smallest buyable notional; buys below it are
	// skipped.
	MinOrderAmount float64 `yaml:"minOrderAmount" validate:"gte=0"`
}

// RunParams identifies what one backtest run replays.
type RunParams struct {
	Market     string
	StartDate  string
	EndDate    string
	CandleUnit int
	// Progress, when set, is called after every replayed candle.
	Progress func(done, total int)
}

// Engine replays historical candles through a strategy. At most one run is
// in flight per engine instance; a second attempt is rejected immediately
// without touching any state.
type Engine struct {
	store  *market.Store
	config Config
	log    *logger.Logger

	running atomic.Bool

	mu     sync.Mutex
	result optional.Option[types.BacktestResult]
}

// NewEngine creates a backtest engine reading history from the given store.
func NewEngine(store *market.Store, config Config, log *logger.Logger) *Engine {
	return &Engine{
		store:  store,
		config: config,
		log:    log,
		result: optional.None[types.BacktestResult](),
	}
}

// Run replays the candle partitions in the inclusive date range through the
// strategy and returns the resulting metrics. The result is also cached on
// the engine for SaveResults and the API.
func (e *Engine) Run(ctx context.Context, strat strategy.Strategy, params RunParams) (types.BacktestResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		return types.BacktestResult{}, errors.New(errors.ErrCodeBacktestRunning, "a backtest is already running on this engine")
	}
	defer e.running.Store(false)

	start, err := time.ParseInLocation(dateLayout, params.StartDate, time.UTC)
	if err != nil {
		return types.BacktestResult{}, errors.Wrapf(errors.ErrCodeInvalidDateRange, err, "invalid start date %q", params.StartDate)
	}

	end, err := time.ParseInLocation(dateLayout, params.EndDate, time.UTC)
	if err != nil {
		return types.BacktestResult{}, errors.Wrapf(errors.ErrCodeInvalidDateRange, err, "invalid end date %q", params.EndDate)
	}

	if end.Before(start) {
		return types.BacktestResult{}, errors.Newf(errors.ErrCodeInvalidDateRange, "end date %s precedes start date %s", params.EndDate, params.StartDate)
	}

	candles, err := e.loadRange(params.Market, params.CandleUnit, start, end)
	if err != nil {
		return types.BacktestResult{}, err
	}

	if len(candles) == 0 {
		return types.BacktestResult{}, errors.Newf(errors.ErrCodeNoData,
			"no candle data for %s between %s and %s", params.Market, params.StartDate, params.EndDate)
	}

	e.log.Info("starting backtest",
		zap.String("strategy", strat.Name()),
		zap.String("market", params.Market),
		zap.Int("candles", len(candles)))

	portfolio := newPortfolio(e.config.InitialBalance, e.config.FeeRate, e.config.SlippageRate, e.config.MinOrderAmount, start)

	if err := strat.Initialize(&strategy.TradingContext{
		Markets: []string{params.Market},
		Logger:  e.log,
	}); err != nil {
		return types.BacktestResult{}, err
	}

	lastPrices := map[string]float64{}

	// Replay is strictly sequential: each candle's signal depends on the
	// indicator state accumulated from the previous ones.
	for i, candle := range candles {
		if err := ctx.Err(); err != nil {
			return types.BacktestResult{}, err
		}

		lastPrices[params.Market] = candle.Close

		signal := strat.OnData(types.NewCandleEvent(candle))

		switch signal {
		case types.SignalTypeBuy:
			portfolio.Buy(params.Market, candle.Close, candle.Timestamp)
		case types.SignalTypeSell:
			portfolio.Sell(params.Market, candle.Close, candle.Timestamp)
		case types.SignalTypeNone:
		}

		// Every signal marks the curve, even when it executes nothing,
		// so the replay trace shows each decision point.
		if signal != types.SignalTypeNone {
			portfolio.MarkEquity(candle.Timestamp, lastPrices)
		}

		if params.Progress != nil {
			params.Progress(i+1, len(candles))
		}
	}

	last := candles[len(candles)-1]
	portfolio.MarkEquity(last.Timestamp, lastPrices)

	result := e.computeResult(strat.Name(), params, portfolio, candles)

	e.mu.Lock()
	e.result = optional.Some(result)
	e.mu.Unlock()

	e.log.Info("backtest finished",
		zap.String("strategy", strat.Name()),
		zap.Float64("totalReturn", result.TotalReturn),
		zap.Float64("maxDrawdown", result.MaxDrawdown),
		zap.Int("trades", result.TradeCount))

	return result, nil
}

// Result returns the cached result of the last completed run.
func (e *Engine) Result() (types.BacktestResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.result.Take()

	return result, err == nil
}

// SaveResults writes the last completed run's result as JSON. It fails when
// no run has completed yet.
func (e *Engine) SaveResults(path string) error {
	result, ok := e.Result()
	if !ok {
		return errors.New(errors.ErrCodeNoResult, "no backtest result to save")
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeResultIO, "failed to encode backtest result", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(errors.ErrCodeResultIO, err, "failed to write backtest result to %s", path)
	}

	return nil
}

// LoadResults reads a previously saved result and caches it on the engine.
func (e *Engine) LoadResults(path string) (types.BacktestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.BacktestResult{}, errors.Wrapf(errors.ErrCodeResultIO, err, "failed to read backtest result from %s", path)
	}

	var result types.BacktestResult
	if err := json.Unmarshal(data, &result); err != nil {
		return types.BacktestResult{}, errors.Wrapf(errors.ErrCodeResultIO, err, "failed to decode backtest result from %s", path)
	}

	e.mu.Lock()
	e.result = optional.Some(result)
	e.mu.Unlock()

	return result, nil
}

func (e *Engine) loadRange(marketName string, unit int, start, end time.Time) ([]types.Candle, error) {
	var candles []types.Candle

	for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
		daily, err := e.store.LoadCandles(marketName, unit, date.Format(dateLayout))
		if err != nil {
			return nil, err
		}
		candles = append(candles, daily...)
	}

	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})

	return candles, nil
}

func (e *Engine) computeResult(strategyName string, params RunParams, portfolio *Portfolio, candles []types.Candle) types.BacktestResult {
	initial := e.config.InitialBalance
	final := portfolio.EquityCurve[len(portfolio.EquityCurve)-1].Equity

	result := types.BacktestResult{
		Strategy:      strategyName,
		Market:        params.Market,
		StartDate:     params.StartDate,
		EndDate:       params.EndDate,
		InitialEquity: initial,
		FinalEquity:   final,
		TotalReturn:   (final/initial - 1) * 100,
		MaxDrawdown:   maxDrawdown(portfolio.EquityCurve),
		TradeCount:    len(portfolio.Trades),
		EquityCurve:   portfolio.EquityCurve,
		Trades:        portfolio.Trades,
	}

	years := candles[len(candles)-1].Timestamp.Sub(candles[0].Timestamp).Hours() / (24 * 365)
	if years > 0 {
		result.AnnualizedReturn = (math.Pow(final/initial, 1/years) - 1) * 100
	} else {
		result.AnnualizedReturn = result.TotalReturn
	}

	// Each sell is matched against the cumulative gross notional of every
	// prior buy for the same market across the whole run. The running
	// total deliberately never resets, so later round trips compare
	// against everything committed before them.
	buyTotals := map[string]float64{}

	var totalProfit, totalLoss float64

	for _, trade := range portfolio.Trades {
		switch trade.Side {
		case types.OrderSideBuy:
			result.BuyCount++
			buyTotals[trade.Market] += trade.Amount
		case types.OrderSideSell:
			result.SellCount++

			profit := trade.Amount - buyTotals[trade.Market]

			if profit > 0 {
				result.WinningTrades++
				totalProfit += profit
			} else {
				result.LosingTrades++
				totalLoss += -profit
			}
		}
	}

	if settled := result.WinningTrades + result.LosingTrades; settled > 0 {
		result.WinRate = float64(result.WinningTrades) / float64(settled) * 100
	}
	if result.WinningTrades > 0 {
		result.AverageProfit = totalProfit / float64(result.WinningTrades)
	}
	if result.LosingTrades > 0 {
		result.AverageLoss = totalLoss / float64(result.LosingTrades)
	}

	switch {
	case totalLoss > 0:
		result.ProfitFactor = totalProfit / totalLoss
	case totalProfit > 0:
		result.ProfitFactor = math.MaxFloat64
	}

	return result
}

// maxDrawdown returns the largest percentage decline from a running equity
// peak, in percent. It is zero for a non-decreasing curve.
func maxDrawdown(curve []types.EquityPoint) float64 {
	var peak, worst float64

	for _, point := range curve {
		if point.Equity > peak {
			peak = point.Equity
		}
		if peak <= 0 {
			continue
		}

		if dd := (peak - point.Equity) / peak * 100; dd > worst {
			worst = dd
		}
	}

	return worst
}
