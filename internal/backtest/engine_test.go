package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/quantbit/upbit-engine/internal/logger"
	"github.com/quantbit/upbit-engine/internal/market"
	"github.com/quantbit/upbit-engine/internal/strategy"
	"github.com/quantbit/upbit-engine/internal/types"
	"github.com/quantbit/upbit-engine/mocks"
	"github.com/quantbit/upbit-engine/pkg/errors"
)

// scriptedStrategy emits a fixed signal per candle index. Used to drive the
// replay loop deterministically.
type scriptedStrategy struct {
	signals []types.SignalType
	index   int
	onData  func()
}

func (s *scriptedStrategy) Name() string { return "scripted" }

func (s *scriptedStrategy) Initialize(*strategy.TradingContext) error {
	s.index = 0

	return nil
}

func (s *scriptedStrategy) OnData(types.Event) types.SignalType {
	if s.onData != nil {
		s.onData()
	}

	if s.index >= len(s.signals) {
		return types.SignalTypeNone
	}

	signal := s.signals[s.index]
	s.index++

	return signal
}

func (s *scriptedStrategy) OnSignal(context.Context, types.SignalType, types.Event) {}

// EngineTestSuite is the test suite for the backtest engine.
type EngineTestSuite struct {
	suite.Suite
	ctrl   *gomock.Controller
	store  *market.Store
	clock  *market.FakeClock
	engine *Engine
}

// TestEngine runs the test suite.
func TestEngine(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

// SetupTest runs before each test.
func (s *EngineTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.clock = market.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	store, err := market.NewStore(mocks.NewMockExchange(s.ctrl), market.Config{
		DataDir:         s.T().TempDir(),
		KeepDays:        30,
		CollectInterval: time.Minute,
	}, s.clock, logger.NewNopLogger())
	s.Require().NoError(err)
	s.store = store

	s.engine = NewEngine(store, Config{
		InitialBalance: 1_000_000,
		FeeRate:        0.005,
		SlippageRate:   0.001,
		MinOrderAmount: 5000,
	}, logger.NewNopLogger())
}

// TearDownTest runs after each test.
func (s *EngineTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

// persistCandles writes a candle partition for 2025-06-01 with one candle
// per closing price, a minute apart.
func (s *EngineTestSuite) persistCandles(closes ...float64) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]types.Candle, len(closes))
	for i, close := range closes {
		candles[i] = types.Candle{
			Market:    "KRW-BTC",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      close,
			High:      close,
			Low:       close,
			Close:     close,
			Volume:    1,
		}
	}
	s.Require().NoError(s.store.Persist(types.DataTypeCandle, "KRW-BTC", 1, candles))
}

func (s *EngineTestSuite) runParams() RunParams {
	return RunParams{
		Market:     "KRW-BTC",
		StartDate:  "2025-06-01",
		EndDate:    "2025-06-01",
		CandleUnit: 1,
	}
}

func (s *EngineTestSuite) TestEmptyRangeFailsWithNoData() {
	strat := &scriptedStrategy{}

	_, err := s.engine.Run(context.Background(), strat, s.runParams())
	s.Require().Error(err)
	s.Assert().True(errors.HasCode(err, errors.ErrCodeNoData))
}

func (s *EngineTestSuite) TestInvalidDateRangeRejected() {
	strat := &scriptedStrategy{}

	params := s.runParams()
	params.StartDate = "2025-06-02"
	params.EndDate = "2025-06-01"

	_, err := s.engine.Run(context.Background(), strat, params)
	s.Assert().True(errors.HasCode(err, errors.ErrCodeInvalidDateRange))

	params = s.runParams()
	params.StartDate = "not-a-date"

	_, err = s.engine.Run(context.Background(), strat, params)
	s.Assert().True(errors.HasCode(err, errors.ErrCodeInvalidDateRange))
}

func (s *EngineTestSuite) TestProfitableRoundTripMetrics() {
	s.persistCandles(50_000, 60_000, 70_000)
	strat := &scriptedStrategy{signals: []types.SignalType{
		types.SignalTypeBuy, types.SignalTypeNone, types.SignalTypeSell,
	}}

	result, err := s.engine.Run(context.Background(), strat, s.runParams())
	s.Require().NoError(err)

	s.Assert().Equal(2, result.TradeCount)
	s.Assert().Equal(1, result.BuyCount)
	s.Assert().Equal(1, result.SellCount)
	s.Assert().Equal(1, result.WinningTrades)
	s.Assert().Equal(0, result.LosingTrades)
	s.Assert().InDelta(100, result.WinRate, 1e-9)
	s.Assert().Greater(result.TotalReturn, 0.0)
	s.Assert().Greater(result.FinalEquity, result.InitialEquity)
	// No losing trades with a profit leaves the profit factor saturated.
	s.Assert().Greater(result.ProfitFactor, 1e300)
}

func (s *EngineTestSuite) TestLosingRunComputesDrawdown() {
	s.persistCandles(50_000, 40_000, 30_000)
	strat := &scriptedStrategy{signals: []types.SignalType{
		types.SignalTypeBuy, types.SignalTypeNone, types.SignalTypeSell,
	}}

	result, err := s.engine.Run(context.Background(), strat, s.runParams())
	s.Require().NoError(err)

	s.Assert().Equal(1, result.LosingTrades)
	s.Assert().Less(result.TotalReturn, 0.0)
	s.Assert().Greater(result.MaxDrawdown, 0.0)
	s.Assert().InDelta(0, result.ProfitFactor, 1e-9)
}

func (s *EngineTestSuite) TestSellWithoutPositionLeavesPortfolioUntouched() {
	s.persistCandles(50_000, 60_000)
	strat := &scriptedStrategy{signals: []types.SignalType{
		types.SignalTypeSell, types.SignalTypeNone,
	}}

	result, err := s.engine.Run(context.Background(), strat, s.runParams())
	s.Require().NoError(err)

	s.Assert().Equal(0, result.TradeCount)
	s.Assert().InDelta(result.InitialEquity, result.FinalEquity, 1e-9)
	// The no-op sell still marks the curve: start, signal, final.
	s.Assert().Len(result.EquityCurve, 3)
}

func (s *EngineTestSuite) TestSellsMatchedAgainstAllPriorBuys() {
	// Zero fee and slippage so the numbers stay exact.
	engine := NewEngine(s.store, Config{
		InitialBalance: 1_000_000,
		MinOrderAmount: 5000,
	}, logger.NewNopLogger())

	s.persistCandles(100, 110, 100, 110)
	strat := &scriptedStrategy{signals: []types.SignalType{
		types.SignalTypeBuy, types.SignalTypeSell,
		types.SignalTypeBuy, types.SignalTypeSell,
	}}

	result, err := engine.Run(context.Background(), strat, s.runParams())
	s.Require().NoError(err)

	// First round trip: buy 990,000 at 100, sell 9,900 units at 110 for
	// 1,089,000, a 99,000 win. Second: buy 1,088,010, sell for 1,196,811;
	// matched against the 2,078,010 committed across both buys, a loss.
	s.Assert().Equal(2, result.BuyCount)
	s.Assert().Equal(2, result.SellCount)
	s.Assert().Equal(1, result.WinningTrades)
	s.Assert().Equal(1, result.LosingTrades)
	s.Assert().InDelta(50, result.WinRate, 1e-9)
	s.Assert().InDelta(99_000, result.AverageProfit, 1e-6)
	s.Assert().InDelta(881_199, result.AverageLoss, 1e-6)
	s.Assert().InDelta(99_000.0/881_199.0, result.ProfitFactor, 1e-9)
}

func (s *EngineTestSuite) TestCandlesReplayedInTimestampOrder() {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	// Persist out of order; the engine must sort before replay.
	candles := []types.Candle{
		{Market: "KRW-BTC", Timestamp: base.Add(2 * time.Minute), Close: 3},
		{Market: "KRW-BTC", Timestamp: base, Close: 1},
		{Market: "KRW-BTC", Timestamp: base.Add(time.Minute), Close: 2},
	}
	s.Require().NoError(s.store.Persist(types.DataTypeCandle, "KRW-BTC", 1, candles))

	var seen []float64
	recorder := &recordingStrategy{closes: &seen}

	_, err := s.engine.Run(context.Background(), recorder, s.runParams())
	s.Require().NoError(err)
	s.Assert().Equal([]float64{1, 2, 3}, seen)
}

func (s *EngineTestSuite) TestSecondConcurrentRunRejected() {
	s.persistCandles(50_000, 60_000)

	var nested error
	strat := &scriptedStrategy{}
	strat.onData = func() {
		if nested == nil {
			_, nested = s.engine.Run(context.Background(), &scriptedStrategy{}, s.runParams())
		}
	}

	_, err := s.engine.Run(context.Background(), strat, s.runParams())
	s.Require().NoError(err)
	s.Require().Error(nested)
	s.Assert().True(errors.HasCode(nested, errors.ErrCodeBacktestRunning))
}

func (s *EngineTestSuite) TestGuardReleasedAfterFailure() {
	strat := &scriptedStrategy{}

	_, err := s.engine.Run(context.Background(), strat, s.runParams())
	s.Require().Error(err)

	// A failed run must not leave the engine busy.
	s.persistCandles(50_000, 60_000)
	_, err = s.engine.Run(context.Background(), strat, s.runParams())
	s.Assert().NoError(err)
}

func (s *EngineTestSuite) TestSaveAndLoadResultsRoundTrip() {
	s.persistCandles(50_000, 60_000, 70_000)
	strat := &scriptedStrategy{signals: []types.SignalType{
		types.SignalTypeBuy, types.SignalTypeNone, types.SignalTypeSell,
	}}

	result, err := s.engine.Run(context.Background(), strat, s.runParams())
	s.Require().NoError(err)

	path := s.T().TempDir() + "/result.json"
	s.Require().NoError(s.engine.SaveResults(path))

	loaded, err := s.engine.LoadResults(path)
	s.Require().NoError(err)
	s.Assert().Equal(result, loaded)
}

func (s *EngineTestSuite) TestSaveWithoutRunFails() {
	err := s.engine.SaveResults(s.T().TempDir() + "/result.json")
	s.Require().Error(err)
	s.Assert().True(errors.HasCode(err, errors.ErrCodeNoResult))
}

func (s *EngineTestSuite) TestProgressCallback() {
	s.persistCandles(50_000, 60_000, 70_000)
	strat := &scriptedStrategy{}

	var calls []int
	params := s.runParams()
	params.Progress = func(done, total int) {
		s.Assert().Equal(3, total)
		calls = append(calls, done)
	}

	_, err := s.engine.Run(context.Background(), strat, params)
	s.Require().NoError(err)
	s.Assert().Equal([]int{1, 2, 3}, calls)
}

// recordingStrategy records the closing price of every candle it sees.
type recordingStrategy struct {
	closes *[]float64
}

func (r *recordingStrategy) Name() string { return "recording" }

func (r *recordingStrategy) Initialize(*strategy.TradingContext) error { return nil }

func (r *recordingStrategy) OnData(event types.Event) types.SignalType {
	if candle, err := event.Candle.Take(); err == nil {
		*r.closes = append(*r.closes, candle.Close)
	}

	return types.SignalTypeNone
}

func (r *recordingStrategy) OnSignal(context.Context, types.SignalType, types.Event) {}
