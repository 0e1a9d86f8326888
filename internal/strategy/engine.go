package strategy

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/quantbit/upbit-engine/internal/logger"
	"github.com/quantbit/upbit-engine/internal/market"
	"github.com/quantbit/upbit-engine/internal/types"
	"github.com/quantbit/upbit-engine/pkg/errors"
)

// Factory builds a fresh strategy instance with its default parameters.
type Factory func() Strategy

// Engine owns the live strategy lifecycle: a registry of available
// strategies and the set of currently active ones, each fed by candle
// subscriptions on the market data store.
type Engine struct {
	store       *market.Store
	executor    Executor
	log         *logger.Logger
	tradeAmount float64
	candleUnit  int

	mu        sync.Mutex
	factories map[string]Factory
	active    map[string]*activeStrategy
}

type activeStrategy struct {
	strategy      Strategy
	markets       []string
	subscriptions []*market.Subscription
}

// NewEngine creates an Engine with the built-in strategies registered.
func NewEngine(store *market.Store, executor Executor, tradeAmount float64, candleUnit int, log *logger.Logger) *Engine {
	e := &Engine{
		store:       store,
		executor:    executor,
		log:         log,
		tradeAmount: tradeAmount,
		candleUnit:  candleUnit,
		factories:   make(map[string]Factory),
		active:      make(map[string]*activeStrategy),
	}

	e.Register(MovingAverageCross, func() Strategy { return NewMACross(0, 0) })
	e.Register(RSIReversal, func() Strategy { return NewRSIStrategy(0, 0, 0) })

	return e
}

// Register adds a strategy factory under its name.
func (e *Engine) Register(name string, factory Factory) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.factories[name] = factory
}

// Build returns a fresh, uninitialized instance of the named strategy.
// Backtests use it to get private state untouched by live trading.
func (e *Engine) Build(name string) (Strategy, error) {
	e.mu.Lock()
	factory, ok := e.factories[name]
	e.mu.Unlock()

	if !ok {
		return nil, errors.Newf(errors.ErrCodeInvalidStrategy, "unknown strategy %q", name)
	}

	return factory(), nil
}

// Available lists the registered strategy names, sorted.
func (e *Engine) Available() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	names := make([]string, 0, len(e.factories))
	for name := range e.factories {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Active lists the names of currently active strategies, sorted.
func (e *Engine) Active() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	names := make([]string, 0, len(e.active))
	for name := range e.active {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// ActiveMarkets returns the markets an active strategy runs on, or nil when
// the strategy is not active.
func (e *Engine) ActiveMarkets(name string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if entry, ok := e.active[name]; ok {
		return append([]string(nil), entry.markets...)
	}

	return nil
}

// Activate instantiates the named strategy, initializes it for the given
// markets and subscribes it to their candle feeds. Activating an already
// active strategy restarts it with fresh state.
func (e *Engine) Activate(ctx context.Context, name string, markets []string) error {
	if len(markets) == 0 {
		return errors.New(errors.ErrCodeInvalidParameter, "at least one market is required")
	}

	e.mu.Lock()
	factory, ok := e.factories[name]
	e.mu.Unlock()

	if !ok {
		return errors.Newf(errors.ErrCodeInvalidStrategy, "unknown strategy %q", name)
	}

	_ = e.Deactivate(name)

	strat := factory()
	if err := strat.Initialize(&TradingContext{
		Markets:     markets,
		Executor:    e.executor,
		TradeAmount: e.tradeAmount,
		Logger:      e.log,
	}); err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidStrategy, err, "failed to initialize strategy %q", name)
	}

	entry := &activeStrategy{strategy: strat, markets: append([]string(nil), markets...)}

	for _, m := range markets {
		sub := e.store.SubscribeCandles(m, e.candleUnit, func(event types.Event) {
			e.dispatch(ctx, strat, event)
		})
		entry.subscriptions = append(entry.subscriptions, sub)
	}

	e.mu.Lock()
	e.active[name] = entry
	e.mu.Unlock()

	e.log.Info("strategy activated",
		zap.String("strategy", name),
		zap.Strings("markets", markets))

	return nil
}

// Deactivate unsubscribes and removes an active strategy. It returns an
// error when the strategy is not active.
func (e *Engine) Deactivate(name string) error {
	e.mu.Lock()
	entry, ok := e.active[name]
	delete(e.active, name)
	e.mu.Unlock()

	if !ok {
		return errors.Newf(errors.ErrCodeInvalidStrategy, "strategy %q is not active", name)
	}

	for _, sub := range entry.subscriptions {
		sub.Unsubscribe()
	}

	e.log.Info("strategy deactivated", zap.String("strategy", name))

	return nil
}

// DeactivateAll removes every active strategy.
func (e *Engine) DeactivateAll() {
	for _, name := range e.Active() {
		_ = e.Deactivate(name)
	}
}

func (e *Engine) dispatch(ctx context.Context, strat Strategy, event types.Event) {
	if signal := strat.OnData(event); signal != types.SignalTypeNone {
		strat.OnSignal(ctx, signal, event)
	}
}
