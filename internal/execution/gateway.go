package execution

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantbit/upbit-engine/internal/exchange"
	"github.com/quantbit/upbit-engine/internal/logger"
	"github.com/quantbit/upbit-engine/internal/types"
	"github.com/quantbit/upbit-engine/pkg/errors"
)

// volumePrecision is the number of decimal places order volumes are rounded
// to before submission.
const volumePrecision = 8

// Config holds the gateway's tunables.
type Config struct {
	// Mode selects live or simulated order handling.
	Mode types.OrderMode `yaml:"mode" validate:"required,oneof=live simulated"`
	// DefaultOrderAmount is the notional used for buys whose caller
	// passes no amount, in quote currency.
	DefaultOrderAmount float64 `yaml:"defaultOrderAmount" validate:"gt=0"`
	// MaxOrderAmount is the notional cap applied to buys, in quote
	// currency.
	MaxOrderAmount float64 `yaml:"maxOrderAmount" validate:"gt=0"`
	// FeeRate is the exchange fee as a fraction of notional.
	FeeRate float64 `yaml:"feeRate" validate:"gte=0"`
	// HistoryPath is the duckdb file for the order history. Empty keeps
	// it in memory.
	HistoryPath string `yaml:"historyPath"`
}

// Gateway turns buy and sell requests into orders. In live mode it
// delegates to the exchange; in simulated mode it synthesizes local orders
// without any network call. Every request, including failed ones, lands in
// the history store.
type Gateway struct {
	exchange exchange.Exchange
	config   Config
	history  *HistoryStore
	log      *logger.Logger

	mu     sync.Mutex
	active map[string]types.Order
	// holdings tracks simulated base currency positions per market.
	holdings map[string]float64
}

// NewGateway creates a Gateway with its history store.
func NewGateway(ex exchange.Exchange, config Config, log *logger.Logger) (*Gateway, error) {
	history, err := NewHistoryStore(config.HistoryPath)
	if err != nil {
		return nil, err
	}

	return &Gateway{
		exchange: ex,
		config:   config,
		history:  history,
		log:      log,
		active:   make(map[string]types.Order),
		holdings: make(map[string]float64),
	}, nil
}

// Close releases the history store.
func (g *Gateway) Close() error {
	return g.history.Close()
}

// Buy submits a buy order for the given quote currency notional. A zero
// amount falls back to the configured default. The notional is clamped to
// the configured maximum and the fee is deducted before sizing the volume.
func (g *Gateway) Buy(ctx context.Context, market string, price float64, amount float64, reason string) (types.Order, error) {
	if price <= 0 {
		return types.Order{}, errors.Newf(errors.ErrCodeInvalidParameter, "invalid buy price %f for %s", price, market)
	}

	if amount == 0 {
		amount = g.config.DefaultOrderAmount
	}
	if amount <= 0 {
		return types.Order{}, errors.Newf(errors.ErrCodeInvalidParameter, "invalid buy amount %f for %s", amount, market)
	}

	if amount > g.config.MaxOrderAmount {
		g.log.Warn("buy amount clamped to maximum",
			zap.String("market", market),
			zap.Float64("requested", amount),
			zap.Float64("maximum", g.config.MaxOrderAmount))
		amount = g.config.MaxOrderAmount
	}

	fee := amount * g.config.FeeRate
	volume := roundVolume((amount - fee) / price)

	order := types.Order{
		Market:    market,
		Side:      types.OrderSideBuy,
		Price:     price,
		Volume:    volume,
		Amount:    amount,
		Mode:      g.config.Mode,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}

	return g.submit(ctx, order)
}

// Sell submits a sell order for the given base currency volume. There is no
// notional clamp; the caller decides the volume, typically the full held
// balance.
func (g *Gateway) Sell(ctx context.Context, market string, price float64, volume float64, reason string) (types.Order, error) {
	if price <= 0 {
		return types.Order{}, errors.Newf(errors.ErrCodeInvalidParameter, "invalid sell price %f for %s", price, market)
	}
	if volume <= 0 {
		return types.Order{}, errors.Newf(errors.ErrCodeInvalidParameter, "invalid sell volume %f for %s", volume, market)
	}

	volume = roundVolume(volume)

	order := types.Order{
		Market:    market,
		Side:      types.OrderSideSell,
		Price:     price,
		Volume:    volume,
		Amount:    price * volume,
		Mode:      g.config.Mode,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}

	return g.submit(ctx, order)
}

func (g *Gateway) submit(ctx context.Context, order types.Order) (types.Order, error) {
	if g.config.Mode == types.OrderModeSimulated {
		order.ID = "sim-" + uuid.New().String()
		order.Status = types.OrderStatusSimulated

		if err := order.Validate(); err != nil {
			return types.Order{}, err
		}

		if err := g.history.Append(order); err != nil {
			return types.Order{}, err
		}

		g.applyHolding(order)

		g.log.Info("order simulated",
			zap.String("id", order.ID),
			zap.String("market", order.Market),
			zap.String("side", string(order.Side)),
			zap.Float64("price", order.Price),
			zap.Float64("volume", order.Volume))

		return order, nil
	}

	side := exchange.SideBid
	if order.Side == types.OrderSideSell {
		side = exchange.SideAsk
	}

	placed, err := g.exchange.CreateOrder(ctx, order.Market, side, order.Volume, order.Price, exchange.OrderTypeLimit)
	if err != nil {
		order.ID = "failed-" + uuid.New().String()
		order.Status = types.OrderStatusFailed
		order.Error = err.Error()

		if histErr := g.history.Append(order); histErr != nil {
			g.log.Error("failed to record failed order", zap.Error(histErr))
		}

		return types.Order{}, errors.Wrapf(errors.ErrCodeOrderFailed, err, "%s order for %s rejected", order.Side, order.Market)
	}

	order.ID = placed.ID
	order.Status = types.OrderStatusSubmitted

	if err := order.Validate(); err != nil {
		return types.Order{}, err
	}

	if err := g.history.Append(order); err != nil {
		return types.Order{}, err
	}

	g.mu.Lock()
	g.active[order.ID] = order
	g.mu.Unlock()

	g.log.Info("order submitted",
		zap.String("id", order.ID),
		zap.String("market", order.Market),
		zap.String("side", string(order.Side)),
		zap.Float64("price", order.Price),
		zap.Float64("volume", order.Volume))

	return order, nil
}

// CancelOrder cancels an order. Live mode cancels on the exchange and drops
// the order from the active set; simulated mode only rewrites the history.
// Either mode updates every history record sharing the id.
func (g *Gateway) CancelOrder(ctx context.Context, id string) error {
	if g.config.Mode == types.OrderModeLive {
		if err := g.exchange.CancelOrder(ctx, id); err != nil {
			return err
		}

		g.mu.Lock()
		delete(g.active, id)
		g.mu.Unlock()
	}

	affected, err := g.history.UpdateStatus(id, types.OrderStatusCancelled)
	if err != nil {
		return err
	}
	if affected == 0 && g.config.Mode == types.OrderModeSimulated {
		return errors.Newf(errors.ErrCodeOrderNotFound, "order %s not found", id)
	}

	g.log.Info("order cancelled", zap.String("id", id))

	return nil
}

// GetOrderStatus returns the current view of an order. Live mode asks the
// exchange; simulated mode reads the history.
func (g *Gateway) GetOrderStatus(ctx context.Context, id string) (types.Order, error) {
	if g.config.Mode == types.OrderModeSimulated {
		return g.history.Latest(id)
	}

	placed, err := g.exchange.GetOrder(ctx, id)
	if err != nil {
		return types.Order{}, err
	}

	g.mu.Lock()
	known, tracked := g.active[id]
	g.mu.Unlock()

	order := types.Order{
		ID:        placed.ID,
		Market:    placed.Market,
		Side:      sideFromExchange(placed.Side),
		Price:     placed.Price,
		Volume:    placed.Volume,
		Mode:      types.OrderModeLive,
		Status:    statusFromState(placed.State),
		CreatedAt: placed.CreatedAt,
	}
	if tracked {
		order.Reason = known.Reason
		order.Amount = known.Amount
	}

	return order, nil
}

// GetOrderHistory returns up to limit history records, newest first.
func (g *Gateway) GetOrderHistory(limit int) ([]types.Order, error) {
	return g.history.List(limit)
}

// GetActiveOrders returns the currently open live orders.
func (g *Gateway) GetActiveOrders() []types.Order {
	g.mu.Lock()
	defer g.mu.Unlock()

	orders := make([]types.Order, 0, len(g.active))
	for _, order := range g.active {
		orders = append(orders, order)
	}

	return orders
}

// UpdateActiveOrders polls each active order and moves the ones the
// exchange reports as terminal out of the active set, rewriting their
// history status. No-op in simulated mode or with no active orders.
func (g *Gateway) UpdateActiveOrders(ctx context.Context) error {
	if g.config.Mode != types.OrderModeLive {
		return nil
	}

	for _, order := range g.GetActiveOrders() {
		placed, err := g.exchange.GetOrder(ctx, order.ID)
		if err != nil {
			g.log.Warn("failed to poll order",
				zap.String("id", order.ID),
				zap.Error(err))

			continue
		}

		status := statusFromState(placed.State)
		if !status.IsTerminal() {
			continue
		}

		if _, err := g.history.UpdateStatus(order.ID, status); err != nil {
			return err
		}

		g.mu.Lock()
		delete(g.active, order.ID)
		g.mu.Unlock()

		g.log.Info("order settled",
			zap.String("id", order.ID),
			zap.String("status", string(status)))
	}

	return nil
}

// HeldVolume reports the base currency volume held for a market. Live mode
// reads the exchange accounts; simulated mode tracks positions locally.
func (g *Gateway) HeldVolume(ctx context.Context, market string) (float64, error) {
	if g.config.Mode == types.OrderModeSimulated {
		g.mu.Lock()
		defer g.mu.Unlock()

		return g.holdings[market], nil
	}

	currency := baseCurrency(market)

	accounts, err := g.exchange.GetAccounts(ctx)
	if err != nil {
		return 0, err
	}

	for _, account := range accounts {
		if account.Currency == currency {
			return account.Balance, nil
		}
	}

	return 0, nil
}

func (g *Gateway) applyHolding(order types.Order) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch order.Side {
	case types.OrderSideBuy:
		g.holdings[order.Market] += order.Volume
	case types.OrderSideSell:
		held := g.holdings[order.Market] - order.Volume
		if held < 0 {
			held = 0
		}
		g.holdings[order.Market] = held
	}
}

func roundVolume(volume float64) float64 {
	rounded, _ := decimal.NewFromFloat(volume).Round(volumePrecision).Float64()

	return rounded
}

func sideFromExchange(side exchange.Side) types.OrderSide {
	if side == exchange.SideAsk {
		return types.OrderSideSell
	}

	return types.OrderSideBuy
}

func statusFromState(state exchange.OrderState) types.OrderStatus {
	switch state {
	case exchange.OrderStateDone:
		return types.OrderStatusFilled
	case exchange.OrderStateCancel:
		return types.OrderStatusCancelled
	case exchange.OrderStateWait:
		return types.OrderStatusSubmitted
	default:
		return types.OrderStatusSubmitted
	}
}

// baseCurrency extracts the base currency from a market code like KRW-BTC.
func baseCurrency(market string) string {
	parts := strings.SplitN(market, "-", 2)
	if len(parts) == 2 {
		return parts[1]
	}

	return market
}
