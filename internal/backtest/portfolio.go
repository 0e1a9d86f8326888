package backtest

import (
	"time"

	"github.com/quantbit/upbit-engine/internal/types"
)

// cashReserveRatio keeps a slice of cash out of each buy as a cushion
// against fee and slippage rounding.
const cashReserveRatio = 0.99

// Asset is one held position inside a portfolio, tracked at volume-weighted
// average cost.
type Asset struct {
	Quantity float64 `json:"quantity"`
	AvgCost  float64 `json:"avg_cost"`
}

// Portfolio is the simulated account state of one backtest run. It is owned
// exclusively by a single run and rebuilt from scratch for the next one.
type Portfolio struct {
	Cash        float64             `json:"cash"`
	Assets      map[string]*Asset   `json:"assets"`
	Trades      []types.Trade       `json:"trades"`
	EquityCurve []types.EquityPoint `json:"equity_curve"`

	feeRate        float64
	slippageRate   float64
	minOrderAmount float64
}

func newPortfolio(initialBalance, feeRate, slippageRate, minOrderAmount float64, start time.Time) *Portfolio {
	return &Portfolio{
		Cash:   initialBalance,
		Assets: make(map[string]*Asset),
		EquityCurve: []types.EquityPoint{
			{Timestamp: start, Equity: initialBalance},
		},
		feeRate:        feeRate,
		slippageRate:   slippageRate,
		minOrderAmount: minOrderAmount,
	}
}

// Buy commits the reserve-capped share of available cash at the given price
// plus slippage. It reports whether a trade was executed; a buyable
// notional below the minimum order floor is a no-op.
func (p *Portfolio) Buy(market string, price float64, at time.Time) bool {
	available := p.Cash * cashReserveRatio
	if available < p.minOrderAmount {
		return false
	}

	execPrice := price * (1 + p.slippageRate)
	fee := available * p.feeRate
	spent := available - fee
	quantity := spent / execPrice

	asset, ok := p.Assets[market]
	if !ok {
		asset = &Asset{}
		p.Assets[market] = asset
	}

	total := asset.Quantity + quantity
	asset.AvgCost = (asset.Quantity*asset.AvgCost + quantity*execPrice) / total
	asset.Quantity = total

	p.Cash -= spent

	// Amount is the gross notional committed before the fee; the result
	// metrics match sells against these gross values.
	p.Trades = append(p.Trades, types.Trade{
		Side:      types.OrderSideBuy,
		Market:    market,
		Price:     execPrice,
		Quantity:  quantity,
		Amount:    available,
		Fee:       fee,
		Timestamp: at,
	})

	return true
}

// Sell liquidates the entire held quantity at the given price minus
// slippage, crediting the net proceeds. A sell with no open position is a
// no-op.
func (p *Portfolio) Sell(market string, price float64, at time.Time) bool {
	asset, ok := p.Assets[market]
	if !ok || asset.Quantity <= 0 {
		return false
	}

	execPrice := price * (1 - p.slippageRate)
	proceeds := asset.Quantity * execPrice
	fee := proceeds * p.feeRate
	net := proceeds - fee

	p.Cash += net

	p.Trades = append(p.Trades, types.Trade{
		Side:      types.OrderSideSell,
		Market:    market,
		Price:     execPrice,
		Quantity:  asset.Quantity,
		Amount:    proceeds,
		Fee:       fee,
		Timestamp: at,
	})

	asset.Quantity = 0
	asset.AvgCost = 0

	return true
}

// Equity values the portfolio at the given last seen price per market.
func (p *Portfolio) Equity(lastPrices map[string]float64) float64 {
	equity := p.Cash
	for market, asset := range p.Assets {
		equity += asset.Quantity * lastPrices[market]
	}

	return equity
}

// MarkEquity appends an equity curve point valued at the given prices.
func (p *Portfolio) MarkEquity(at time.Time, lastPrices map[string]float64) {
	p.EquityCurve = append(p.EquityCurve, types.EquityPoint{
		Timestamp: at,
		Equity:    p.Equity(lastPrices),
	})
}
