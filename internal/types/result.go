package types

import "time"

// Trade is a single simulated execution recorded during a backtest run.
type Trade struct {
	Side      OrderSide `json:"side"`
	Market    string    `json:"market"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Amount    float64   `json:"amount"`
	Fee       float64   `json:"fee"`
	Timestamp time.Time `json:"timestamp"`
}

// EquityPoint is one sample of the portfolio's total value over time.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// BacktestResult is an immutable snapshot of the metrics of one completed
// backtest run. Percentage fields (returns, drawdown, win rate) are
// expressed in percent, not fractions.
type BacktestResult struct {
	Strategy         string        `json:"strategy"`
	Market           string        `json:"market"`
	StartDate        string        `json:"start_date"`
	EndDate          string        `json:"end_date"`
	InitialEquity    float64       `json:"initial_equity"`
	FinalEquity      float64       `json:"final_equity"`
	TotalReturn      float64       `json:"total_return"`
	AnnualizedReturn float64       `json:"annualized_return"`
	MaxDrawdown      float64       `json:"max_drawdown"`
	TradeCount       int           `json:"trade_count"`
	BuyCount         int           `json:"buy_count"`
	SellCount        int           `json:"sell_count"`
	WinningTrades    int           `json:"winning_trades"`
	LosingTrades     int           `json:"losing_trades"`
	WinRate          float64       `json:"win_rate"`
	AverageProfit    float64       `json:"average_profit"`
	AverageLoss      float64       `json:"average_loss"`
	ProfitFactor     float64       `json:"profit_factor"`
	EquityCurve      []EquityPoint `json:"equity_curve"`
	Trades           []Trade       `json:"trades"`
}
