package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"github.com/quantbit/upbit-engine/internal/backtest"
	"github.com/quantbit/upbit-engine/internal/config"
	"github.com/quantbit/upbit-engine/internal/exchange"
	"github.com/quantbit/upbit-engine/internal/logger"
	"github.com/quantbit/upbit-engine/internal/market"
	"github.com/quantbit/upbit-engine/internal/strategy"
	"github.com/quantbit/upbit-engine/internal/version"
)

func backtestAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	zl, err := logger.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	upbit := exchange.NewUpbitClient(cfg.Upbit, zl)

	store, err := market.NewStore(upbit, cfg.Market.StoreConfig(), market.NewRealClock(), zl)
	if err != nil {
		return err
	}

	engine := strategy.NewEngine(store, nil, cfg.Trading.TradeAmount, cfg.Market.CandleUnit, zl)

	strat, err := engine.Build(cmd.String("strategy"))
	if err != nil {
		return err
	}

	bt := backtest.NewEngine(store, cfg.Backtest, zl)

	var bar *progressbar.ProgressBar

	result, err := bt.Run(ctx, strat, backtest.RunParams{
		Market:     cmd.String("market"),
		StartDate:  cmd.String("start"),
		EndDate:    cmd.String("end"),
		CandleUnit: int(cmd.Int("unit")),
		Progress: func(done, total int) {
			if bar == nil {
				bar = progressbar.Default(int64(total), "replaying")
			}
			_ = bar.Set(done)
		},
	})
	if err != nil {
		return err
	}

	fmt.Printf("\nBacktest %s on %s (%s .. %s)\n", result.Strategy, result.Market, result.StartDate, result.EndDate)
	fmt.Printf("  initial equity    %14.2f\n", result.InitialEquity)
	fmt.Printf("  final equity      %14.2f\n", result.FinalEquity)
	fmt.Printf("  total return      %13.2f%%\n", result.TotalReturn)
	fmt.Printf("  annualized return %13.2f%%\n", result.AnnualizedReturn)
	fmt.Printf("  max drawdown      %13.2f%%\n", result.MaxDrawdown)
	fmt.Printf("  trades            %14d\n", result.TradeCount)
	fmt.Printf("  win rate          %13.2f%%\n", result.WinRate)

	if out := cmd.String("output"); out != "" {
		if err := bt.SaveResults(out); err != nil {
			return err
		}
		fmt.Printf("\nresults written to %s\n", out)
	}

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "backtest",
		Usage:   "Replay persisted candle history through a strategy",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
			},
			&cli.StringFlag{
				Name:     "strategy",
				Aliases:  []string{"s"},
				Usage:    "Strategy name (see the strategies API endpoint)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "market",
				Aliases:  []string{"m"},
				Usage:    "Market to replay, e.g. KRW-BTC",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "start",
				Usage:    "Start date (YYYY-MM-DD, inclusive)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "end",
				Usage:    "End date (YYYY-MM-DD, inclusive)",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "unit",
				Usage: "Candle unit in minutes",
				Value: 1,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the full result JSON to this path",
			},
		},
		Action: backtestAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("backtest failed: %v", err)
	}
}
