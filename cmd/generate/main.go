package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/quantbit/upbit-engine/internal/config"
	"github.com/quantbit/upbit-engine/internal/logger"
	"github.com/quantbit/upbit-engine/internal/market"
	"github.com/quantbit/upbit-engine/internal/types"
	"github.com/quantbit/upbit-engine/internal/version"
	"github.com/quantbit/upbit-engine/mocks"
)

// generateAction writes a synthetic candle series into the store's partition
// layout so strategies can be backtested without collecting live data first.
func generateAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	if dir := cmd.String("data-dir"); dir != "" {
		cfg.Market.DataDir = dir
	}

	start, err := time.ParseInLocation("2006-01-02", cmd.String("start"), time.Local)
	if err != nil {
		return fmt.Errorf("invalid start date %q: %w", cmd.String("start"), err)
	}

	zl, err := logger.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	unit := int(cmd.Int("unit"))
	candles := mocks.GenerateCandles(mocks.CandleGeneratorConfig{
		Market:       cmd.String("market"),
		Start:        start,
		Count:        int(cmd.Int("count")),
		UnitMinutes:  unit,
		InitialPrice: cmd.Float("price"),
		Volatility:   cmd.Float("volatility"),
		Trend:        cmd.Float("trend"),
		Seed:         cmd.Int("seed"),
	})

	// Partitions are keyed by the store clock's date, so drive a fake
	// clock to each day covered by the series.
	clock := market.NewFakeClock(start)

	store, err := market.NewStore(nil, cfg.Market.StoreConfig(), clock, zl)
	if err != nil {
		return err
	}

	byDay := make(map[string][]types.Candle)
	for _, c := range candles {
		byDay[c.Timestamp.Format("2006-01-02")] = append(byDay[c.Timestamp.Format("2006-01-02")], c)
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	for _, day := range days {
		dayStart, err := time.ParseInLocation("2006-01-02", day, time.Local)
		if err != nil {
			return err
		}
		clock.Advance(dayStart.Sub(clock.Now()))

		if err := store.Persist(types.DataTypeCandle, cmd.String("market"), unit, byDay[day]); err != nil {
			return err
		}
	}

	fmt.Printf("wrote %d candles for %s across %d day(s) under %s\n",
		len(candles), cmd.String("market"), len(days), cfg.Market.DataDir)

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "generate",
		Usage:   "Generate synthetic candle data for backtesting",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
			},
			&cli.StringFlag{
				Name:  "data-dir",
				Usage: "Override the data directory from the configuration",
			},
			&cli.StringFlag{
				Name:     "market",
				Aliases:  []string{"m"},
				Usage:    "Market code to generate, e.g. KRW-BTC",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "start",
				Usage:    "Date of the first candle (YYYY-MM-DD)",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "count",
				Usage: "Number of candles to generate",
				Value: 1440,
			},
			&cli.IntFlag{
				Name:  "unit",
				Usage: "Candle unit in minutes",
				Value: 1,
			},
			&cli.FloatFlag{
				Name:  "price",
				Usage: "Initial price the random walk starts from",
				Value: 50_000,
			},
			&cli.FloatFlag{
				Name:  "volatility",
				Usage: "Maximum fractional price change per candle",
				Value: 0.01,
			},
			&cli.FloatFlag{
				Name:  "trend",
				Usage: "Fractional drift added to every candle",
			},
			&cli.IntFlag{
				Name:  "seed",
				Usage: "Random seed; identical seeds reproduce the series",
			},
		},
		Action: generateAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("generate failed: %v", err)
	}
}
