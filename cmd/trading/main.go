package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/quantbit/upbit-engine/internal/api"
	"github.com/quantbit/upbit-engine/internal/backtest"
	"github.com/quantbit/upbit-engine/internal/config"
	"github.com/quantbit/upbit-engine/internal/exchange"
	"github.com/quantbit/upbit-engine/internal/execution"
	"github.com/quantbit/upbit-engine/internal/logger"
	"github.com/quantbit/upbit-engine/internal/market"
	"github.com/quantbit/upbit-engine/internal/strategy"
	"github.com/quantbit/upbit-engine/internal/types"
	"github.com/quantbit/upbit-engine/internal/version"
	"github.com/quantbit/upbit-engine/pkg/errors"
)

// orderPollInterval is how often live orders are reconciled against the
// exchange.
const orderPollInterval = 10 * time.Second

func tradingAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("print-schema") {
		schema, err := config.JSONSchema()
		if err != nil {
			return err
		}
		fmt.Println(schema)

		return nil
	}

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	if markets := cmd.StringSlice("markets"); len(markets) > 0 {
		cfg.Market.Markets = markets
	}

	if cmd.Bool("live") {
		cfg.Execution.Mode = types.OrderModeLive
		if err := cfg.Validate(); err != nil {
			return err
		}
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

	gateway, err := execution.NewGateway(upbit, cfg.Execution, zl)
	if err != nil {
		return err
	}
	defer func() { _ = gateway.Close() }()

	engine := strategy.NewEngine(store, gateway, cfg.Trading.TradeAmount, cfg.Market.CandleUnit, zl)
	bt := backtest.NewEngine(store, cfg.Backtest, zl)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(cfg.Market.Markets) > 0 {
		store.StartCollection(ctx, cfg.Market.Markets)
		defer store.StopCollection()

		stream := exchange.NewStreamClient(cfg.Upbit.WebsocketURL, zl)
		stream.On("ticker", func(frame []byte) {
			if ticker, err := exchange.ParseTickerFrame(frame); err == nil {
				store.PublishTicker(ticker)
			}
		})

		if err := stream.Connect(ctx, cfg.Market.Markets, []string{"ticker"}); err != nil {
			zl.Warn("websocket stream unavailable, relying on polling", zap.Error(err))
		} else {
			defer stream.Disconnect()
		}
	}

	if cfg.Execution.Mode == types.OrderModeLive {
		go func() {
			ticker := time.NewTicker(orderPollInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := gateway.UpdateActiveOrders(ctx); err != nil {
						zl.Warn("order reconciliation failed", zap.Error(err))
					}
				}
			}
		}()
	}

	if name := cmd.String("strategy"); name != "" {
		if len(cfg.Market.Markets) == 0 {
			return errors.New(errors.ErrCodeInvalidParameter, "activating a strategy requires at least one market")
		}

		if err := engine.Activate(ctx, name, cfg.Market.Markets); err != nil {
			return err
		}
	}

	server := api.NewServer(cfg.API, engine, bt, gateway, store, zl)

	go func() {
		<-ctx.Done()

		engine.DeactivateAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			zl.Warn("server shutdown failed", zap.Error(err))
		}
	}()

	return server.Start()
}

func main() {
	cmd := &cli.Command{
		Name:    "trading",
		Usage:   "Run the trading engine and its HTTP API",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
			},
			&cli.StringSliceFlag{
				Name:    "markets",
				Aliases: []string{"m"},
				Usage:   "Markets to collect data for, overriding the config file",
			},
			&cli.StringFlag{
				Name:    "strategy",
				Aliases: []string{"s"},
				Usage:   "Strategy to activate on the configured markets at startup",
			},
			&cli.BoolFlag{
				Name:  "live",
				Usage: "Submit real orders instead of simulating them",
			},
			&cli.BoolFlag{
				Name:  "print-schema",
				Usage: "Print the configuration file's JSON schema and exit",
			},
		},
		Action: tradingAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("trading engine failed: %v", err)
	}
}
