// Package config loads and validates the engine's YAML configuration.
package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/quantbit/upbit-engine/internal/api"
	"github.com/quantbit/upbit-engine/internal/backtest"
	"github.com/quantbit/upbit-engine/internal/exchange"
	"github.com/quantbit/upbit-engine/internal/execution"
	"github.com/quantbit/upbit-engine/internal/market"
	"github.com/quantbit/upbit-engine/internal/types"
	"github.com/quantbit/upbit-engine/pkg/errors"
)

// MarketConfig is the file-level market data section. The collection
// interval is expressed in seconds so the file stays plain YAML scalars.
type MarketConfig struct {
	DataDir                string   `yaml:"dataDir" json:"dataDir" validate:"required"`
	KeepDays               int      `yaml:"keepDays" json:"keepDays" validate:"gte=1"`
	CollectIntervalSeconds int      `yaml:"collectIntervalSeconds" json:"collectIntervalSeconds" validate:"gte=1"`
	Markets                []string `yaml:"markets" json:"markets"`
	CandleUnit             int      `yaml:"candleUnit" json:"candleUnit" validate:"gte=1"`
}

// StoreConfig converts the file section into the store's runtime config.
func (m MarketConfig) StoreConfig() market.Config {
	return market.Config{
		DataDir:         m.DataDir,
		KeepDays:        m.KeepDays,
		CollectInterval: time.Duration(m.CollectIntervalSeconds) * time.Second,
	}
}

// TradingConfig is the live trading section.
type TradingConfig struct {
	// TradeAmount is the quote currency notional committed per buy
	// signal.
	TradeAmount float64 `yaml:"tradeAmount" json:"tradeAmount" validate:"gt=0"`
}

// Config is the full engine configuration.
type Config struct {
	Upbit     exchange.UpbitConfig `yaml:"upbit" json:"upbit"`
	Market    MarketConfig         `yaml:"market" json:"market"`
	Execution execution.Config     `yaml:"execution" json:"execution"`
	Backtest  backtest.Config      `yaml:"backtest" json:"backtest"`
	API       api.Config           `yaml:"api" json:"api"`
	Trading   TradingConfig        `yaml:"trading" json:"trading"`
}

// Default returns a configuration with every field at its default value.
// Live trading is off: the execution mode defaults to simulated.
func Default() Config {
	return Config{
		Market: MarketConfig{
			DataDir:                "data",
			KeepDays:               30,
			CollectIntervalSeconds: 60,
			CandleUnit:             1,
		},
		Execution: execution.Config{
			Mode:               types.OrderModeSimulated,
			DefaultOrderAmount: 10_000,
			MaxOrderAmount:     100_000,
			FeeRate:            0.0005,
		},
		Backtest: backtest.Config{
			InitialBalance: 1_000_000,
			FeeRate:        0.0005,
			SlippageRate:   0.001,
			MinOrderAmount: 5_000,
		},
		API: api.Config{
			Addr:    ":8080",
			DataDir: "data",
		},
		Trading: TradingConfig{
			TradeAmount: 10_000,
		},
	}
}

// Load reads, merges and validates a YAML configuration file on top of the
// defaults. An empty path returns the defaults as-is.
func Load(path string) (Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config file %s", path)
		}

		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to parse config file %s", path)
		}
	}

	config.API.DataDir = config.Market.DataDir

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// Validate checks the configuration against its validation tags. Live mode
// additionally requires exchange credentials.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid configuration", err)
	}

	if c.Execution.Mode == types.OrderModeLive && (c.Upbit.AccessKey == "" || c.Upbit.SecretKey == "") {
		return errors.New(errors.ErrCodeInvalidConfiguration, "live execution mode requires upbit access and secret keys")
	}

	return nil
}

// JSONSchema renders the configuration's JSON schema, for documentation and
// editor tooling.
func JSONSchema() (string, error) {
	reflector := new(jsonschema.Reflector)
	reflector.DoNotReference = true
	schema := reflector.Reflect(Config{})

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to render config schema", err)
	}

	return string(data), nil
}
