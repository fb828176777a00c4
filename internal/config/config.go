// Package config loads the run configuration from YAML. Every field has a
// working default; a missing file yields the default config rather than an
// error, so `fearproto signal` works out of the box.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fearproto/fearproto/internal/strategy"
)

// Duration accepts human-readable YAML durations ("30m", "1h").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts back to the standard type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full application configuration.
type Config struct {
	Symbol   string         `yaml:"symbol"`
	Strategy StrategyConfig `yaml:"strategy"`
	Data     DataConfig     `yaml:"data"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Live     LiveConfig     `yaml:"live"`
	Backtest BacktestConfig `yaml:"backtest"`
	Store    StoreConfig    `yaml:"store"`
	Log      LogConfig      `yaml:"log"`
}

// StrategyConfig names the strategy and its flat parameter overrides.
type StrategyConfig struct {
	Name   string          `yaml:"name"`
	Params strategy.Params `yaml:"params"`
}

// DataConfig configures providers and the cache tiers.
type DataConfig struct {
	FearGreedURL string   `yaml:"fear_greed_url"`
	PriceURL     string   `yaml:"price_url"`
	Timeout      Duration `yaml:"timeout"`
	CacheDir     string   `yaml:"cache_dir"`
	// RedisAddr, when set, adds a redis tier in front of the file cache.
	RedisAddr string `yaml:"redis_addr"`
	// PersistentCache keeps cached payloads across runs.
	PersistentCache bool `yaml:"persistent_cache"`
}

// ExchangeConfig configures the order-executor adapter.
type ExchangeConfig struct {
	// Adapter is "paper", "live", or "mock" for dry runs. Backtests always
	// use the deterministic fill simulator regardless of this setting.
	Adapter   string   `yaml:"adapter"`
	BaseURL   string   `yaml:"base_url"`
	APIKeyEnv string   `yaml:"api_key_env"`
	FeeRate   float64  `yaml:"fee_rate"`
	Timeout   Duration `yaml:"timeout"`
	PaperFile string   `yaml:"paper_file"`
	PaperCash float64  `yaml:"paper_cash"`
}

// LiveConfig configures the scheduled loop.
type LiveConfig struct {
	Interval      Duration `yaml:"interval"`
	StateFile     string   `yaml:"state_file"`
	TelemetryAddr string   `yaml:"telemetry_addr"`
}

// BacktestConfig configures historical replay.
type BacktestConfig struct {
	Start          string  `yaml:"start"`
	End            string  `yaml:"end"`
	InitialCapital float64 `yaml:"initial_capital"`
	FeeRate        float64 `yaml:"fee_rate"`
	SlippageRate   float64 `yaml:"slippage_rate"`
	PeriodsPerYear int     `yaml:"periods_per_year"`
	KellyCap       float64 `yaml:"kelly_cap"`
	RiskFree       float64 `yaml:"risk_free"`
}

// StoreConfig configures optional result persistence.
type StoreConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

// LogConfig controls output verbosity and format.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns a config that runs without any file present.
func Default() Config {
	return Config{
		Symbol: "BTCUSDT",
		Strategy: StrategyConfig{
			Name: strategy.NameFearGreedDCA,
		},
		Data: DataConfig{
			Timeout:  Duration(10 * time.Second),
			CacheDir: ".fearproto-cache",
		},
		Exchange: ExchangeConfig{
			Adapter:   "paper",
			FeeRate:   0.001,
			Timeout:   Duration(15 * time.Second),
			PaperFile: ".fearproto-paper.json",
			PaperCash: 10000,
		},
		Live: LiveConfig{
			Interval:      Duration(time.Hour),
			StateFile:     ".fearproto-state.json",
			TelemetryAddr: ":9109",
		},
		Backtest: BacktestConfig{
			InitialCapital: 10000,
			FeeRate:        0.001,
			SlippageRate:   0.0005,
			PeriodsPerYear: 365,
			KellyCap:       1.0,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the YAML file over the defaults. A missing file is not an
// error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings no component could run with.
func (c Config) Validate() error {
	if !strategy.Known(c.Strategy.Name) {
		return fmt.Errorf("unknown strategy %q", c.Strategy.Name)
	}
	switch c.Exchange.Adapter {
	case "paper", "live", "mock":
	default:
		return fmt.Errorf("unknown exchange adapter %q", c.Exchange.Adapter)
	}
	if c.Live.Interval.Std() < time.Minute {
		return fmt.Errorf("live interval %s below one minute", c.Live.Interval.Std())
	}
	return nil
}
