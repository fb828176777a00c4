package main

import (
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/fearproto/fearproto/internal/config"
	"github.com/fearproto/fearproto/internal/dataprov"
	"github.com/fearproto/fearproto/internal/exchange"
	"github.com/fearproto/fearproto/internal/strategy"
)

// loadConfig resolves the config file and applies flag overrides shared
// across commands.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if name, _ := cmd.Flags().GetString("strategy"); name != "" {
		cfg.Strategy.Name = name
	}
	return cfg, nil
}

// buildStrategy constructs the configured strategy through the closed
// factory.
func buildStrategy(cfg config.Config) (strategy.Strategy, error) {
	return strategy.New(cfg.Strategy.Name, cfg.Strategy.Params)
}

// buildData wires providers and the cache tiers from config.
func buildData(cfg config.Config) (*dataprov.Historical, error) {
	fng := dataprov.NewFearGreed(cfg.Data.FearGreedURL, cfg.Data.Timeout.Std())
	prices := dataprov.NewBinance(cfg.Data.PriceURL, cfg.Symbol, cfg.Data.Timeout.Std())

	fileCache, err := dataprov.NewFileCache(cfg.Data.CacheDir, dataprov.DefaultCacheTTL)
	if err != nil {
		return nil, err
	}
	var cache dataprov.Cache = fileCache
	if cfg.Data.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Data.RedisAddr})
		cache = dataprov.NewTieredCache(dataprov.NewRedisCache(client, "fearproto"), fileCache)
	}
	return dataprov.NewHistorical(fng, prices, cache, cfg.Data.PersistentCache, log.Logger), nil
}

// buildQuoter returns the top-of-book source the paper adapter fills
// against.
func buildQuoter(cfg config.Config) (exchange.Quoter, error) {
	return dataprov.NewBinance(cfg.Data.PriceURL, cfg.Symbol, cfg.Data.Timeout.Std()), nil
}

// buildExecutor constructs the configured order-executor adapter. Backtests
// never call this; they always use the deterministic mock.
func buildExecutor(cfg config.Config, quoter exchange.Quoter) (exchange.Executor, error) {
	switch cfg.Exchange.Adapter {
	case "paper":
		return exchange.NewPaper(quoter,
			decimal.NewFromFloat(cfg.Exchange.PaperCash),
			decimal.NewFromFloat(cfg.Exchange.FeeRate),
			cfg.Exchange.PaperFile)
	case "mock":
		return exchange.NewMock(exchange.MockConfig{
			InitialQuote: decimal.NewFromFloat(cfg.Exchange.PaperCash),
			FeeRate:      decimal.NewFromFloat(cfg.Exchange.FeeRate),
		}), nil
	case "live":
		apiKey := os.Getenv(cfg.Exchange.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("live adapter needs the API key in $%s", cfg.Exchange.APIKeyEnv)
		}
		return exchange.NewLive(exchange.LiveConfig{
			BaseURL: cfg.Exchange.BaseURL,
			APIKey:  apiKey,
			Symbol:  cfg.Symbol,
			Timeout: cfg.Exchange.Timeout.Std(),
		}), nil
	default:
		return nil, fmt.Errorf("unknown exchange adapter %q", cfg.Exchange.Adapter)
	}
}
