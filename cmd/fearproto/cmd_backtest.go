package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/fearproto/fearproto/internal/backtest"
	"github.com/fearproto/fearproto/internal/config"
	"github.com/fearproto/fearproto/internal/domain"
	"github.com/fearproto/fearproto/internal/persistence"
)

// runBacktest replays the strategy over the configured range and prints
// the outcome.
func runBacktest(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	start, end, err := backtestRange(cmd, cfg)
	if err != nil {
		return err
	}

	strat, err := buildStrategy(cfg)
	if err != nil {
		return err
	}
	data, err := buildData(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := data.ClearForRun(ctx); err != nil {
		return err
	}
	fg, prices, err := data.Range(ctx, start, end)
	if err != nil {
		return err
	}
	bars := backtest.BarsFromSeries(fg, prices)
	if len(bars) == 0 {
		return &domain.DataUnavailableError{
			Source: "merged series",
			Date:   start,
			Detail: "no dates covered by both sentiment and price data",
		}
	}

	capital := cfg.Backtest.InitialCapital
	if override, _ := cmd.Flags().GetFloat64("capital"); override > 0 {
		capital = override
	}
	engine := backtest.New(backtest.Config{
		StrategyName:   strat.Name(),
		Start:          bars[0].Date,
		End:            bars[len(bars)-1].Date,
		InitialCapital: decimal.NewFromFloat(capital),
		FeeRate:        decimal.NewFromFloat(cfg.Backtest.FeeRate),
		SlippageRate:   decimal.NewFromFloat(cfg.Backtest.SlippageRate),
		PeriodsPerYear: cfg.Backtest.PeriodsPerYear,
		KellyCap:       cfg.Backtest.KellyCap,
		RiskFree:       cfg.Backtest.RiskFree,
	}, strat)

	res, err := engine.Run(ctx, bars)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		payload, err := res.MarshalDeterministic()
		if err != nil {
			return err
		}
		os.Stdout.Write(payload)
		fmt.Println()
	} else {
		printResult(res)
	}

	if save, _ := cmd.Flags().GetBool("save"); save {
		if cfg.Store.PostgresDSN == "" {
			return fmt.Errorf("--save needs store.postgres_dsn in the config")
		}
		store, err := persistence.Open(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return err
		}
		defer store.Close()
		id, err := store.Save(ctx, res)
		if err != nil {
			return err
		}
		log.Info().Int64("id", id).Msg("result stored")
	}
	return nil
}

// backtestRange resolves start/end from flags over config. End defaults to
// yesterday: today's bar is still forming.
func backtestRange(cmd *cobra.Command, cfg config.Config) (time.Time, time.Time, error) {
	startStr := cfg.Backtest.Start
	if s, _ := cmd.Flags().GetString("start"); s != "" {
		startStr = s
	}
	endStr := cfg.Backtest.End
	if s, _ := cmd.Flags().GetString("end"); s != "" {
		endStr = s
	}
	if startStr == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("backtest range start not set (config backtest.start or --start)")
	}
	start, err := time.ParseInLocation("2006-01-02", startStr, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad start date %q: %w", startStr, err)
	}
	end := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -1)
	if endStr != "" {
		end, err = time.ParseInLocation("2006-01-02", endStr, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("bad end date %q: %w", endStr, err)
		}
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("range end %s before start %s", endStr, startStr)
	}
	return start, end, nil
}

func printResult(res *backtest.Result) {
	m := res.Metrics
	fmt.Printf("Strategy:       %s\n", res.StrategyName)
	fmt.Printf("Range:          %s .. %s\n", res.Start.Format("2006-01-02"), res.End.Format("2006-01-02"))
	fmt.Printf("Final equity:   $%s\n", res.FinalEquity.StringFixed(2))
	fmt.Printf("Total return:   %+.2f%%\n", m.TotalReturn*100)
	fmt.Printf("Annualized:     %+.2f%%\n", m.AnnualizedReturn*100)
	fmt.Printf("Max drawdown:   %.2f%%\n", m.MaxDrawdown*100)
	fmt.Printf("Sharpe:         %s\n", fmtRatio(m.Sharpe))
	fmt.Printf("Sortino:        %s\n", fmtRatio(m.Sortino))
	fmt.Printf("Calmar:         %s\n", fmtRatio(m.Calmar))
	fmt.Printf("Profit factor:  %s\n", fmtRatio(m.ProfitFactor))
	fmt.Printf("Win rate:       %.1f%% (%d closed / %d trades)\n", m.WinRate*100, m.ClosedTrades, m.TotalTrades)
	fmt.Printf("Kelly fraction: %.3f\n", m.KellyFraction)
	fmt.Printf("Hold benchmark: %+.2f%% (alpha %+.2f%%)\n", m.HoldReturn*100, m.Alpha*100)
	fmt.Printf("Fees paid:      $%.2f\n", m.FeesPaid)
}

// fmtRatio renders a nullable statistic; undefined stays visible as n/a
// instead of a misleading zero.
func fmtRatio(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", *v)
}
