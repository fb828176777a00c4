package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fearproto/fearproto/internal/persistence"
)

// runMonitor lists recent stored backtest results.
func runMonitor(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Store.PostgresDSN == "" {
		return fmt.Errorf("monitor needs store.postgres_dsn in the config")
	}

	ctx := cmd.Context()
	store, err := persistence.Open(ctx, cfg.Store.PostgresDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	name, _ := cmd.Flags().GetString("strategy")
	limit, _ := cmd.Flags().GetInt("limit")
	rows, err := store.Recent(ctx, name, limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("No stored results.")
		return nil
	}

	fmt.Printf("%-5s %-16s %-23s %9s %8s %8s %6s\n",
		"ID", "STRATEGY", "RANGE", "RETURN", "MAXDD", "SHARPE", "TRADES")
	for _, r := range rows {
		sharpe := "n/a"
		if r.Sharpe != nil {
			sharpe = fmt.Sprintf("%.2f", *r.Sharpe)
		}
		fmt.Printf("%-5d %-16s %s..%s %+8.2f%% %7.2f%% %8s %6d\n",
			r.ID, r.Strategy,
			r.RangeStart.Format("2006-01-02"), r.RangeEnd.Format("2006-01-02"),
			r.TotalReturn*100, r.MaxDrawdown*100, sharpe, r.TotalTrades)
	}
	return nil
}
