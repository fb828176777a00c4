package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fearproto/fearproto/internal/domain"
)

// runSignal evaluates the strategy once against live market data and
// prints the decision. No order is placed and no state is touched.
func runSignal(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
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
	point, price, err := data.Snapshot(ctx)
	if err != nil {
		return err
	}

	mc := domain.MarketContext{
		Timestamp:      point.Date,
		Price:          price,
		FearGreed:      point.Value,
		FearGreedLabel: point.Label,
	}
	sig := strat.Evaluate(mc)

	log.Info().
		Str("strategy", strat.Name()).
		Int("fg", point.Value).
		Str("label", point.Label).
		Str("price", price.StringFixed(2)).
		Msg("market snapshot")

	fmt.Printf("Strategy:   %s\n", strat.Name())
	fmt.Printf("F&G Index:  %d (%s)\n", point.Value, point.Label)
	fmt.Printf("Price:      $%s\n", price.StringFixed(2))
	fmt.Printf("Action:     %s\n", sig.Action)
	fmt.Printf("Confidence: %.2f\n", sig.Confidence)
	if sig.Action != domain.ActionHold {
		fmt.Printf("Size:       %s\n", sig.Size.String())
	}
	fmt.Printf("Reason:     %s\n", sig.Reason)
	return nil
}
