package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fearproto/fearproto/internal/domain"
	"github.com/fearproto/fearproto/internal/state"
)

// runStatus prints the persisted executor state without touching any
// provider or exchange.
func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := state.NewManager(cfg.Live.StateFile, log.Logger).Load()
	if err != nil {
		return err
	}
	if st == nil {
		fmt.Printf("No state at %s (no live run yet)\n", cfg.Live.StateFile)
		return nil
	}

	open, closed := 0, 0
	for _, lot := range st.Lots {
		if lot.Status == domain.PositionOpen {
			open++
		} else {
			closed++
		}
	}

	fmt.Printf("Strategy:     %s\n", st.StrategyName)
	fmt.Printf("Last run:     %s\n", st.LastRun.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("Cash:         $%s\n", st.Cash.StringFixed(2))
	fmt.Printf("Realized PnL: $%s\n", st.RealizedPnL.StringFixed(2))
	fmt.Printf("Fees paid:    $%s\n", st.FeesPaid.StringFixed(2))
	fmt.Printf("Lots:         %d open, %d closed\n", open, closed)
	for _, lot := range st.Lots {
		if lot.Status != domain.PositionOpen {
			continue
		}
		fmt.Printf("  %s  %s @ $%s (F&G %d at entry)\n",
			lot.EntryTime.Format("2006-01-02"),
			lot.Size.String(),
			lot.EntryPrice.StringFixed(2),
			lot.FGAtEntry)
	}
	return nil
}
