package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/fearproto/fearproto/internal/ledger"
	"github.com/fearproto/fearproto/internal/live"
	"github.com/fearproto/fearproto/internal/state"
	"github.com/fearproto/fearproto/internal/telemetry"
)

// runLive starts the scheduled loop and blocks until SIGINT/SIGTERM.
func runLive(cmd *cobra.Command, _ []string) error {
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
	quoter, err := buildQuoter(cfg)
	if err != nil {
		return err
	}
	executor, err := buildExecutor(cfg, quoter)
	if err != nil {
		return err
	}
	defer executor.Close()

	interval := cfg.Live.Interval.Std()
	if override, _ := cmd.Flags().GetDuration("interval"); override > 0 {
		interval = override
	}

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	server := telemetry.NewServer(cfg.Live.TelemetryAddr, reg, log.Logger)
	server.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	led := ledger.New(decimal.NewFromFloat(cfg.Exchange.PaperCash), cfg.Exchange.Adapter)
	states := state.NewManager(cfg.Live.StateFile, log.Logger)
	runner := live.NewRunner(strat, executor, led, data, states, metrics, interval, log.Logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return runner.Run(ctx)
}
