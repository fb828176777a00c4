package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fearproto/fearproto/internal/dataprov"
)

// runWatch tails the exchange price stream for the configured symbol and
// prints each tick until interrupted.
func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	streamURL, _ := cmd.Flags().GetString("stream-url")
	stream := dataprov.NewPriceStream(streamURL, cfg.Symbol, log.Logger)

	log.Info().Str("symbol", cfg.Symbol).Msg("watching live prices, Ctrl+C to stop")
	for tick := range stream.Run(ctx) {
		fmt.Printf("%s  %-10s %s\n", tick.Time.Format("15:04:05"), tick.Symbol, tick.Price.StringFixed(2))
	}
	return nil
}
