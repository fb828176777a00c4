package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fearproto/fearproto/internal/config"
)

const (
	appName = "fearproto"
	version = "v1.0.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Fear & Greed driven DCA strategies: backtest, paper, and live",
		Version: version,
		Long: `fearproto trades crypto sentiment. It evaluates fear-driven DCA
strategies against the Fear & Greed index and spot prices, either over
historical data (backtest) or on a schedule against a paper or live
exchange adapter.`,
		PersistentPreRunE: setupLogging,
	}

	rootCmd.PersistentFlags().String("config", "fearproto.yaml", "Config file path")
	rootCmd.PersistentFlags().String("log-level", "", "Log level override (debug|info|warn|error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Force JSON log output")

	signalCmd := &cobra.Command{
		Use:   "signal",
		Short: "Evaluate the strategy against current market data once",
		Long:  "Fetches the latest Fear & Greed reading and spot price, runs one strategy evaluation, and prints the signal without placing any order",
		RunE:  runSignal,
	}
	signalCmd.Flags().String("strategy", "", "Strategy name override")

	backtestCmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay a strategy over a historical date range",
		Long:  "Runs a deterministic historical replay and prints the equity curve summary, trade log, and final metrics",
		RunE:  runBacktest,
	}
	backtestCmd.Flags().String("strategy", "", "Strategy name override")
	backtestCmd.Flags().String("start", "", "Range start (YYYY-MM-DD)")
	backtestCmd.Flags().String("end", "", "Range end (YYYY-MM-DD)")
	backtestCmd.Flags().Float64("capital", 0, "Initial capital override")
	backtestCmd.Flags().Bool("json", false, "Print the full result document as JSON")
	backtestCmd.Flags().Bool("save", false, "Persist the result to postgres (needs store.postgres_dsn)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the live loop against the configured exchange adapter",
		Long:  "Starts the scheduled evaluation loop with state persistence and the telemetry endpoint; stops cleanly on SIGINT/SIGTERM",
		RunE:  runLive,
	}
	runCmd.Flags().Duration("interval", 0, "Evaluation interval override")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show persisted executor state and open lots",
		RunE:  runStatus,
	}

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "List recent stored backtest results",
		Long:  "Reads the postgres result store and prints recent run summaries per strategy",
		RunE:  runMonitor,
	}
	monitorCmd.Flags().String("strategy", "", "Filter by strategy name")
	monitorCmd.Flags().Int("limit", 20, "Max rows")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Tail the live price stream for the configured symbol",
		RunE:  runWatch,
	}
	watchCmd.Flags().String("stream-url", "", "Websocket endpoint override")

	rootCmd.AddCommand(signalCmd, backtestCmd, runCmd, statusCmd, monitorCmd, watchCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging configures zerolog before any handler runs: console output
// on a TTY, JSON otherwise or when forced. Flags beat the config file's
// log section.
func setupLogging(cmd *cobra.Command, _ []string) error {
	zerolog.TimeFieldFormat = time.RFC3339

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	flagLevel, _ := cmd.Flags().GetString("log-level")
	flagJSON, _ := cmd.Flags().GetBool("log-json")
	level, forceJSON := logSettings(cfg.Log, flagLevel, cmd.Flags().Changed("log-json"), flagJSON)

	if !forceJSON && term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("bad log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(parsed)
	return nil
}

// logSettings resolves the effective level and output format from the
// config file's log section and any flag overrides.
func logSettings(cfg config.LogConfig, flagLevel string, jsonFlagSet, flagJSON bool) (string, bool) {
	level := cfg.Level
	if flagLevel != "" {
		level = flagLevel
	}
	if level == "" {
		level = "info"
	}
	forceJSON := cfg.JSON
	if jsonFlagSet {
		forceJSON = flagJSON
	}
	return level, forceJSON
}
