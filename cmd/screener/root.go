package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"screener/internal/config"
	"screener/internal/metrics"
	"screener/internal/pipeline"
	"screener/internal/store"
	"screener/internal/util"
)

var (
	cfgFile  string
	logLevel string

	cfg *config.Config
	log *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "screener",
	Short: "Daily stock signals and top-N momentum backtests",
	Long: `Screener keeps a daily price history, derives momentum, moving-average
and RSI signals per ticker, and backtests an equal-weight top-N momentum
strategy rebalanced every day.

Typical flow:
  screener migrate
  screener ingest
  screener signals
  screener backtest
  screener report --html reports/top10.html`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if !cmd.Flags().Changed("config") {
			// A missing default file falls back to defaults and environment.
			if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
				path = ""
			}
		}
		var err error
		if cfg, err = config.Load(path); err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		log = util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
		util.SetDefault(log)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if err := metrics.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
			log.Warn("writing metrics textfile failed", "path", cfg.Metrics.TextfilePath, "err", err)
		}
		return nil
	},
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.Path(), "config file (empty to use defaults and environment only)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
}

// openStore opens the configured relational store, creating the schema on
// first use.
func openStore(ctx context.Context) (store.Store, error) {
	s, err := store.Open(ctx, pipeline.StoreOptions(cfg, true))
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Storage.Driver, err)
	}
	return s, nil
}
