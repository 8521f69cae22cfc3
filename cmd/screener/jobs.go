package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"screener/internal/domain"
	"screener/internal/pipeline"
	"screener/internal/store"
	"screener/internal/strategy"
	"screener/internal/strategy/builtins"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		log.Info("schema ready", "driver", cfg.Storage.Driver)
		return nil
	},
}

var (
	ingestSource  string
	ingestCSV     string
	ingestTickers []string
	ingestStart   string
	ingestEnd     string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load daily bars from Alpaca or a CSV file",
	Long: `Ingest daily OHLCV bars with adjusted closes into the relational store,
and into the Parquet archive when storage.archive is set.

The Alpaca source fetches up to the latest finished session and resumes an
interrupted run. Rows already stored are kept.

Examples:
  screener ingest
  screener ingest --tickers AAPL,MSFT --start 2020-01-01
  screener ingest --source csv --csv prices.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("source") {
			cfg.Ingest.Source = ingestSource
		}
		if flags.Changed("csv") {
			cfg.Ingest.Source = "csv"
			cfg.Ingest.CSVPath = ingestCSV
		}
		if flags.Changed("tickers") {
			cfg.Ingest.Tickers = ingestTickers
		}
		if flags.Changed("start") {
			cfg.Ingest.StartDate = ingestStart
		}
		if flags.Changed("end") {
			cfg.Ingest.EndDate = ingestEnd
		}

		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		g, err := pipeline.NewIngester(cfg, s)
		if err != nil {
			return err
		}
		log.Info("starting ingest", "gatherer", g.Name())
		return g.Run(cmd.Context())
	},
}

var (
	signalsWorkers int
	signalsFrom    string
)

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Recompute daily signals from stored prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("workers") {
			cfg.Signals.Workers = signalsWorkers
		}
		var window store.Range
		if signalsFrom != "" {
			from, err := domain.ParseDate(signalsFrom)
			if err != nil {
				return err
			}
			window.Start = from
		}

		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		batch, err := (&pipeline.SignalsJob{
			Store:   s,
			Workers: cfg.Signals.Workers,
			Window:  window,
			Log:     log,
		}).Run(cmd.Context())
		if err != nil {
			return err
		}
		for _, sk := range batch.Skipped {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s at %s: %s\n",
				sk.Ticker, sk.TradeDate.Format(domain.DateLayout), sk.Reason)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d tickers, %d computed, %d skipped, %d records\n",
			batch.Tickers, batch.Computed, len(batch.Skipped), len(batch.Records))
		return nil
	},
}

var (
	backtestStrategy string
	backtestTopN     int
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run the momentum backtest and store its equity curve",
	Long: `Backtest replays the stored prices and momentum through a strategy,
rebalancing every trade date into an equal-weight top-N cohort, and stores
the compounded equity curve plus a run record.

Dates where no ticker has both a momentum reading and a prior price are left
out of the curve.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("top-n") {
			cfg.Backtest.TopN = backtestTopN
			if !cmd.Flags().Changed("strategy") {
				cfg.Backtest.Strategy = builtins.NewTopMomentum(backtestTopN).Name()
			}
		}
		if cmd.Flags().Changed("strategy") {
			cfg.Backtest.Strategy = backtestStrategy
		}

		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		reg := strategy.NewRegistry()
		builtins.Register(reg, cfg.Backtest.TopN)

		out, err := (&pipeline.BacktestJob{
			Store:      s,
			Backtester: strategy.NewBacktester(reg, log),
			Strategy:   cfg.Backtest.Strategy,
			Log:        log,
		}).Run(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "run %s: %s, %d points, %d skipped dates, final value %.4f\n",
			out.Run.RunID, out.Run.StrategyName, out.Run.Points, out.Run.SkippedDates, out.Run.FinalValue)
		return nil
	},
}

var pipelineCmd = &cobra.Command{
	Use:   "run",
	Short: "Ingest, compute signals and backtest in one go",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, step := range []*cobra.Command{ingestCmd, signalsCmd, backtestCmd} {
			log.Info("pipeline step", "step", step.Name())
			step.SetContext(cmd.Context())
			step.SetOut(cmd.OutOrStdout())
			step.SetErr(cmd.ErrOrStderr())
			if err := step.RunE(step, nil); err != nil {
				return fmt.Errorf("%s: %w", step.Name(), err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, ingestCmd, signalsCmd, backtestCmd, pipelineCmd)

	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "alpaca or csv (default from config)")
	ingestCmd.Flags().StringVar(&ingestCSV, "csv", "", "CSV file to import; implies --source csv")
	ingestCmd.Flags().StringSliceVar(&ingestTickers, "tickers", nil, "comma-separated tickers")
	ingestCmd.Flags().StringVar(&ingestStart, "start", "", "first trade date (YYYY-MM-DD)")
	ingestCmd.Flags().StringVar(&ingestEnd, "end", "", "last trade date (YYYY-MM-DD); default latest finished session")

	signalsCmd.Flags().IntVarP(&signalsWorkers, "workers", "w", 0, "parallel tickers (0 = GOMAXPROCS)")
	signalsCmd.Flags().StringVar(&signalsFrom, "from", "", "only write signals on or after this date (YYYY-MM-DD)")

	backtestCmd.Flags().StringVarP(&backtestStrategy, "strategy", "s", "", "strategy name (default from config)")
	backtestCmd.Flags().IntVarP(&backtestTopN, "top-n", "n", 0, "cohort size; also selects topN_momentum_daily")
}
