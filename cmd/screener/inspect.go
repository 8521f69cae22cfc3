package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"screener/internal/domain"
	"screener/internal/report"
	"screener/internal/strategy"
	"screener/internal/strategy/builtins"
)

var (
	reportStrategy string
	reportHTML     string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize a stored equity curve",
	Long: `Report prints start and end dates, point count, final value, total
return, maximum drawdown and the best and worst days of a strategy's stored
equity curve. With --html it also writes an interactive chart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := cfg.Backtest.Strategy
		if reportStrategy != "" {
			name = reportStrategy
		}

		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		points, err := s.ReadEquity(cmd.Context(), name)
		if err != nil {
			return fmt.Errorf("reading equity curve: %w", err)
		}
		sum, err := report.Summarize(points)
		if err != nil {
			return fmt.Errorf("strategy %q: %w", name, err)
		}
		if err := report.WriteText(cmd.OutOrStdout(), sum); err != nil {
			return err
		}

		if reportHTML == "" {
			return nil
		}
		path := reportHTML
		if !filepath.IsAbs(path) && filepath.Dir(path) == "." {
			path = filepath.Join(cfg.Backtest.ReportDir, path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := report.RenderHTML(f, points); err != nil {
			f.Close()
			return fmt.Errorf("rendering chart: %w", err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		log.Info("chart written", "path", path)
		return nil
	},
}

var (
	runsStrategy string
	runsLimit    int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent backtest runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		runs, err := s.ListRuns(cmd.Context(), runsStrategy, runsLimit)
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tSTRATEGY\tCREATED\tSTART\tEND\tPOINTS\tSKIPPED\tFINAL")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%.4f\n",
				r.RunID, r.StrategyName, r.CreatedAt.Format("2006-01-02 15:04:05"),
				dateOrDash(r.StartDate.Format(domain.DateLayout), r.StartDate.IsZero()),
				dateOrDash(r.EndDate.Format(domain.DateLayout), r.EndDate.IsZero()),
				r.Points, r.SkippedDates, r.FinalValue)
		}
		return tw.Flush()
	},
}

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List the registered strategies",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := strategy.NewRegistry()
		builtins.Register(reg, cfg.Backtest.TopN)
		for _, name := range reg.List() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func dateOrDash(s string, zero bool) string {
	if zero {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(reportCmd, runsCmd, strategiesCmd)

	reportCmd.Flags().StringVarP(&reportStrategy, "strategy", "s", "", "strategy name (default from config)")
	reportCmd.Flags().StringVar(&reportHTML, "html", "", "also write an HTML chart; bare file names go to backtest.report_dir")

	runsCmd.Flags().StringVarP(&runsStrategy, "strategy", "s", "", "only runs of this strategy")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum runs to list (0 = all)")
}
