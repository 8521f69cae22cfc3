package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"screener/internal/domain"
	"screener/internal/metrics"
	"screener/internal/store"
	"screener/internal/strategy"
)

// BacktestStore is what the backtest job reads from and writes to.
type BacktestStore interface {
	store.SignalStore
	store.EquityStore
	store.RunStore
}

// BacktestJob replays the joined price/momentum table through a strategy
// and persists the equity curve and a run record.
type BacktestJob struct {
	Store      BacktestStore
	Backtester *strategy.Backtester
	Strategy   string
	Log        *slog.Logger
	// Now stamps the run; time.Now when nil.
	Now func() time.Time
}

// BacktestOutcome is the result of one backtest job.
type BacktestOutcome struct {
	Result *strategy.Result
	Run    domain.BacktestRun
}

// Run executes the job.
func (j *BacktestJob) Run(ctx context.Context) (*BacktestOutcome, error) {
	log := j.Log
	if log == nil {
		log = slog.Default()
	}
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}

	rows, err := j.Store.ReadPriceSignals(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading price signals: %w", err)
	}

	res, err := j.Backtester.Run(j.Strategy, rows)
	if err != nil {
		return nil, err
	}
	metrics.BacktestPoints.WithLabelValues(j.Strategy).Add(float64(len(res.Points)))
	metrics.BacktestSkippedDates.WithLabelValues(j.Strategy).Add(float64(len(res.SkippedDates)))

	if err := j.Store.UpsertEquity(ctx, res.Points); err != nil {
		return nil, fmt.Errorf("upserting equity curve: %w", err)
	}

	created := now().UTC()
	run := domain.BacktestRun{
		RunID:        NewRunID(created),
		StrategyName: j.Strategy,
		CreatedAt:    created,
		Points:       len(res.Points),
		SkippedDates: len(res.SkippedDates),
		FinalValue:   res.FinalValue(),
	}
	if n := len(res.Points); n > 0 {
		run.StartDate = res.Points[0].TradeDate
		run.EndDate = res.Points[n-1].TradeDate
	}
	if err := j.Store.SaveRun(ctx, &run); err != nil {
		return nil, fmt.Errorf("saving run: %w", err)
	}

	log.Info("backtest stored", "run_id", run.RunID, "strategy", j.Strategy, "points", run.Points)
	return &BacktestOutcome{Result: res, Run: run}, nil
}
