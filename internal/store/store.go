// Package store defines storage interfaces for persisting and retrieving
// prices, derived signals, equity curves and backtest runs, with SQLite,
// PostgreSQL and Parquet implementations.
package store

import (
	"context"
	"time"

	"screener/internal/domain"
)

// Range bounds a trade-date query. A zero Start or End leaves that side open.
type Range struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// BarStore persists and retrieves daily bars.
type BarStore interface {
	// WriteBars persists a batch of bars. Bars already stored for the same
	// (ticker, trade_date) are kept.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the ticker within r, ordered by trade date.
	ReadBars(ctx context.Context, ticker string, r Range) ([]domain.Bar, error)

	// ListTickers returns all distinct tickers with stored bars.
	ListTickers(ctx context.Context) ([]string, error)
}

// PriceStore adds the adjusted-close price table read used by the signal job.
type PriceStore interface {
	BarStore

	// ReadPrices returns adjusted-close observations for all tickers within
	// r, ordered by (ticker, trade_date).
	ReadPrices(ctx context.Context, r Range) ([]domain.PriceObservation, error)
}

// SignalStore persists and retrieves derived signals.
type SignalStore interface {
	// UpsertSignals inserts signal records, replacing every signal column of
	// an existing (ticker, trade_date) row.
	UpsertSignals(ctx context.Context, recs []domain.SignalRecord) error

	// ReadSignals returns the signals of one ticker within r, ordered by date.
	ReadSignals(ctx context.Context, ticker string, r Range) ([]domain.SignalRecord, error)

	// ReadPriceSignals returns the join of prices and signals on
	// (ticker, trade_date), ordered by (ticker, trade_date).
	ReadPriceSignals(ctx context.Context) ([]domain.PriceSignal, error)
}

// EquityStore persists and retrieves equity curves.
type EquityStore interface {
	// UpsertEquity inserts equity points, replacing the values of an existing
	// (strategy_name, trade_date) row.
	UpsertEquity(ctx context.Context, points []domain.EquityCurvePoint) error

	// ReadEquity returns a strategy's equity curve ordered by trade date.
	ReadEquity(ctx context.Context, strategy string) ([]domain.EquityCurvePoint, error)
}

// RunStore records backtest executions.
type RunStore interface {
	// SaveRun inserts a backtest run.
	SaveRun(ctx context.Context, run *domain.BacktestRun) error

	// ListRuns returns the most recent runs, newest first. An empty strategy
	// matches all strategies; limit <= 0 means no limit.
	ListRuns(ctx context.Context, strategy string, limit int) ([]domain.BacktestRun, error)
}

// Store is the relational store used by the pipeline and the API.
type Store interface {
	PriceStore
	SignalStore
	EquityStore
	RunStore

	// Migrate creates the schema if it does not exist.
	Migrate(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}
