// Package pipeline wires the stores to the signal engine and the backtester
// as runnable jobs.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"screener/internal/domain"
	"screener/internal/metrics"
	"screener/internal/signal"
	"screener/internal/store"
)

// SignalsStore is what the signals job reads from and writes to.
type SignalsStore interface {
	store.PriceStore
	store.SignalStore
}

// SignalsJob recomputes the daily signals from stored prices.
type SignalsJob struct {
	Store   SignalsStore
	Workers int
	// Window limits which trade dates are written. Indicators always see the
	// full price history so lookbacks are unaffected.
	Window store.Range
	Log    *slog.Logger
}

// Run reads every price, computes signals per ticker and upserts the
// records inside Window. Tickers with malformed series are skipped and
// returned in the batch.
func (j *SignalsJob) Run(ctx context.Context) (*signal.Batch, error) {
	log := j.Log
	if log == nil {
		log = slog.Default()
	}

	obs, err := j.Store.ReadPrices(ctx, store.Range{})
	if err != nil {
		return nil, fmt.Errorf("reading prices: %w", err)
	}
	log.Info("prices loaded", "rows", len(obs))

	batch, err := signal.ComputeAll(ctx, obs, signal.Options{Workers: j.Workers, Logger: log})
	if err != nil {
		return nil, fmt.Errorf("computing signals: %w", err)
	}
	metrics.SignalTickers.WithLabelValues("computed").Add(float64(batch.Computed))
	metrics.SignalTickers.WithLabelValues("skipped").Add(float64(len(batch.Skipped)))

	recs := batch.Records
	if j.Window != (store.Range{}) {
		recs = make([]domain.SignalRecord, 0, len(batch.Records))
		for _, r := range batch.Records {
			if j.Window.Contains(r.TradeDate) {
				recs = append(recs, r)
			}
		}
	}

	if err := j.Store.UpsertSignals(ctx, recs); err != nil {
		return nil, fmt.Errorf("upserting signals: %w", err)
	}
	metrics.SignalRecords.Add(float64(len(recs)))
	log.Info("signals stored", "records", len(recs))
	return batch, nil
}
