package signal

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"screener/internal/domain"
)

// Options configures ComputeAll.
type Options struct {
	// Workers bounds concurrent per-ticker computations. Zero means GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

// Batch is the merged output of ComputeAll.
type Batch struct {
	Records  []domain.SignalRecord
	Tickers  int
	Computed int
	Skipped  []domain.Skip
}

type slot struct {
	records []domain.SignalRecord
	err     error
}

// ComputeAll partitions a multi-ticker price table by ticker and runs Compute
// for each ticker on a bounded worker pool. Records are merged in ascending
// ticker order. A ticker whose series is malformed is skipped and reported;
// only context cancellation aborts the batch.
func ComputeAll(ctx context.Context, obs []domain.PriceObservation, opts Options) (*Batch, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "signals")

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	tickers, series := Partition(obs)
	slots := make([]slot, len(tickers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, ticker := range tickers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			recs, err := Compute(series[ticker])
			slots[i] = slot{records: recs, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Batch{
		Records: make([]domain.SignalRecord, 0, len(obs)),
		Tickers: len(tickers),
	}
	for i, ticker := range tickers {
		s := slots[i]
		if s.err != nil {
			var oe *domain.InputOrderingError
			if !errors.As(s.err, &oe) {
				return nil, s.err
			}
			log.Warn("skipping ticker", "ticker", ticker, "err", s.err)
			out.Skipped = append(out.Skipped, domain.Skip{
				Ticker:    ticker,
				TradeDate: oe.Date,
				Reason:    oe.Reason,
			})
			continue
		}
		out.Records = append(out.Records, s.records...)
		out.Computed++
	}

	log.Info("signals computed",
		"tickers", out.Tickers,
		"computed", out.Computed,
		"skipped", len(out.Skipped),
		"records", len(out.Records),
	)
	return out, nil
}

// Partition groups observations by ticker, keeping input order within each
// ticker, and returns the tickers sorted ascending.
func Partition(obs []domain.PriceObservation) ([]string, map[string][]domain.PriceObservation) {
	series := make(map[string][]domain.PriceObservation)
	for _, o := range obs {
		series[o.Ticker] = append(series[o.Ticker], o)
	}
	tickers := make([]string, 0, len(series))
	for t := range series {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers, series
}
