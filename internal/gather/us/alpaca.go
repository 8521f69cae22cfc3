// Package us gathers US equity daily prices from Alpaca.
package us

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"screener/internal/domain"
	"screener/internal/gather"
	"screener/internal/metrics"
	"screener/internal/util"
)

var _ gather.Gatherer = (*DailyPriceGatherer)(nil)

// barsClient is the slice of the Alpaca market-data client used here.
type barsClient interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

// DailyPriceConfig parameterizes a DailyPriceGatherer.
type DailyPriceConfig struct {
	Tickers []string
	Start   time.Time
	// End is the last trade date to fetch. Zero means the latest finished
	// session according to the trading calendar.
	End  time.Time
	Feed string
	// StateDir holds the resume state.
	StateDir        string
	BatchSize       int
	MaxWorkers      int
	RateLimitPerMin int
	MaxRetries      int
	RetryBaseDelay  time.Duration
}

// DailyPriceGatherer fetches daily bars for a fixed ticker universe. Each
// batch is requested twice, unadjusted for OHLCV and fully adjusted for the
// adjusted close, and the two are merged per trade date.
type DailyPriceGatherer struct {
	bars     barsClient
	calendar calendarClient
	sink     gather.Sinks
	cfg      DailyPriceConfig
	limiter  *rate.Limiter
	now      func() time.Time
	log      *slog.Logger
}

// NewAlpacaClients builds the market-data and trading clients. Empty URLs
// select the SDK defaults.
func NewAlpacaClients(apiKey, apiSecret, dataURL, baseURL string) (*marketdata.Client, *alpaca.Client) {
	md := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   dataURL,
	})
	tr := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
	return md, tr
}

// NewDailyPriceGatherer creates a gatherer writing to sink.
func NewDailyPriceGatherer(bars barsClient, calendar calendarClient, sink gather.Sinks, cfg DailyPriceConfig) *DailyPriceGatherer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.Feed == "" {
		cfg.Feed = "sip"
	}
	tickers := make([]string, 0, len(cfg.Tickers))
	for _, t := range cfg.Tickers {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			tickers = append(tickers, t)
		}
	}
	slices.Sort(tickers)
	cfg.Tickers = slices.Compact(tickers)

	return &DailyPriceGatherer{
		bars:     bars,
		calendar: calendar,
		sink:     sink,
		cfg:      cfg,
		limiter:  util.NewRateLimiter(cfg.RateLimitPerMin, cfg.MaxWorkers),
		now:      time.Now,
		log:      slog.Default().With("gatherer", "alpaca-daily"),
	}
}

// Name returns the gatherer identifier.
func (g *DailyPriceGatherer) Name() string { return "alpaca-daily" }

// Run fetches every pending ticker up to the end date. It is resumable after
// a crash and a no-op once the end date has been fully ingested.
func (g *DailyPriceGatherer) Run(ctx context.Context) error {
	end := g.cfg.End
	if end.IsZero() {
		var err error
		if end, err = LatestFinishedTradingDay(g.calendar, g.now()); err != nil {
			return fmt.Errorf("determining end date: %w", err)
		}
	}
	if end.Before(g.cfg.Start) {
		return fmt.Errorf("end date %s before start date %s",
			end.Format(domain.DateLayout), g.cfg.Start.Format(domain.DateLayout))
	}
	endStr := end.Format(domain.DateLayout)

	tracker, err := newProgressTracker(g.cfg.StateDir)
	if err != nil {
		return err
	}
	if tracker.IsCompleted(endStr) {
		g.log.Info("already completed", "endDate", endStr)
		return nil
	}
	if err := tracker.Begin(endStr); err != nil {
		return fmt.Errorf("starting progress: %w", err)
	}

	remaining := tracker.Pending(g.cfg.Tickers)
	var batches [][]string
	for chunk := range slices.Chunk(remaining, g.cfg.BatchSize) {
		batches = append(batches, chunk)
	}
	g.log.Info("starting alpaca-daily",
		"endDate", endStr,
		"tickers", len(g.cfg.Tickers),
		"remaining", len(remaining),
		"batches", len(batches),
	)

	batchCh := make(chan int, len(batches))
	for i := range batches {
		batchCh <- i
	}
	close(batchCh)

	var (
		wg         sync.WaitGroup
		totalBars  atomic.Int64
		totalEmpty atomic.Int64
		failed     atomic.Int64
		runStart   = time.Now()
	)
	workers := min(g.cfg.MaxWorkers, len(batches))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range batchCh {
				if ctx.Err() != nil {
					return
				}
				batch := batches[idx]
				label := fmt.Sprintf("%d/%d", idx+1, len(batches))

				bars, err := g.fetchBatch(ctx, batch, g.cfg.Start, end)
				if err != nil {
					failed.Add(1)
					g.log.Error("batch fetch failed", "batch", label, "err", err)
					continue
				}
				if len(bars) > 0 {
					if err := g.sink.WriteBars(ctx, bars); err != nil {
						failed.Add(1)
						g.log.Error("writing bars failed", "batch", label, "err", err)
						continue
					}
					metrics.BarsIngested.WithLabelValues("alpaca").Add(float64(len(bars)))
				}

				done, empty := splitHits(batch, bars)
				if err := tracker.MarkBatch(done, empty); err != nil {
					g.log.Error("recording progress failed", "err", err)
				}
				totalBars.Add(int64(len(bars)))
				totalEmpty.Add(int64(len(empty)))

				g.log.Info("batch done",
					"batch", label,
					"bars", len(bars),
					"empty", len(empty),
					"elapsed", time.Since(runStart).Round(time.Second),
				)
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d batches failed; rerun to resume", n, len(batches))
	}
	if err := tracker.MarkCompleted(); err != nil {
		return fmt.Errorf("marking completed: %w", err)
	}

	g.log.Info("complete",
		"bars", totalBars.Load(),
		"empty", totalEmpty.Load(),
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	return nil
}

// fetchBatch requests raw and adjusted bars for symbols and merges them.
func (g *DailyPriceGatherer) fetchBatch(ctx context.Context, symbols []string, start, end time.Time) ([]domain.Bar, error) {
	raw, err := g.fetch(ctx, symbols, start, end, marketdata.Raw)
	if err != nil {
		return nil, err
	}
	adjusted, err := g.fetch(ctx, symbols, start, end, marketdata.All)
	if err != nil {
		return nil, err
	}
	return mergeBars(raw, adjusted), nil
}

func (g *DailyPriceGatherer) fetch(ctx context.Context, symbols []string, start, end time.Time, adj marketdata.Adjustment) (map[string][]marketdata.Bar, error) {
	var out map[string][]marketdata.Bar
	err := util.Retry(ctx, g.cfg.MaxRetries, g.cfg.RetryBaseDelay, func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		res, err := g.bars.GetMultiBars(symbols, marketdata.GetBarsRequest{
			TimeFrame:  marketdata.OneDay,
			Adjustment: adj,
			Start:      start,
			// End is inclusive of the whole trade date.
			End:  end.AddDate(0, 0, 1).Add(-time.Second),
			Feed: g.cfg.Feed,
		})
		if err != nil {
			return fmt.Errorf("GetMultiBars(%s): %w", adj, err)
		}
		out = res
		return nil
	})
	return out, err
}

// mergeBars joins unadjusted and adjusted bars on (ticker, trade date). A
// date without an adjusted bar keeps its raw close as the adjusted close; a
// date seen only in the adjusted set uses adjusted values throughout.
func mergeBars(raw, adjusted map[string][]marketdata.Bar) []domain.Bar {
	et := eastern()
	type key struct {
		ticker string
		day    time.Time
	}
	merged := make(map[key]*domain.Bar)
	var order []key

	add := func(symbol string, ab marketdata.Bar, isAdjusted bool) {
		k := key{strings.ToUpper(symbol), domain.TradingDay(ab.Timestamp.In(et))}
		b, ok := merged[k]
		if !ok {
			b = &domain.Bar{
				Ticker:    k.ticker,
				TradeDate: k.day,
				Open:      decimal.NewFromFloat(ab.Open),
				High:      decimal.NewFromFloat(ab.High),
				Low:       decimal.NewFromFloat(ab.Low),
				Close:     decimal.NewFromFloat(ab.Close),
				AdjClose:  decimal.NewFromFloat(ab.Close),
				Volume:    int64(ab.Volume),
			}
			merged[k] = b
			order = append(order, k)
		}
		if isAdjusted {
			b.AdjClose = decimal.NewFromFloat(ab.Close)
		}
	}
	for symbol, bars := range raw {
		for _, ab := range bars {
			add(symbol, ab, false)
		}
	}
	for symbol, bars := range adjusted {
		for _, ab := range bars {
			add(symbol, ab, true)
		}
	}

	slices.SortFunc(order, func(a, b key) int {
		if c := strings.Compare(a.ticker, b.ticker); c != 0 {
			return c
		}
		return a.day.Compare(b.day)
	})
	out := make([]domain.Bar, len(order))
	for i, k := range order {
		out[i] = *merged[k]
	}
	return out
}

// splitHits partitions a batch into tickers that produced bars and tickers
// that came back empty.
func splitHits(batch []string, bars []domain.Bar) (done, empty []string) {
	hit := make(map[string]struct{}, len(batch))
	for _, b := range bars {
		hit[b.Ticker] = struct{}{}
	}
	for _, t := range batch {
		if _, ok := hit[t]; ok {
			done = append(done, t)
		} else {
			empty = append(empty, t)
		}
	}
	return done, empty
}
