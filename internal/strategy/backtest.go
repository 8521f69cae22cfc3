package strategy

import (
	"errors"
	"log/slog"
	"sort"
	"time"

	"screener/internal/domain"
)

// ReasonEmptyCohort marks a date with no eligible or selected candidates.
const ReasonEmptyCohort = "no eligible candidates"

// Result holds the equity curve produced by a backtest run and the inputs
// it had to leave out.
type Result struct {
	Strategy       string
	Points         []domain.EquityCurvePoint
	SkippedDates   []domain.Skip
	SkippedTickers []domain.Skip
}

// FinalValue returns the last portfolio value, or 1 for an empty curve.
func (r *Result) FinalValue() float64 {
	if len(r.Points) == 0 {
		return 1
	}
	return r.Points[len(r.Points)-1].PortfolioValue
}

// Backtester replays a joined price/momentum table through a strategy with
// daily rebalancing and computes the compounded equity curve.
type Backtester struct {
	registry *Registry
	log      *slog.Logger
}

// NewBacktester creates a Backtester that looks up strategies in the provided
// registry.
func NewBacktester(registry *Registry, log *slog.Logger) *Backtester {
	if log == nil {
		log = slog.Default()
	}
	return &Backtester{
		registry: registry,
		log:      log.With("component", "backtest"),
	}
}

// Run executes the named strategy over rows. Each row's return is computed
// from the same ticker's preceding row; rows without a defined momentum or
// return are ineligible. Dates whose cohort ends up empty are omitted from
// the curve and listed in Result.SkippedDates. Run does not modify rows.
func (bt *Backtester) Run(name string, rows []domain.PriceSignal) (*Result, error) {
	strat, err := bt.registry.Lookup(name)
	if err != nil {
		return nil, err
	}

	res := &Result{Strategy: name}

	candidates, dates, skipped := dailyCandidates(rows)
	for _, err := range skipped {
		var oe *domain.InputOrderingError
		if errors.As(err, &oe) {
			bt.log.Warn("skipping ticker", "ticker", oe.Ticker, "err", err)
			res.SkippedTickers = append(res.SkippedTickers, domain.Skip{
				Ticker: oe.Ticker, TradeDate: oe.Date, Reason: oe.Reason,
			})
		}
	}

	value := 1.0
	for _, d := range dates {
		cohort := candidates[d]
		var picked []Candidate
		if len(cohort) > 0 {
			picked = strat.Select(cohort)
		}
		if len(picked) == 0 {
			bt.log.Debug("empty cohort", "date", d.Format(domain.DateLayout))
			res.SkippedDates = append(res.SkippedDates, domain.Skip{
				TradeDate: d, Reason: ReasonEmptyCohort,
			})
			continue
		}

		var sum float64
		for _, c := range picked {
			sum += c.Return
		}
		r := sum / float64(len(picked))
		value *= 1 + r

		res.Points = append(res.Points, domain.EquityCurvePoint{
			StrategyName:   name,
			TradeDate:      d,
			DailyReturn:    r,
			PortfolioValue: value,
		})
	}

	bt.log.Info("backtest complete",
		"strategy", name,
		"rows", len(rows),
		"points", len(res.Points),
		"skipped_dates", len(res.SkippedDates),
		"skipped_tickers", len(res.SkippedTickers),
		"final_value", res.FinalValue(),
	)
	return res, nil
}

// dailyCandidates groups eligible rows by trade date. It returns every date
// seen in the input in ascending order (eligible or not), and an ordering
// error for each ticker with duplicate dates; those tickers contribute nothing.
func dailyCandidates(rows []domain.PriceSignal) (map[time.Time][]Candidate, []time.Time, []error) {
	byTicker := make(map[string][]domain.PriceSignal)
	seen := make(map[time.Time]struct{})
	for _, r := range rows {
		byTicker[r.Ticker] = append(byTicker[r.Ticker], r)
		seen[domain.TradingDay(r.TradeDate)] = struct{}{}
	}

	tickers := make([]string, 0, len(byTicker))
	for t := range byTicker {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	var errs []error
	candidates := make(map[time.Time][]Candidate)
	for _, ticker := range tickers {
		series := byTicker[ticker]
		sort.SliceStable(series, func(i, j int) bool {
			return series[i].TradeDate.Before(series[j].TradeDate)
		})
		dates := make([]time.Time, len(series))
		for i, r := range series {
			dates[i] = r.TradeDate
		}
		if err := domain.CheckOrdering(ticker, dates); err != nil {
			errs = append(errs, err)
			continue
		}

		for i := 1; i < len(series); i++ {
			cur := series[i]
			if !cur.Momentum12_1.Valid {
				continue
			}
			prev := series[i-1].Price.InexactFloat64()
			if prev == 0 {
				continue
			}
			day := domain.TradingDay(cur.TradeDate)
			candidates[day] = append(candidates[day], Candidate{
				Ticker:    ticker,
				TradeDate: day,
				Momentum:  cur.Momentum12_1.V,
				Return:    cur.Price.InexactFloat64()/prev - 1,
			})
		}
	}

	dates := make([]time.Time, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return candidates, dates, errs
}
