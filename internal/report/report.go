// Package report summarizes stored equity curves as text and HTML charts.
package report

import (
	"errors"
	"fmt"
	"io"
	"math"
	"text/tabwriter"
	"time"

	"github.com/markcheno/go-talib"

	"screener/internal/domain"
)

// TradingDaysPerYear annualizes daily statistics.
const TradingDaysPerYear = 252

// ErrEmptyCurve is returned when there are no points to summarize.
var ErrEmptyCurve = errors.New("report: empty equity curve")

// Summary holds headline statistics of an equity curve.
type Summary struct {
	Strategy    string
	Start       time.Time
	End         time.Time
	Points      int
	FinalValue  float64
	TotalReturn float64
	// MaxDrawdown is the largest peak-to-trough decline as a positive
	// fraction, measured from the starting value of 1.0.
	MaxDrawdown float64
	// DrawdownTrough is the date the maximum drawdown bottomed out.
	DrawdownTrough time.Time
	BestDay        domain.EquityCurvePoint
	WorstDay       domain.EquityCurvePoint
	// Volatility is the population standard deviation of daily returns,
	// annualized. Zero with fewer than two points.
	Volatility float64
}

// Summarize computes the summary of points, which must be in date order.
func Summarize(points []domain.EquityCurvePoint) (Summary, error) {
	if len(points) == 0 {
		return Summary{}, ErrEmptyCurve
	}
	first, last := points[0], points[len(points)-1]
	s := Summary{
		Strategy:    first.StrategyName,
		Start:       first.TradeDate,
		End:         last.TradeDate,
		Points:      len(points),
		FinalValue:  last.PortfolioValue,
		TotalReturn: last.PortfolioValue - 1,
		BestDay:     first,
		WorstDay:    first,
	}

	peak := 1.0
	for _, p := range points {
		if p.DailyReturn > s.BestDay.DailyReturn {
			s.BestDay = p
		}
		if p.DailyReturn < s.WorstDay.DailyReturn {
			s.WorstDay = p
		}
		peak = max(peak, p.PortfolioValue)
		if peak > 0 {
			if dd := 1 - p.PortfolioValue/peak; dd > s.MaxDrawdown {
				s.MaxDrawdown = dd
				s.DrawdownTrough = p.TradeDate
			}
		}
	}
	s.Volatility = volatility(points)
	return s, nil
}

func volatility(points []domain.EquityCurvePoint) float64 {
	n := len(points)
	if n < 2 {
		return 0
	}
	returns := make([]float64, n)
	for i, p := range points {
		returns[i] = p.DailyReturn
	}
	// One window over the whole curve; the last element covers every return.
	sd := talib.StdDev(returns, n, 1)
	return sd[n-1] * math.Sqrt(TradingDaysPerYear)
}

// Drawdowns returns the running drawdown of each point as a non-negative
// fraction of the prior peak.
func Drawdowns(points []domain.EquityCurvePoint) []float64 {
	out := make([]float64, len(points))
	peak := 1.0
	for i, p := range points {
		peak = max(peak, p.PortfolioValue)
		if peak > 0 {
			out[i] = 1 - p.PortfolioValue/peak
		}
	}
	return out
}

// WriteText prints s as an aligned two-column table.
func WriteText(w io.Writer, s Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"strategy", s.Strategy},
		{"period", fmt.Sprintf("%s .. %s", s.Start.Format(domain.DateLayout), s.End.Format(domain.DateLayout))},
		{"points", fmt.Sprint(s.Points)},
		{"final value", fmt.Sprintf("%.4f", s.FinalValue)},
		{"total return", pct(s.TotalReturn)},
		{"max drawdown", maxDrawdown(s)},
		{"volatility", fmt.Sprintf("%.2f%% annualized", s.Volatility*100)},
		{"best day", fmt.Sprintf("%s (%s)", pct(s.BestDay.DailyReturn), s.BestDay.TradeDate.Format(domain.DateLayout))},
		{"worst day", fmt.Sprintf("%s (%s)", pct(s.WorstDay.DailyReturn), s.WorstDay.TradeDate.Format(domain.DateLayout))},
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(tw, "%s\t%s\n", r[0], r[1]); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func maxDrawdown(s Summary) string {
	if s.MaxDrawdown == 0 {
		return pct(0)
	}
	return fmt.Sprintf("%s (trough %s)", pct(-s.MaxDrawdown), s.DrawdownTrough.Format(domain.DateLayout))
}

func pct(f float64) string { return fmt.Sprintf("%+.2f%%", f*100) }
