package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"screener/internal/domain"
)

const (
	chartWidth  = "1100px"
	chartHeight = "420px"
)

// RenderHTML writes a standalone HTML page with the portfolio value line
// and the daily returns of points.
func RenderHTML(w io.Writer, points []domain.EquityCurvePoint) error {
	s, err := Summarize(points)
	if err != nil {
		return err
	}

	dates := make([]string, len(points))
	values := make([]opts.LineData, len(points))
	drawdowns := make([]opts.LineData, len(points))
	returns := make([]opts.BarData, len(points))
	for i, p := range points {
		dates[i] = p.TradeDate.Format(domain.DateLayout)
		values[i] = opts.LineData{Value: p.PortfolioValue}
		returns[i] = opts.BarData{Value: p.DailyReturn * 100}
	}
	for i, dd := range Drawdowns(points) {
		drawdowns[i] = opts.LineData{Value: -dd * 100}
	}

	equity := charts.NewLine()
	equity.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight, PageTitle: s.Strategy}),
		charts.WithTitleOpts(opts.Title{
			Title:    s.Strategy,
			Subtitle: fmt.Sprintf("final %.4f, total %s, max drawdown %s", s.FinalValue, pct(s.TotalReturn), pct(-s.MaxDrawdown)),
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category"}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	equity.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	equity.SetXAxis(dates).AddSeries("portfolio value", values)

	daily := charts.NewBar()
	daily.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: "daily return and drawdown (%)"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
	)
	daily.SetXAxis(dates).AddSeries("daily return", returns)

	dd := charts.NewLine()
	dd.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	dd.SetXAxis(dates).AddSeries("drawdown", drawdowns)
	daily.Overlap(dd)

	page := components.NewPage()
	page.PageTitle = s.Strategy
	page.AddCharts(equity, daily)
	return page.Render(w)
}
