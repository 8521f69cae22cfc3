// Package metrics holds the Prometheus counters shared by the batch jobs and
// the inspection server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BarsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "screener_bars_ingested_total", Help: "Daily bars written by ingestion"},
		[]string{"source"},
	)
	SignalTickers = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "screener_signal_tickers_total", Help: "Tickers processed by the signal batch"},
		[]string{"outcome"},
	)
	SignalRecords = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "screener_signal_records_total", Help: "Signal records upserted"},
	)
	BacktestPoints = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "screener_backtest_points_total", Help: "Equity curve points produced"},
		[]string{"strategy"},
	)
	BacktestSkippedDates = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "screener_backtest_skipped_dates_total", Help: "Trade dates left out for an empty cohort"},
		[]string{"strategy"},
	)
	RPCRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "screener_rpc_requests_total", Help: "Inspection RPCs served"},
		[]string{"method", "code"},
	)
)

func init() {
	prometheus.MustRegister(BarsIngested, SignalTickers, SignalRecords, BacktestPoints, BacktestSkippedDates, RPCRequests)
}

// Serve exposes /metrics on addr in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// WriteTextfile writes the default registry to path in the text exposition
// format. An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
