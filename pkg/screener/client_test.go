package screener

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"screener/internal/api"
	"screener/internal/domain"
	"screener/internal/store"
)

type memStores struct {
	signals map[string][]domain.SignalRecord
	equity  map[string][]domain.EquityCurvePoint
	runs    []domain.BacktestRun
}

func (m *memStores) UpsertSignals(context.Context, []domain.SignalRecord) error { return nil }

func (m *memStores) ReadSignals(_ context.Context, ticker string, r store.Range) ([]domain.SignalRecord, error) {
	var out []domain.SignalRecord
	for _, s := range m.signals[ticker] {
		if r.Contains(s.TradeDate) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStores) ReadPriceSignals(context.Context) ([]domain.PriceSignal, error) { return nil, nil }

func (m *memStores) UpsertEquity(context.Context, []domain.EquityCurvePoint) error { return nil }

func (m *memStores) ReadEquity(_ context.Context, strategy string) ([]domain.EquityCurvePoint, error) {
	return m.equity[strategy], nil
}

func (m *memStores) SaveRun(context.Context, *domain.BacktestRun) error { return nil }

func (m *memStores) ListRuns(_ context.Context, strategy string, limit int) ([]domain.BacktestRun, error) {
	var out []domain.BacktestRun
	for _, r := range m.runs {
		if strategy == "" || r.StrategyName == strategy {
			out = append(out, r)
		}
	}
	return out[:min(limit, len(out))], nil
}

func day(d int) time.Time { return time.Date(2024, 2, d, 0, 0, 0, 0, time.UTC) }

func newTestClient(t *testing.T, m *memStores) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := api.NewServer("bufnet", api.NewService(m, nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	c, err := NewClient("passthrough:///bufnet", grpc.WithContextDialer(
		func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) },
	))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientRoundTrip(t *testing.T) {
	m := &memStores{
		signals: map[string][]domain.SignalRecord{"MSFT": {
			{Ticker: "MSFT", TradeDate: day(1), RSI14: domain.Valid(25.0), RSIBand: domain.RSIBandOversold},
			{Ticker: "MSFT", TradeDate: day(2)},
			{Ticker: "MSFT", TradeDate: day(5), SMAStackFlag: domain.Valid(false)},
		}},
		equity: map[string][]domain.EquityCurvePoint{"top10_momentum_daily": {
			{StrategyName: "top10_momentum_daily", TradeDate: day(1), DailyReturn: 0.005, PortfolioValue: 1.005},
		}},
		runs: []domain.BacktestRun{
			{RunID: "b", StrategyName: "top10_momentum_daily", CreatedAt: time.Unix(1700000000, 0).UTC(), Points: 1, FinalValue: 1.005},
			{RunID: "a", StrategyName: "top5_momentum_daily", CreatedAt: time.Unix(1690000000, 0).UTC()},
		},
	}
	c := newTestClient(t, m)
	ctx := context.Background()

	sigs, err := c.Signals(ctx, "msft", day(2), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, m.signals["MSFT"][1:], sigs)

	curve, err := c.EquityCurve(ctx, "top10_momentum_daily")
	require.NoError(t, err)
	assert.Equal(t, m.equity["top10_momentum_daily"], curve)

	runs, err := c.Runs(ctx, "top10_momentum_daily", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "b", runs[0].RunID)
	assert.True(t, runs[0].StartDate.IsZero())
}

func TestClientErrorCodes(t *testing.T) {
	c := newTestClient(t, &memStores{})

	_, err := c.EquityCurve(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))
}
