package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screener/internal/domain"
)

// runStoreConformance exercises a freshly migrated, empty Store.
func runStoreConformance(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	bars := []domain.Bar{
		{Ticker: "MSFT", TradeDate: date(2024, 1, 2), Open: dec("370.1"), High: dec("375"), Low: dec("366.5"),
			Close: dec("370.87"), AdjClose: dec("368.123456"), Volume: 25258600},
		{Ticker: "AAPL", TradeDate: date(2024, 1, 3), Open: dec("184.22"), High: dec("185.88"), Low: dec("183.43"),
			Close: dec("184.25"), AdjClose: dec("183.5"), Volume: 58414500},
		{Ticker: "AAPL", TradeDate: date(2024, 1, 2), Open: dec("187.15"), High: dec("188.44"), Low: dec("183.89"),
			Close: dec("185.64"), AdjClose: dec("184.9"), Volume: 82488700},
	}

	t.Run("bars", func(t *testing.T) {
		require.NoError(t, s.WriteBars(ctx, bars))
		// Re-ingesting an existing date keeps the stored row.
		dup := bars[2]
		dup.AdjClose = dec("1")
		require.NoError(t, s.WriteBars(ctx, []domain.Bar{dup}))

		tickers, err := s.ListTickers(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"AAPL", "MSFT"}, tickers)

		got, err := s.ReadBars(ctx, "AAPL", Range{})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.True(t, got[0].TradeDate.Equal(date(2024, 1, 2)))
		assert.True(t, got[0].AdjClose.Equal(dec("184.9")), "adj_close = %s", got[0].AdjClose)
		assert.True(t, got[0].High.Equal(dec("188.44")))
		assert.Equal(t, int64(82488700), got[0].Volume)

		got, err = s.ReadBars(ctx, "AAPL", Range{Start: date(2024, 1, 3)})
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("prices", func(t *testing.T) {
		obs, err := s.ReadPrices(ctx, Range{})
		require.NoError(t, err)
		require.Len(t, obs, 3)
		assert.Equal(t, "AAPL", obs[0].Ticker)
		assert.True(t, obs[0].TradeDate.Equal(date(2024, 1, 2)))
		assert.Equal(t, "AAPL", obs[1].Ticker)
		assert.Equal(t, "MSFT", obs[2].Ticker)
		assert.True(t, obs[2].Price.Equal(dec("368.123456")))

		obs, err = s.ReadPrices(ctx, Range{End: date(2024, 1, 2)})
		require.NoError(t, err)
		assert.Len(t, obs, 2)
	})

	t.Run("signals", func(t *testing.T) {
		recs := []domain.SignalRecord{
			{Ticker: "AAPL", TradeDate: date(2024, 1, 2)},
			{
				Ticker: "AAPL", TradeDate: date(2024, 1, 3),
				Momentum12_1: domain.Valid(0.42), SMA20: domain.Valid(181.5),
				SMA50: domain.Valid(179.25), SMA200: domain.Valid(170.0),
				SMAStackFlag: domain.Valid(true), RSI14: domain.Valid(100.0),
				RSIBand: domain.RSIBandOverbought,
			},
		}
		require.NoError(t, s.UpsertSignals(ctx, recs))

		// Replaces every column of an existing row.
		recs[1].SMAStackFlag = domain.Valid(false)
		recs[1].RSI14 = domain.Valid(30.0)
		recs[1].RSIBand = domain.RSIBandNeutral
		recs[1].SMA200.Valid = false
		require.NoError(t, s.UpsertSignals(ctx, recs[1:]))

		got, err := s.ReadSignals(ctx, "AAPL", Range{})
		require.NoError(t, err)
		require.Len(t, got, 2)

		assert.False(t, got[0].Momentum12_1.Valid)
		assert.False(t, got[0].SMAStackFlag.Valid)
		assert.False(t, got[0].RSIBand.Valid())

		assert.InDelta(t, 0.42, got[1].Momentum12_1.V, 1e-12)
		assert.Equal(t, domain.Valid(false), got[1].SMAStackFlag)
		assert.Equal(t, domain.Valid(30.0), got[1].RSI14)
		assert.Equal(t, domain.RSIBandNeutral, got[1].RSIBand)
		assert.False(t, got[1].SMA200.Valid)
	})

	t.Run("price signals", func(t *testing.T) {
		rows, err := s.ReadPriceSignals(ctx)
		require.NoError(t, err)
		// MSFT has no signals and drops out of the join.
		require.Len(t, rows, 2)
		assert.False(t, rows[0].Momentum12_1.Valid)
		assert.True(t, rows[1].Price.Equal(dec("183.5")))
		assert.Equal(t, domain.Valid(0.42), rows[1].Momentum12_1)
	})

	t.Run("equity", func(t *testing.T) {
		points := []domain.EquityCurvePoint{
			{StrategyName: "top10_momentum_daily", TradeDate: date(2024, 1, 3), DailyReturn: 0.01, PortfolioValue: 1.01},
			{StrategyName: "top10_momentum_daily", TradeDate: date(2024, 1, 2), DailyReturn: 0.0, PortfolioValue: 1.0},
			{StrategyName: "other", TradeDate: date(2024, 1, 2), DailyReturn: -0.5, PortfolioValue: 0.5},
		}
		require.NoError(t, s.UpsertEquity(ctx, points))
		require.NoError(t, s.UpsertEquity(ctx, []domain.EquityCurvePoint{
			{StrategyName: "top10_momentum_daily", TradeDate: date(2024, 1, 3), DailyReturn: 0.02, PortfolioValue: 1.02},
		}))

		got, err := s.ReadEquity(ctx, "top10_momentum_daily")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.True(t, got[0].TradeDate.Equal(date(2024, 1, 2)))
		assert.Equal(t, 1.02, got[1].PortfolioValue)
		assert.Equal(t, 0.02, got[1].DailyReturn)
	})

	t.Run("runs", func(t *testing.T) {
		base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		for i, id := range []string{"01A", "01B", "01C"} {
			strat := "top10_momentum_daily"
			if i == 1 {
				strat = "top5_momentum_daily"
			}
			require.NoError(t, s.SaveRun(ctx, &domain.BacktestRun{
				RunID: id, StrategyName: strat, CreatedAt: base.Add(time.Duration(i) * time.Minute),
				StartDate: date(2016, 1, 4), EndDate: date(2024, 1, 3),
				Points: 2000 + i, SkippedDates: 252, FinalValue: 2.5,
			}))
		}

		all, err := s.ListRuns(ctx, "", 0)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "01C", all[0].RunID)
		assert.True(t, all[0].CreatedAt.Equal(base.Add(2*time.Minute)))
		assert.True(t, all[0].StartDate.Equal(date(2016, 1, 4)))

		top10, err := s.ListRuns(ctx, "top10_momentum_daily", 1)
		require.NoError(t, err)
		require.Len(t, top10, 1)
		assert.Equal(t, "01C", top10[0].RunID)
		assert.Equal(t, 2002, top10[0].Points)
	})
}
