package signal

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screener/internal/domain"
)

var day0 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func series(ticker string, prices []float64) []domain.PriceObservation {
	out := make([]domain.PriceObservation, len(prices))
	for i, p := range prices {
		out[i] = domain.PriceObservation{
			Ticker:    ticker,
			TradeDate: day0.AddDate(0, 0, i),
			Price:     decimal.NewFromFloat(p),
		}
	}
	return out
}

func rising(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func TestComputeOneRecordPerObservation(t *testing.T) {
	for _, n := range []int{0, 1, 19, 20, 260} {
		recs, err := Compute(series("AAPL", rising(n, 100, 1)))
		require.NoError(t, err)
		assert.Len(t, recs, n)
	}
}

func TestComputeSMAStrictMinimumPeriod(t *testing.T) {
	recs, err := Compute(series("AAPL", rising(210, 1, 1)))
	require.NoError(t, err)

	for i, r := range recs {
		assert.Equal(t, i >= 19, r.SMA20.Valid, "sma_20 at %d", i)
		assert.Equal(t, i >= 49, r.SMA50.Valid, "sma_50 at %d", i)
		assert.Equal(t, i >= 199, r.SMA200.Valid, "sma_200 at %d", i)
	}
	// Mean of 1..20.
	assert.InDelta(t, 10.5, recs[19].SMA20.V, 1e-9)
	// Mean of 2..21.
	assert.InDelta(t, 11.5, recs[20].SMA20.V, 1e-9)
}

func TestComputeSMAFlatTailIsExact(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	prices := make([]float64, 0, 600)
	p := 100.0
	for i := 0; i < 350; i++ {
		p = math.Round((p+rng.NormFloat64())*100) / 100
		prices = append(prices, p)
	}
	for i := 0; i < 250; i++ {
		prices = append(prices, p)
	}

	recs, err := Compute(series("FLAT", prices))
	require.NoError(t, err)

	last := recs[len(recs)-1]
	want := decimal.NewFromFloat(p).InexactFloat64()
	assert.Equal(t, want, last.SMA20.V)
	assert.Equal(t, want, last.SMA50.V)
	assert.Equal(t, want, last.SMA200.V)
	assert.Equal(t, sql.Null[bool]{V: false, Valid: true}, last.SMAStackFlag)
}

func TestSMAMatchesWindowMean(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	prices := make([]float64, 400)
	for i := range prices {
		prices[i] = 50 + 10*rng.Float64()
	}
	got := SMA(prices, 20)
	for i := 19; i < len(prices); i++ {
		var sum float64
		for _, v := range prices[i-19 : i+1] {
			sum += v
		}
		require.True(t, got[i].Valid)
		assert.InDelta(t, sum/20, got[i].V, 1e-9, "window ending %d", i)
	}
}

func TestComputeStackFlag(t *testing.T) {
	recs, err := Compute(series("AAPL", rising(220, 10, 0.5)))
	require.NoError(t, err)

	for i, r := range recs {
		if !r.SMA20.Valid || !r.SMA50.Valid || !r.SMA200.Valid {
			assert.False(t, r.SMAStackFlag.Valid, "stack flag defined at %d with undefined sma", i)
			continue
		}
		require.True(t, r.SMAStackFlag.Valid, "stack flag undefined at %d", i)
		// Strictly rising prices put every average below the shorter one.
		assert.True(t, r.SMAStackFlag.V, "stack flag at %d", i)
	}

	falling := rising(220, 200, -0.5)
	recs, err = Compute(series("XOM", falling))
	require.NoError(t, err)
	last := recs[len(recs)-1]
	require.True(t, last.SMAStackFlag.Valid)
	assert.False(t, last.SMAStackFlag.V)
}

func TestStackFlagUndefinedInputs(t *testing.T) {
	v := domain.Valid(1.0)
	assert.False(t, StackFlag(5, sql.Null[float64]{}, v, v).Valid)
	assert.False(t, StackFlag(5, v, sql.Null[float64]{}, v).Valid)
	assert.False(t, StackFlag(5, v, v, sql.Null[float64]{}).Valid)

	got := StackFlag(4, domain.Valid(3.0), domain.Valid(2.0), domain.Valid(1.0))
	assert.Equal(t, domain.Valid(true), got)
	got = StackFlag(4, domain.Valid(3.0), domain.Valid(3.0), domain.Valid(1.0))
	assert.Equal(t, domain.Valid(false), got)
}

func TestComputeMomentum(t *testing.T) {
	prices := rising(260, 100, 1)
	recs, err := Compute(series("MSFT", prices))
	require.NoError(t, err)

	for i := 0; i < MomentumLookback; i++ {
		assert.False(t, recs[i].Momentum12_1.Valid, "momentum defined at %d", i)
	}
	for i := MomentumLookback; i < len(prices); i++ {
		require.True(t, recs[i].Momentum12_1.Valid, "momentum undefined at %d", i)
		want := prices[i-MomentumSkip]/prices[i-MomentumLookback] - 1
		assert.InDelta(t, want, recs[i].Momentum12_1.V, 1e-12)
	}
}

func TestComputeMomentumZeroBase(t *testing.T) {
	prices := rising(253, 1, 1)
	prices[0] = 0
	recs, err := Compute(series("ZERO", prices))
	require.NoError(t, err)
	assert.False(t, recs[252].Momentum12_1.Valid)
}

func TestComputeRSIAllGains(t *testing.T) {
	recs, err := Compute(series("AAPL", rising(30, 50, 0.25)))
	require.NoError(t, err)

	for i := 0; i < RSIPeriod; i++ {
		assert.False(t, recs[i].RSI14.Valid, "rsi defined at %d", i)
		assert.Equal(t, domain.RSIBandUndefined, recs[i].RSIBand)
	}
	for i := RSIPeriod; i < len(recs); i++ {
		require.True(t, recs[i].RSI14.Valid)
		assert.Equal(t, 100.0, recs[i].RSI14.V)
		assert.Equal(t, domain.RSIBandOverbought, recs[i].RSIBand)
	}
}

func TestComputeRSIAllLosses(t *testing.T) {
	recs, err := Compute(series("AAPL", rising(20, 50, -1)))
	require.NoError(t, err)
	assert.Equal(t, 0.0, recs[RSIPeriod].RSI14.V)
	assert.Equal(t, domain.RSIBandOversold, recs[RSIPeriod].RSIBand)
}

func TestComputeRSIFlatWindowUndefined(t *testing.T) {
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 42
	}
	recs, err := Compute(series("FLAT", prices))
	require.NoError(t, err)
	for _, r := range recs {
		assert.False(t, r.RSI14.Valid)
		assert.False(t, r.RSIBand.Valid())
	}
}

func TestComputeRSISimpleMeans(t *testing.T) {
	// Alternating +2 / -1 deltas: 7 gains of 2 and 7 losses of 1 per window.
	prices := []float64{100}
	for i := 1; i <= 20; i++ {
		if i%2 == 1 {
			prices = append(prices, prices[i-1]+2)
		} else {
			prices = append(prices, prices[i-1]-1)
		}
	}
	recs, err := Compute(series("ALT", prices))
	require.NoError(t, err)

	rs := (14.0 / 14) / (7.0 / 14)
	want := 100 - 100/(1+rs)
	assert.InDelta(t, want, recs[14].RSI14.V, 1e-9)
	assert.Equal(t, domain.RSIBandNeutral, recs[14].RSIBand)
}

func TestClassifyBoundaries(t *testing.T) {
	cases := []struct {
		rsi  sql.Null[float64]
		want domain.RSIBand
	}{
		{sql.Null[float64]{}, domain.RSIBandUndefined},
		{domain.Valid(0.0), domain.RSIBandOversold},
		{domain.Valid(29.999), domain.RSIBandOversold},
		{domain.Valid(30.0), domain.RSIBandNeutral},
		{domain.Valid(50.0), domain.RSIBandNeutral},
		{domain.Valid(70.0), domain.RSIBandNeutral},
		{domain.Valid(70.001), domain.RSIBandOverbought},
		{domain.Valid(100.0), domain.RSIBandOverbought},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.rsi), "Classify(%v)", c.rsi)
	}
}

func TestComputeRejectsBadOrdering(t *testing.T) {
	obs := series("AAPL", rising(5, 1, 1))
	obs[3].TradeDate = obs[2].TradeDate

	_, err := Compute(obs)
	var oe *domain.InputOrderingError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, 3, oe.Index)
	assert.Equal(t, "duplicate trade date", oe.Reason)

	obs = series("AAPL", rising(5, 1, 1))
	obs[1], obs[2] = obs[2], obs[1]
	_, err = Compute(obs)
	assert.True(t, errors.Is(err, domain.ErrInputOrdering))

	obs = series("AAPL", rising(5, 1, 1))
	obs[4].Ticker = "MSFT"
	_, err = Compute(obs)
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, 4, oe.Index)
}

func TestComputeDeterministic(t *testing.T) {
	obs := series("AAPL", rising(300, 20, 0.3))
	a, err := Compute(obs)
	require.NoError(t, err)
	b, err := Compute(obs)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestComputeAllMatchesSequential(t *testing.T) {
	var table []domain.PriceObservation
	table = append(table, series("MSFT", rising(270, 300, -0.2))...)
	table = append(table, series("AAPL", rising(270, 100, 0.4))...)
	table = append(table, series("JPM", rising(40, 150, 0.1))...)

	batch, err := ComputeAll(context.Background(), table, Options{Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, batch.Tickers)
	assert.Equal(t, 3, batch.Computed)
	assert.Empty(t, batch.Skipped)

	var want []domain.SignalRecord
	for _, ticker := range []string{"AAPL", "JPM", "MSFT"} {
		_, byTicker := Partition(table)
		recs, err := Compute(byTicker[ticker])
		require.NoError(t, err)
		want = append(want, recs...)
	}
	assert.Equal(t, want, batch.Records)
}

func TestComputeAllSkipsMalformedTicker(t *testing.T) {
	bad := series("BAD", rising(10, 1, 1))
	bad[5].TradeDate = bad[4].TradeDate

	table := append(series("GOOD", rising(10, 1, 1)), bad...)
	batch, err := ComputeAll(context.Background(), table, Options{Workers: 4})
	require.NoError(t, err)

	assert.Equal(t, 2, batch.Tickers)
	assert.Equal(t, 1, batch.Computed)
	require.Len(t, batch.Skipped, 1)
	assert.Equal(t, "BAD", batch.Skipped[0].Ticker)
	assert.Len(t, batch.Records, 10)
	for _, r := range batch.Records {
		assert.Equal(t, "GOOD", r.Ticker)
	}
}

func TestComputeAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ComputeAll(ctx, series("AAPL", rising(10, 1, 1)), Options{Workers: 1})
	assert.ErrorIs(t, err, context.Canceled)
}
