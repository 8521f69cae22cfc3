// Package signal derives per-ticker technical indicators from daily price
// history: 12-1 momentum, simple moving averages, the bullish SMA stack and a
// simple-mean RSI with its band.
package signal

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"screener/internal/domain"
)

// Window lengths in trading days.
const (
	MomentumLookback = 252
	MomentumSkip     = 21
	RSIPeriod        = 14

	OversoldBelow   = 30.0
	OverboughtAbove = 70.0
)

// SMAPeriods lists the moving-average windows in stack order.
var SMAPeriods = [3]int{20, 50, 200}

// Compute derives one SignalRecord per observation of a single ticker. The
// observations must be strictly increasing by trade date; duplicates,
// out-of-order dates and mixed tickers return an *domain.InputOrderingError.
// Compute never sorts its input.
func Compute(obs []domain.PriceObservation) ([]domain.SignalRecord, error) {
	if len(obs) == 0 {
		return []domain.SignalRecord{}, nil
	}
	if err := validate(obs); err != nil {
		return nil, err
	}

	prices := make([]float64, len(obs))
	for i, o := range obs {
		prices[i] = o.Price.InexactFloat64()
	}

	sma20 := SMA(prices, SMAPeriods[0])
	sma50 := SMA(prices, SMAPeriods[1])
	sma200 := SMA(prices, SMAPeriods[2])
	rsi := RSI(prices, RSIPeriod)

	out := make([]domain.SignalRecord, len(obs))
	for t, o := range obs {
		out[t] = domain.SignalRecord{
			Ticker:       o.Ticker,
			TradeDate:    o.TradeDate,
			Momentum12_1: momentum(prices, t),
			SMA20:        sma20[t],
			SMA50:        sma50[t],
			SMA200:       sma200[t],
			SMAStackFlag: StackFlag(prices[t], sma20[t], sma50[t], sma200[t]),
			RSI14:        rsi[t],
			RSIBand:      Classify(rsi[t]),
		}
	}
	return out, nil
}

func validate(obs []domain.PriceObservation) error {
	ticker := obs[0].Ticker
	dates := make([]time.Time, len(obs))
	for i, o := range obs {
		if o.Ticker != ticker {
			return &domain.InputOrderingError{
				Ticker: ticker,
				Index:  i,
				Prev:   obs[i-1].TradeDate,
				Date:   o.TradeDate,
				Reason: fmt.Sprintf("mixed ticker %q in series", o.Ticker),
			}
		}
		dates[i] = o.TradeDate
	}
	return domain.CheckOrdering(ticker, dates)
}

// momentum returns p[t-21]/p[t-252] - 1, undefined before index 252 or when
// the base price is zero.
func momentum(prices []float64, t int) sql.Null[float64] {
	if t < MomentumLookback {
		return sql.Null[float64]{}
	}
	base := prices[t-MomentumLookback]
	if base == 0 {
		return sql.Null[float64]{}
	}
	return domain.Valid(prices[t-MomentumSkip]/base - 1)
}

// SMA returns the trailing simple moving average with a strict minimum
// period: element i is defined only when i >= period-1. Each window is summed
// as offsets from its last price, so a window of equal prices averages to
// exactly that price.
func SMA(prices []float64, period int) []sql.Null[float64] {
	out := make([]sql.Null[float64], len(prices))
	if period <= 0 || len(prices) < period {
		return out
	}
	n := float64(period)
	for i := period - 1; i < len(prices); i++ {
		ref := prices[i]
		var offset float64
		for _, p := range prices[i-period+1 : i+1] {
			offset += p - ref
		}
		out[i] = domain.Valid(ref + offset/n)
	}
	return out
}

// RSI returns the relative strength index over simple trailing means of
// gains and losses. Element t is defined once period deltas exist
// (t >= period). A window with no losses yields exactly 100; a window with
// neither gains nor losses is undefined.
func RSI(prices []float64, period int) []sql.Null[float64] {
	out := make([]sql.Null[float64], len(prices))
	if period <= 0 || len(prices) <= period {
		return out
	}

	gains := make([]float64, len(prices))
	losses := make([]float64, len(prices))
	for t := 1; t < len(prices); t++ {
		delta := prices[t] - prices[t-1]
		if delta > 0 {
			gains[t] = delta
		} else if delta < 0 {
			losses[t] = -delta
		}
	}

	n := float64(period)
	for t := period; t < len(prices); t++ {
		var sumGain, sumLoss float64
		for k := t - period + 1; k <= t; k++ {
			sumGain += gains[k]
			sumLoss += losses[k]
		}
		avgGain, avgLoss := sumGain/n, sumLoss/n

		rs := avgGain / avgLoss // +Inf when avgLoss == 0, NaN when both are 0
		if math.IsNaN(rs) {
			continue
		}
		out[t] = domain.Valid(100 - 100/(1+rs))
	}
	return out
}

// StackFlag reports price > sma20 > sma50 > sma200. It is undefined when any
// average is undefined.
func StackFlag(price float64, sma20, sma50, sma200 sql.Null[float64]) sql.Null[bool] {
	if !sma20.Valid || !sma50.Valid || !sma200.Valid {
		return sql.Null[bool]{}
	}
	return domain.Valid(price > sma20.V && sma20.V > sma50.V && sma50.V > sma200.V)
}

// Classify maps an RSI reading to its band. 30 and 70 are neutral.
func Classify(rsi sql.Null[float64]) domain.RSIBand {
	switch {
	case !rsi.Valid:
		return domain.RSIBandUndefined
	case rsi.V < OversoldBelow:
		return domain.RSIBandOversold
	case rsi.V > OverboughtAbove:
		return domain.RSIBandOverbought
	default:
		return domain.RSIBandNeutral
	}
}
