// Package domain holds the value types shared by the signal engine, the
// backtester, the stores and the inspection API.
package domain

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical text form of a trade date.
const DateLayout = "2006-01-02"

// TradingDay truncates t to its calendar date at UTC midnight.
func TradingDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD trade date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing trade date %q: %w", s, err)
	}
	return t, nil
}

// ---------------------------------------------------------------------------
// Prices
// ---------------------------------------------------------------------------

// Bar is one daily OHLCV row as ingested into prices_daily.
type Bar struct {
	Ticker    string
	TradeDate time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	AdjClose  decimal.Decimal
	Volume    int64
}

// Observation returns the adjusted-close observation used by signals and
// backtests.
func (b Bar) Observation() PriceObservation {
	return PriceObservation{
		Ticker:    b.Ticker,
		TradeDate: b.TradeDate,
		Price:     b.AdjClose,
	}
}

// PriceObservation is a single (ticker, date, price) point.
type PriceObservation struct {
	Ticker    string
	TradeDate time.Time
	Price     decimal.Decimal
}

// ---------------------------------------------------------------------------
// Signals
// ---------------------------------------------------------------------------

// RSIBand classifies an RSI reading. The zero value means undefined.
type RSIBand string

const (
	RSIBandUndefined  RSIBand = ""
	RSIBandOversold   RSIBand = "oversold"
	RSIBandNeutral    RSIBand = "neutral"
	RSIBandOverbought RSIBand = "overbought"
)

// Valid reports whether the band is defined.
func (b RSIBand) Valid() bool { return b != RSIBandUndefined }

// Value stores an undefined band as NULL.
func (b RSIBand) Value() (driver.Value, error) {
	if !b.Valid() {
		return nil, nil
	}
	return string(b), nil
}

// Scan reads a nullable text column.
func (b *RSIBand) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*b = RSIBandUndefined
	case string:
		*b = RSIBand(v)
	case []byte:
		*b = RSIBand(v)
	default:
		return fmt.Errorf("scanning rsi band: unsupported type %T", src)
	}
	switch *b {
	case RSIBandUndefined, RSIBandOversold, RSIBandNeutral, RSIBandOverbought:
		return nil
	}
	return fmt.Errorf("scanning rsi band: unknown value %q", string(*b))
}

// SignalRecord holds the indicators derived for one observation. Fields that
// need more history than is available are left invalid.
type SignalRecord struct {
	Ticker       string
	TradeDate    time.Time
	Momentum12_1 sql.Null[float64]
	SMA20        sql.Null[float64]
	SMA50        sql.Null[float64]
	SMA200       sql.Null[float64]
	SMAStackFlag sql.Null[bool]
	RSI14        sql.Null[float64]
	RSIBand      RSIBand
}

// PriceSignal is the price/momentum join consumed by the backtester.
type PriceSignal struct {
	Ticker       string
	TradeDate    time.Time
	Price        decimal.Decimal
	Momentum12_1 sql.Null[float64]
}

// ---------------------------------------------------------------------------
// Backtests
// ---------------------------------------------------------------------------

// EquityCurvePoint is one day of a strategy's equity curve.
type EquityCurvePoint struct {
	StrategyName   string
	TradeDate      time.Time
	DailyReturn    float64
	PortfolioValue float64
}

// BacktestRun records a single backtest execution.
type BacktestRun struct {
	RunID        string
	StrategyName string
	CreatedAt    time.Time
	StartDate    time.Time
	EndDate      time.Time
	Points       int
	SkippedDates int
	FinalValue   float64
}

// Skip is a report entry for a ticker or date left out of a batch.
type Skip struct {
	Ticker    string
	TradeDate time.Time
	Reason    string
}

// Valid returns a defined nullable value.
func Valid[T any](v T) sql.Null[T] {
	return sql.Null[T]{V: v, Valid: true}
}
