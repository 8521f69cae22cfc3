package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTypesExist(t *testing.T) {
	bar := Bar{}
	if bar.Ticker != "" {
		t.Error("expected empty Ticker for zero-value Bar")
	}
	if !bar.TradeDate.IsZero() {
		t.Error("expected zero TradeDate for zero-value Bar")
	}
	if !bar.AdjClose.IsZero() || !bar.Close.IsZero() {
		t.Error("expected zero prices for zero-value Bar")
	}

	rec := SignalRecord{}
	if rec.SMA20.Valid || rec.RSI14.Valid || rec.SMAStackFlag.Valid {
		t.Error("expected zero-value SignalRecord fields to be undefined")
	}
	if rec.RSIBand.Valid() {
		t.Error("expected zero-value RSIBand to be undefined")
	}

	if RSIBandOversold != "oversold" || RSIBandNeutral != "neutral" || RSIBandOverbought != "overbought" {
		t.Error("RSIBand constants have unexpected values")
	}
}

func TestBarObservationUsesAdjustedClose(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bar := Bar{
		Ticker:    "AAPL",
		TradeDate: day,
		Close:     decimal.RequireFromString("180.00"),
		AdjClose:  decimal.RequireFromString("179.25"),
	}
	obs := bar.Observation()
	if !obs.Price.Equal(decimal.RequireFromString("179.25")) {
		t.Errorf("Observation().Price = %s, want 179.25", obs.Price)
	}
	if obs.Ticker != "AAPL" || !obs.TradeDate.Equal(day) {
		t.Errorf("Observation() = %+v, want AAPL on %s", obs, day)
	}
}

func TestTradingDay(t *testing.T) {
	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	ts := time.Date(2024, 6, 14, 0, 0, 0, 0, et)
	got := TradingDay(ts)
	want := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("TradingDay(%s) = %s, want %s", ts, got, want)
	}
}

func TestRSIBandScanValue(t *testing.T) {
	var b RSIBand
	if err := b.Scan(nil); err != nil || b.Valid() {
		t.Fatalf("Scan(nil) = %v, band %q", err, b)
	}
	if v, _ := b.Value(); v != nil {
		t.Errorf("undefined band Value() = %v, want nil", v)
	}

	if err := b.Scan([]byte("overbought")); err != nil {
		t.Fatalf("Scan(overbought): %v", err)
	}
	if b != RSIBandOverbought {
		t.Errorf("band = %q, want overbought", b)
	}
	if v, _ := b.Value(); v != "overbought" {
		t.Errorf("Value() = %v, want overbought", v)
	}

	if err := b.Scan("sideways"); err == nil {
		t.Error("Scan(sideways) should fail")
	}
}

func TestCheckOrdering(t *testing.T) {
	d := func(day int) time.Time { return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC) }

	if err := CheckOrdering("AAPL", []time.Time{d(1), d(2), d(5)}); err != nil {
		t.Fatalf("CheckOrdering(increasing) = %v", err)
	}

	err := CheckOrdering("AAPL", []time.Time{d(1), d(2), d(2)})
	var oe *InputOrderingError
	if !errors.As(err, &oe) {
		t.Fatalf("CheckOrdering(duplicate) = %v, want *InputOrderingError", err)
	}
	if oe.Index != 2 || oe.Ticker != "AAPL" {
		t.Errorf("InputOrderingError = %+v, want index 2 for AAPL", oe)
	}
	if !errors.Is(err, ErrInputOrdering) {
		t.Error("errors.Is(err, ErrInputOrdering) = false")
	}

	err = CheckOrdering("MSFT", []time.Time{d(3), d(1)})
	if !errors.As(err, &oe) || oe.Reason != "trade date out of order" {
		t.Errorf("CheckOrdering(decreasing) = %v", err)
	}
}
