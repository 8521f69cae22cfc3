package us

import (
	"errors"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"screener/internal/domain"
)

// settleDelay is how long after the official close daily bars are treated
// as final.
const settleDelay = 30 * time.Minute

// calendarClient is the slice of the Alpaca trading client used here.
type calendarClient interface {
	GetCalendar(req alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error)
}

// eastern returns the exchange time zone, falling back to a fixed EST offset
// when tzdata is unavailable.
func eastern() *time.Location {
	if loc, err := time.LoadLocation("America/New_York"); err == nil {
		return loc
	}
	return time.FixedZone("EST", -5*60*60)
}

// LatestFinishedTradingDay returns the most recent session that closed at
// least settleDelay before now, as a UTC-midnight trade date.
func LatestFinishedTradingDay(client calendarClient, now time.Time) (time.Time, error) {
	et := eastern()
	now = now.In(et)

	days, err := client.GetCalendar(alpaca.GetCalendarRequest{
		Start: now.AddDate(0, 0, -10),
		End:   now,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("GetCalendar: %w", err)
	}
	if len(days) == 0 {
		return time.Time{}, errors.New("no trading days returned from calendar")
	}

	for i := len(days) - 1; i >= 0; i-- {
		day, err := domain.ParseDate(days[i].Date)
		if err != nil {
			continue
		}
		closeAt, err := sessionClose(day, days[i].Close, et)
		if err != nil {
			continue
		}
		if !now.Before(closeAt.Add(settleDelay)) {
			return day, nil
		}
	}
	return time.Time{}, errors.New("could not determine latest finished trading day")
}

// sessionClose combines a trade date with the calendar's "HH:MM" close time.
// An empty close defaults to 16:00.
func sessionClose(day time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	if hhmm == "" {
		hhmm = "16:00"
	}
	clock, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing close time %q: %w", hhmm, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, loc), nil
}
