package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInputOrdering is matched by every *InputOrderingError via errors.Is.
var ErrInputOrdering = errors.New("input ordering violation")

// InputOrderingError reports a price series that is not strictly increasing
// by date for a single ticker.
type InputOrderingError struct {
	Ticker string
	Index  int
	Prev   time.Time
	Date   time.Time
	Reason string
}

func (e *InputOrderingError) Error() string {
	return fmt.Sprintf("%s: %s at index %d (%s after %s)",
		e.Ticker, e.Reason, e.Index,
		e.Date.Format(DateLayout), e.Prev.Format(DateLayout))
}

// Is makes errors.Is(err, ErrInputOrdering) true.
func (e *InputOrderingError) Is(target error) bool {
	return target == ErrInputOrdering
}

// CheckOrdering verifies that dates strictly increase. It returns an
// *InputOrderingError for the first duplicate or out-of-order date.
func CheckOrdering(ticker string, dates []time.Time) error {
	for i := 1; i < len(dates); i++ {
		prev, cur := dates[i-1], dates[i]
		switch {
		case cur.Equal(prev):
			return &InputOrderingError{Ticker: ticker, Index: i, Prev: prev, Date: cur, Reason: "duplicate trade date"}
		case cur.Before(prev):
			return &InputOrderingError{Ticker: ticker, Index: i, Prev: prev, Date: cur, Reason: "trade date out of order"}
		}
	}
	return nil
}
