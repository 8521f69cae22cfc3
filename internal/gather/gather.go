// Package gather ingests daily bars from external sources into one or more
// bar stores.
package gather

import (
	"context"
	"fmt"
	"time"

	"screener/internal/domain"
	"screener/internal/store"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run fetches data and writes it to the gatherer's sinks. It returns
	// when the work is done or ctx is cancelled.
	Run(ctx context.Context) error
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses YYYY-MM-DD bounds. An empty end leaves End zero.
func ParseDateRange(start, end string) (DateRange, error) {
	var r DateRange
	var err error
	if r.Start, err = domain.ParseDate(start); err != nil {
		return r, err
	}
	if end != "" {
		if r.End, err = domain.ParseDate(end); err != nil {
			return r, err
		}
		if r.End.Before(r.Start) {
			return r, fmt.Errorf("end date %s before start date %s", end, start)
		}
	}
	return r, nil
}

// Sinks writes every batch of bars to each store in order.
type Sinks []store.BarStore

// WriteBars writes bars to all sinks, stopping at the first failure.
func (s Sinks) WriteBars(ctx context.Context, bars []domain.Bar) error {
	for _, sink := range s {
		if err := sink.WriteBars(ctx, bars); err != nil {
			return err
		}
	}
	return nil
}
