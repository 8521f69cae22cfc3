package util

import (
	"golang.org/x/time/rate"
)

// NewRateLimiter allows perMinute operations per minute, of which up to burst
// may run back to back. The bucket starts full. A zero or negative rate
// disables limiting.
func NewRateLimiter(perMinute, burst int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), max(burst, 1))
}
