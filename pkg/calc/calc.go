// Package calc provides progress arithmetic shared by the reporters.
package calc

import (
	"math"
	"time"
)

const fullPercent = 100

// Percent returns current/total as a percentage; 0 when total is not positive.
func Percent(current, total int64) float64 {
	if total <= 0 {
		return 0
	}

	return float64(current) / float64(total) * fullPercent
}

// Rate returns the transfer rate in units per second; 0 before any time has elapsed.
func Rate(current int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}

	return float64(current) / elapsed.Seconds()
}

// ETA estimates the remaining time as (total-current)/rate.
func ETA(current, total int64, elapsed time.Duration) time.Duration {
	rate := Rate(current, elapsed)
	if rate <= 0 || current >= total {
		return 0
	}

	secs := float64(total-current) / rate

	return time.Duration(math.Round(secs)) * time.Second
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))

	return math.Round(v*pow) / pow
}
