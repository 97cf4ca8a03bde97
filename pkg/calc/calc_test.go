package calc

import (
	"testing"
	"time"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		name           string
		current, total int64
		want           float64
	}{
		{"total_zero", 10, 0, 0},
		{"zero_current", 0, 100, 0},
		{"half", 50, 100, 50},
		{"exact_100", 100, 100, 100},
		{"negative_total", 5, -1, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := Percent(tc.current, tc.total); got != tc.want {
				t.Fatalf("Percent(%d, %d) = %v; want %v", tc.current, tc.total, got, tc.want)
			}
		})
	}
}

func TestETA(t *testing.T) {
	tests := []struct {
		name           string
		current, total int64
		elapsed        time.Duration
		want           time.Duration
	}{
		{"no_elapsed", 10, 100, 0, 0},
		{"nothing_done", 0, 100, time.Second, 0},
		{"half", 50, 100, 10 * time.Second, 10 * time.Second},
		{"quarter", 25, 100, 4 * time.Second, 12 * time.Second},
		{"done", 100, 100, 3 * time.Second, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := ETA(tc.current, tc.total, tc.elapsed); got != tc.want {
				t.Fatalf("ETA(%d, %d, %v) = %v; want %v", tc.current, tc.total, tc.elapsed, got, tc.want)
			}
		})
	}
}

func TestRound(t *testing.T) {
	if got := Round(33.33333, 2); got != 33.33 {
		t.Fatalf("Round() = %v, want 33.33", got)
	}

	if got := Round(1.005, 0); got != 1 {
		t.Fatalf("Round() = %v, want 1", got)
	}
}
