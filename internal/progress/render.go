// Package progress renders and throttles status text for long-running batch phases.
package progress

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"bulkdl/internal/consts"
	"bulkdl/pkg/calc"
)

const (
	cellFilled     = "█"
	cellEmpty      = "░"
	percentPerCell = 100 / consts.ProgressBarCells
	unitBase       = 1024
)

var byteSuffixes = []string{"", "Ki", "Mi", "Gi", "Ti"}

// Render returns the byte-progress text for one transfer.
// The output depends only on its arguments.
func Render(current, total int64, label string, elapsed time.Duration) string {
	percent := calc.Percent(current, total)

	filled := min(int(math.Floor(percent/percentPerCell)), consts.ProgressBarCells)
	filled = max(filled, 0)

	var b strings.Builder

	b.WriteString(label)
	b.WriteString("\n[")
	b.WriteString(strings.Repeat(cellFilled, filled))
	b.WriteString(strings.Repeat(cellEmpty, consts.ProgressBarCells-filled))
	b.WriteString("]\n")
	fmt.Fprintf(&b, "P: %.2f%%\n", calc.Round(percent, 2))
	fmt.Fprintf(&b, "%s of %s\n", HumanBytes(current), HumanBytes(total))
	fmt.Fprintf(&b, "Speed: %s/s\n", HumanBytes(int64(calc.Rate(current, elapsed))))

	eta := FormatDuration(calc.ETA(current, total, elapsed))
	if eta == "" {
		eta = "0s"
	}

	fmt.Fprintf(&b, "ETA: %s", eta)

	return b.String()
}

// HumanBytes formats n in powers of 1024 with at most two decimals, e.g. "1.5 MiB".
func HumanBytes(n int64) string {
	size := float64(n)
	unit := 0

	for size > unitBase && unit < len(byteSuffixes)-1 {
		size /= unitBase
		unit++
	}

	return strconv.FormatFloat(calc.Round(size, 2), 'f', -1, 64) + " " + byteSuffixes[unit] + "B"
}

// ParseHumanBytes parses the output of HumanBytes back into a byte count.
func ParseHumanBytes(s string) (int64, error) {
	num, unit, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok {
		return 0, fmt.Errorf("parse %q: missing unit", s)
	}

	value, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}

	prefix, found := strings.CutSuffix(unit, "B")
	if !found {
		return 0, fmt.Errorf("parse %q: unknown unit %q", s, unit)
	}

	for i, suffix := range byteSuffixes {
		if suffix == prefix {
			return int64(math.Round(value * math.Pow(unitBase, float64(i)))), nil
		}
	}

	return 0, fmt.Errorf("parse %q: unknown unit %q", s, unit)
}

// FormatDuration renders d as "1d, 2h, 3m, 4s, 5ms", omitting zero components.
// A zero duration renders as the empty string.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}

	ms := d.Milliseconds()

	parts := []struct {
		value  int64
		suffix string
	}{
		{ms / (24 * 60 * 60 * 1000), "d"},
		{ms / (60 * 60 * 1000) % 24, "h"},
		{ms / (60 * 1000) % 60, "m"},
		{ms / 1000 % 60, "s"},
		{ms % 1000, "ms"},
	}

	out := make([]string, 0, len(parts))

	for _, p := range parts {
		if p.value != 0 {
			out = append(out, strconv.FormatInt(p.value, 10)+p.suffix)
		}
	}

	return strings.Join(out, ", ")
}

// Counter renders the per-item queue counter.
func Counter(total, done int) string {
	return fmt.Sprintf("Total: %d, Done: %d, Remaining: %d", total, done, total-done)
}
