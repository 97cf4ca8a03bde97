package progress

import (
	"sync"
	"time"
)

// Throttle decides when a byte-progress update may be emitted.
// It allows at most one update per interval window since start,
// plus the final update where current equals total.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	now      func() time.Time
	start    time.Time
	window   int64
	final    bool
}

// NewThrottle starts a throttle at now(). A nil now uses time.Now.
func NewThrottle(interval time.Duration, now func() time.Time) *Throttle {
	if now == nil {
		now = time.Now
	}

	return &Throttle{
		interval: interval,
		now:      now,
		start:    now(),
	}
}

// Allow reports whether an update for (current, total) should be emitted,
// along with the time elapsed since the throttle started.
func (t *Throttle) Allow(current, total int64) (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := t.now().Sub(t.start)

	if current >= total {
		if t.final {
			return false, elapsed
		}

		t.final = true

		return true, elapsed
	}

	window := int64(elapsed / t.interval)
	if window <= t.window {
		return false, elapsed
	}

	t.window = window

	return true, elapsed
}
