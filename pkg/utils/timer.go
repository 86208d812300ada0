package utils

import (
	"fmt"
	"time"
)

// Timer measures elapsed phases of a long operation (a bulk load, a
// checkpoint run) and renders them for logging.
type Timer struct {
	start time.Time
	last  time.Time
}

// NewTimer creates a started timer.
func NewTimer() *Timer {
	now := time.Now()
	return &Timer{start: now, last: now}
}

// Lap returns the duration since the previous Lap (or start) and resets
// the lap clock.
func (t *Timer) Lap() time.Duration {
	now := time.Now()
	d := now.Sub(t.last)
	t.last = now
	return d
}

// Total returns the duration since the timer was created.
func (t *Timer) Total() time.Duration {
	return time.Since(t.start)
}

// FormatDuration renders a duration with millisecond precision.
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}
