package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// Timer is a simple performance timer for measuring operation duration
type Timer struct {
	start time.Time
	name  string
	log   zerolog.Logger
	now   func() time.Time
}

// NewTimer creates a new timer with the given name
func NewTimer(name string, log zerolog.Logger) *Timer {
	return newTimerWithClock(name, log, time.Now)
}

func newTimerWithClock(name string, log zerolog.Logger, now func() time.Time) *Timer {
	return &Timer{
		start: now(),
		name:  name,
		log:   log,
		now:   now,
	}
}

// Elapsed returns the time since the timer started without logging
func (t *Timer) Elapsed() time.Duration {
	return t.now().Sub(t.start)
}

// Stop logs the duration at debug level and returns it
func (t *Timer) Stop() time.Duration {
	duration := t.Elapsed()

	t.log.Debug().
		Str("operation", t.name).
		Dur("duration_ms", duration).
		Msg("Performance measurement")

	// Anything beyond a second is already rated "slow" by the plugin performance test
	if duration > time.Second {
		t.log.Warn().
			Str("operation", t.name).
			Dur("duration", duration).
			Msg("Slow operation detected (>1s)")
	}

	return duration
}

// Milliseconds converts a duration to fractional milliseconds.
func Milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// OperationTimer provides a defer-friendly way to measure operation duration
//
// Usage:
//
//	func MyFunction() {
//	    defer utils.OperationTimer("my_function", log)()
//	}
func OperationTimer(operation string, log zerolog.Logger) func() {
	t := NewTimer(operation, log)
	return func() {
		t.Stop()
	}
}
