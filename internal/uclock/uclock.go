// Package uclock implements the monotonic clock abstraction of spec.md
// §3.7: timestamps in 27MHz ticks, the MPEG system clock rate, so TS clock
// math (internal/tsdemux) can mix wall-clock and PCR-derived timestamps in
// one unit.
package uclock

import "time"

// Freq is UCLOCK_FREQ: ticks per second.
const Freq = 27_000_000

// Clock returns the current time in uclock ticks.
type Clock interface {
	Now() uint64
}

// Wall is a Clock backed by time.Now, anchored at construction so returned
// values stay within a comfortable uint64 range across long-running
// processes instead of measuring from the Unix epoch directly.
type Wall struct {
	epoch time.Time
}

// NewWall anchors a wall clock at the given reference instant.
func NewWall(epoch time.Time) *Wall {
	return &Wall{epoch: epoch}
}

func (w *Wall) Now() uint64 {
	d := time.Since(w.epoch)
	if d < 0 {
		return 0
	}
	return uint64(d) * Freq / uint64(time.Second)
}

// FromDuration converts a time.Duration to uclock ticks.
func FromDuration(d time.Duration) uint64 {
	if d < 0 {
		return 0
	}
	return uint64(d) * Freq / uint64(time.Second)
}

// ToDuration converts uclock ticks to a time.Duration.
func ToDuration(ticks uint64) time.Duration {
	return time.Duration(ticks * uint64(time.Second) / Freq)
}
