package engine

import "sync/atomic"

// Clock is a monotonic logical clock for step ordering.
//
// Recorded trace steps are stamped with a strictly increasing seq from
// this clock, never wall-clock timestamps. This ensures:
//   - Deterministic ordering (no wall-clock race conditions)
//   - Replay consumes steps in exactly the recorded order
//
// Thread-safety: Clock is safe for concurrent use (atomic operations),
// though replay itself requires callers to serialize a chain anyway.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific sequence number.
// Used to resume recording after reopening a persisted trace log.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
