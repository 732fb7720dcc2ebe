package engine

import "time"

// Clock supplies the current time to every engine pass. Accrual math is a
// pure function of elapsed time, so swapping in a fixed clock makes the
// whole engine testable without sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// FixedClock is a Clock pinned to a settable instant, for tests and
// replays.
type FixedClock struct {
	Time time.Time
}

func (c *FixedClock) Now() time.Time { return c.Time }

func (c *FixedClock) Advance(d time.Duration) { c.Time = c.Time.Add(d) }
