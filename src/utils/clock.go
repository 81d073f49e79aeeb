package utils

import (
	"sync"
	"time"
)

// -----------------------------------------------------------------------------

// Clock abstracts wall time so business-date logic can be tested.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// -----------------------------------------------------------------------------

// ManualClock is a settable Clock.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// -----------------------------------------------------------------------------

// BusinessDate is the market-local calendar date of t.
func BusinessDate(t time.Time) string {
	return t.In(NPT).Format(DateLayout)
}

// -----------------------------------------------------------------------------

// EndOfDay is the last millisecond of t's market-local day.
func EndOfDay(t time.Time) time.Time {
	l := t.In(NPT)
	return time.Date(l.Year(), l.Month(), l.Day(), 23, 59, 59, int(999*time.Millisecond), NPT)
}
