package scheduler

import (
	"fmt"
	"time"

	"nepse-observer/src/utils"

	"github.com/robfig/cron/v3"
)

// Cadence decides when a job runs next.
type Cadence interface {
	// Next returns the first tick after t, or false when the cadence never
	// ticks on its own.
	Next(t time.Time) (time.Time, bool)
	String() string
}

// MarketCalendar is the part of the trading calendar window cadences need.
type MarketCalendar interface {
	IsOpenOnMinute(t time.Time) bool
	NextOpenMinute(t time.Time) (time.Time, bool)
}

var _ MarketCalendar = (*utils.TradingCalendar)(nil)

// -----------------------------------------------------------------------------

type every struct{ d time.Duration }

// Every ticks at a fixed interval, market open or not.
func Every(d time.Duration) Cadence { return every{d} }

func (c every) Next(t time.Time) (time.Time, bool) {
	if c.d <= 0 {
		return time.Time{}, false
	}
	return t.Add(c.d), true
}

func (c every) String() string { return "every " + c.d.String() }

// -----------------------------------------------------------------------------

type window struct {
	d     time.Duration
	grace time.Duration
	cal   MarketCalendar
}

// Window ticks every d while cal reports the market open, and for grace
// after each close so the closing values are picked up. Outside the window
// the next tick is the next open minute.
func Window(d, grace time.Duration, cal MarketCalendar) Cadence { return window{d, grace, cal} }

func (c window) Next(t time.Time) (time.Time, bool) {
	if c.d <= 0 || c.cal == nil {
		return time.Time{}, false
	}
	n := t.Add(c.d)
	if c.inWindow(n) {
		return n, true
	}
	return c.cal.NextOpenMinute(n)
}

func (c window) inWindow(t time.Time) bool {
	if c.cal.IsOpenOnMinute(t) {
		return true
	}
	return c.grace > 0 && c.cal.IsOpenOnMinute(t.Add(-c.grace))
}

func (c window) String() string {
	if c.grace > 0 {
		return "every " + c.d.String() + " while open, " + c.grace.String() + " past close"
	}
	return "every " + c.d.String() + " while open"
}

// -----------------------------------------------------------------------------

type cronCadence struct {
	expr  string
	sched cron.Schedule
}

// Cron parses a standard five-field expression, evaluated in market time.
func Cron(expr string) (Cadence, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("cron %q: %w", expr, err)
	}
	return cronCadence{expr: expr, sched: sched}, nil
}

func (c cronCadence) Next(t time.Time) (time.Time, bool) {
	n := c.sched.Next(t.In(utils.NPT))
	return n, !n.IsZero()
}

func (c cronCadence) String() string { return "cron " + c.expr }

// -----------------------------------------------------------------------------

type manual struct{}

// Manual never ticks; the job only runs when triggered.
func Manual() Cadence { return manual{} }

func (manual) Next(time.Time) (time.Time, bool) { return time.Time{}, false }
func (manual) String() string                   { return "manual" }
