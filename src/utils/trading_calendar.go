package utils

import (
	"strings"
	"time"

	"nepse-observer/src/config"
	"nepse-observer/src/logger"
	"nepse-observer/src/models"

	"github.com/scmhub/calendar"
)

// TradingCalendar answers "is the market open" for window cadences. A MIC known
// to scmhub/calendar is used when configured; otherwise the configured weekly
// window applies. Configured holidays close the market in both modes.
type TradingCalendar struct {
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location

	open     time.Duration
	close    time.Duration
	days     map[time.Weekday]bool
	holidays map[string]bool
}

// -----------------------------------------------------------------------------

func NewTradingCalendar(cfg models.MMarketConfig, log *logger.Logger) *TradingCalendar {
	tc := &TradingCalendar{
		Fallback: true,
		Timezone: NPT,
		days:     make(map[time.Weekday]bool),
		holidays: make(map[string]bool),
	}

	tc.open, _ = config.ParseClock(cfg.OpenTime)
	tc.close, _ = config.ParseClock(cfg.CloseTime)
	for _, d := range cfg.TradingDays {
		if wd, ok := config.ParseWeekday(d); ok {
			tc.days[wd] = true
		}
	}
	for _, h := range cfg.Holidays {
		tc.holidays[strings.TrimSpace(h)] = true
	}

	if mic := strings.ToLower(strings.TrimSpace(cfg.MIC)); mic != "" {
		// scmhub/calendar.GetCalendar returns a calendar by MIC
		if cal := calendar.GetCalendar(mic); cal != nil {
			tc.Calendar = cal
			tc.Fallback = false
			tc.Timezone = cal.Loc
		} else if log != nil {
			log.Warning("No calendar for MIC '%s'. Using configured window %s-%s.", mic, cfg.OpenTime, cfg.CloseTime)
		}
	}

	return tc
}

// -----------------------------------------------------------------------------

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	date = date.In(tc.Timezone)
	if tc.holidays[date.Format(DateLayout)] {
		return false
	}

	if tc.Fallback {
		return tc.days[date.Weekday()]
	}
	return tc.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

// IsOpenOnMinute checks if the market is open at a specific minute.
func (tc *TradingCalendar) IsOpenOnMinute(t time.Time) bool {
	t = t.In(tc.Timezone)
	if !tc.IsTradingDay(t) {
		return false
	}

	if tc.Fallback {
		sinceMidnight := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
		return sinceMidnight >= tc.open && sinceMidnight < tc.close
	}
	return tc.Calendar.IsOpen(t)
}

// -----------------------------------------------------------------------------

// NextOpenMinute returns the first whole minute at or after t when the market
// is open, searching up to two weeks ahead.
func (tc *TradingCalendar) NextOpenMinute(t time.Time) (time.Time, bool) {
	m := t.Truncate(time.Minute)
	if m.Before(t) {
		m = m.Add(time.Minute)
	}
	limit := m.Add(14 * 24 * time.Hour)
	for m.Before(limit) {
		if tc.IsOpenOnMinute(m) {
			return m, true
		}
		if !tc.IsTradingDay(m) {
			// jump to the next local midnight
			l := m.In(tc.Timezone)
			m = time.Date(l.Year(), l.Month(), l.Day()+1, 0, 0, 0, 0, tc.Timezone)
			continue
		}
		m = m.Add(time.Minute)
	}
	return time.Time{}, false
}
