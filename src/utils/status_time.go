package utils

import (
	"fmt"
	"strings"
	"time"
)

var statusClockLayouts = []string{
	"3:04 PM",
	"3:04:05 PM",
	"3:04PM",
	"3:04:05PM",
	"15:04",
	"15:04:05",
}

var statusStampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.000",
	"Jan 2, 2006, 3:04:05 PM",
	"Jan 2, 2006 3:04:05 PM",
}

// -----------------------------------------------------------------------------

// ParseStatusTime returns the hour and minute of a market status clock such as
// "11:15 AM". Full timestamps are accepted and reduced to their clock part.
func ParseStatusTime(s string) (int, int, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "AS OF ")
	if s == "" {
		return 0, 0, fmt.Errorf("empty status time")
	}

	for _, layout := range statusClockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour(), t.Minute(), nil
		}
	}
	for _, layout := range statusStampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour(), t.Minute(), nil
		}
	}
	return 0, 0, fmt.Errorf("unrecognised status time %q", s)
}

// -----------------------------------------------------------------------------

// IsStatusTimeAhead reports whether statusTime is later than now's market-local
// hour and minute. Such a snapshot claims a time that has not happened yet.
func IsStatusTimeAhead(statusTime string, now time.Time) (bool, error) {
	h, m, err := ParseStatusTime(statusTime)
	if err != nil {
		return false, err
	}
	local := now.In(NPT)
	return h*60+m > local.Hour()*60+local.Minute(), nil
}

// -----------------------------------------------------------------------------

// FormatStatusTime renders t in the site's 12-hour clock format.
func FormatStatusTime(t time.Time) string {
	return t.In(NPT).Format("3:04 PM")
}
