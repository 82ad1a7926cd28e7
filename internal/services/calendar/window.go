package calendar

import (
	"fmt"
	"strconv"
	"time"

	"PriceCast/internal/domain/models"
	"PriceCast/pkg/util"
)

// Normalize converts t to the market's wall clock and drops the offset, so every
// timestamp in the system is compared on one reference clock.
func Normalize(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), l.Hour(), l.Minute(), l.Second(), l.Nanosecond(), time.UTC)
}

// DayIndex returns the day of week with Monday as 0 and Sunday as 6.
func DayIndex(t time.Time) int { return (int(t.Weekday()) + 6) % 7 }

// WindowFor returns the window offset weeks away from the week containing now
// (0 = current week, -1 = prior week).
func WindowFor(now time.Time, offset int, loc *time.Location) models.TimeWindow {
	local := Normalize(now, loc)
	return WindowStarting(local.AddDate(0, 0, 7*offset))
}

// WindowStarting returns the window of the week containing day. Only the
// calendar date of day is used.
func WindowStarting(day time.Time) models.TimeWindow {
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return models.WindowAt(d.AddDate(0, 0, -DayIndex(d)))
}

// ParseTimestamp reads a timestamp onto the reference clock. Values carrying an
// offset, and unix seconds, are converted to loc; bare datetimes are taken as
// market wall-clock time already.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return Normalize(t, loc), nil
	}
	t, ok := util.ParseTime(s)
	if !ok {
		return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Normalize(t, loc), nil
	}
	return t, nil
}
