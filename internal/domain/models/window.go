package models

import (
	"fmt"
	"time"
)

const (
	// HoursPerWindow is the number of hourly slots in a Monday-Sunday window.
	HoursPerWindow = 7 * 24

	// DateLayout is the layout of window identifiers.
	DateLayout = "2006-01-02"
)

// TimeWindow is a Monday-to-Sunday forecast target period.
// Start is Monday 00:00, End is the Sunday date (inclusive) and Cutoff is the
// exclusive upper bound for training data. Cutoff never exceeds Start.
type TimeWindow struct {
	Start  time.Time
	End    time.Time
	Cutoff time.Time
}

// WindowAt builds the window starting on the given Monday 00:00.
func WindowAt(monday time.Time) TimeWindow {
	return TimeWindow{Start: monday, End: monday.AddDate(0, 0, 6), Cutoff: monday}
}

// ParseWindowID rebuilds a window from its identifier.
func ParseWindowID(id string) (TimeWindow, error) {
	start, err := time.Parse(DateLayout, id)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("parse window id %q: %w", id, err)
	}
	if start.Weekday() != time.Monday {
		return TimeWindow{}, fmt.Errorf("window id %q is a %s, want Monday", id, start.Weekday())
	}
	return WindowAt(start), nil
}

// ID returns the window identifier (the Monday date).
func (w TimeWindow) ID() string { return w.Start.Format(DateLayout) }

// Label renders the window as "start - end", matching the published trend rows.
func (w TimeWindow) Label() string {
	return w.Start.Format(DateLayout) + " - " + w.End.Format(DateLayout)
}

// Hours returns the number of hourly slots in the window.
func (w TimeWindow) Hours() int { return HoursPerWindow }

// HourAt returns the i-th hourly timestamp of the window.
func (w TimeWindow) HourAt(i int) time.Time { return w.Start.Add(time.Duration(i) * time.Hour) }

// LastHour returns the final hourly timestamp (Sunday 23:00).
func (w TimeWindow) LastHour() time.Time { return w.HourAt(w.Hours() - 1) }

// UpperBound returns the exclusive end of the window's hour range.
func (w TimeWindow) UpperBound() time.Time { return w.HourAt(w.Hours()) }

// Timestamps lists every hourly timestamp in the window, ascending.
func (w TimeWindow) Timestamps() []time.Time {
	out := make([]time.Time, w.Hours())
	for i := range out {
		out[i] = w.HourAt(i)
	}
	return out
}

// Contains reports whether ts falls inside the window's hour range.
func (w TimeWindow) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && ts.Before(w.UpperBound())
}

// Next returns the following week's window.
func (w TimeWindow) Next() TimeWindow { return w.shift(7) }

// Previous returns the prior week's window.
func (w TimeWindow) Previous() TimeWindow { return w.shift(-7) }

func (w TimeWindow) shift(days int) TimeWindow {
	return WindowAt(w.Start.AddDate(0, 0, days))
}
