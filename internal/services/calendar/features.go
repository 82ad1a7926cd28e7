package calendar

import (
	"time"

	"PriceCast/internal/domain/models"
)

var peakHours = map[int]bool{8: true, 9: true, 10: true, 18: true, 19: true, 20: true, 21: true}

// Row is one model input row. Training and forecast rows are built by the same
// function so derived features cannot drift between fit and predict.
type Row struct {
	Timestamp      time.Time `json:"ds"`
	Price          float64   `json:"y"`
	Hour           int       `json:"hour"`
	DayOfWeek      int       `json:"day_of_week"`
	IsWeekend      bool      `json:"is_weekend"`
	IsPeakHour     bool      `json:"is_peak_hour"`
	IsDaytime      bool      `json:"is_daytime"`
	IsHoliday      bool      `json:"is_holiday"`
	ExtremeLowRisk bool      `json:"extreme_low_risk"`
}

// Holiday is a static calendar entry.
type Holiday struct {
	Name string    `json:"holiday"`
	Date time.Time `json:"ds"`
}

// Features derives calendar features from a static holiday list.
type Features struct {
	holidays    []Holiday
	upperWindow int
	flagged     map[time.Time]bool
}

// NewFeatures flags each holiday date plus upperWindow following days.
func NewFeatures(holidays []Holiday, upperWindow int) *Features {
	f := &Features{
		holidays:    holidays,
		upperWindow: upperWindow,
		flagged:     make(map[time.Time]bool, len(holidays)*(upperWindow+1)),
	}
	for _, h := range holidays {
		d := dateOf(h.Date)
		for i := 0; i <= upperWindow; i++ {
			f.flagged[d.AddDate(0, 0, i)] = true
		}
	}
	return f
}

// Holidays returns the configured calendar.
func (f *Features) Holidays() []Holiday { return f.holidays }

// UpperWindow is the number of days after each holiday that are flagged too.
func (f *Features) UpperWindow() int { return f.upperWindow }

// IsHoliday reports whether ts falls on a flagged date.
func (f *Features) IsHoliday(ts time.Time) bool { return f.flagged[dateOf(ts)] }

// Row computes the features of one timestamp.
func (f *Features) Row(ts time.Time) Row {
	hour := ts.Hour()
	dow := DayIndex(ts)
	return Row{
		Timestamp:      ts,
		Hour:           hour,
		DayOfWeek:      dow,
		IsWeekend:      dow >= 5,
		IsPeakHour:     peakHours[hour],
		IsDaytime:      hour >= 10 && hour < 16,
		IsHoliday:      f.IsHoliday(ts),
		ExtremeLowRisk: dow == 6 && hour >= 10 && hour <= 14,
	}
}

// TrainingRows builds rows for observed prices.
func (f *Features) TrainingRows(obs []models.Observation) []Row {
	rows := make([]Row, len(obs))
	for i, o := range obs {
		rows[i] = f.Row(o.Timestamp)
		rows[i].Price = o.Price
	}
	return rows
}

// ForecastRows builds one row per hour of the window.
func (f *Features) ForecastRows(w models.TimeWindow) []Row {
	ts := w.Timestamps()
	rows := make([]Row, len(ts))
	for i, t := range ts {
		rows[i] = f.Row(t)
	}
	return rows
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
