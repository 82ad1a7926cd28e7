package forecaster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"PriceCast/internal/domain/models"
	"PriceCast/internal/services/calendar"
)

const week = time.Duration(models.HoursPerWindow) * time.Hour

// ProfileModel forecasts each hour of the week from a recency-weighted
// hour-of-week profile over the trailing weeks of history. Holidays are
// profiled as Sundays.
type ProfileModel struct {
	weeks  int
	season time.Duration
}

type profileSlot struct {
	Mean    float64 `json:"mean"`
	Sigma   float64 `json:"sigma"`
	Samples int     `json:"samples"`
}

type profileState struct {
	Weeks int           `json:"weeks"`
	Mean  float64       `json:"mean"`
	Sigma float64       `json:"sigma"`
	Slots []profileSlot `json:"slots"`
}

// NewProfileModel builds a model over the last weeks of history. A zero season means one week.
func NewProfileModel(weeks int, season time.Duration) *ProfileModel {
	if weeks < 1 {
		weeks = 1
	}
	if season <= 0 {
		season = week
	}
	return &ProfileModel{weeks: weeks, season: season}
}

func (m *ProfileModel) Name() string { return "hour-of-week-profile" }

func (m *ProfileModel) LongestSeasonality() time.Duration { return m.season }

// Fit expects rows ascending by timestamp.
func (m *ProfileModel) Fit(_ context.Context, rows []calendar.Row, _ []calendar.Holiday) ([]byte, error) {
	if len(rows) == 0 {
		return nil, errors.New("no training rows")
	}

	type acc struct {
		w, wy, wy2 float64
		n          int
	}
	slots := make([]acc, models.HoursPerWindow)
	var total acc

	end := rows[len(rows)-1].Timestamp
	horizon := end.Add(-time.Duration(m.weeks) * week)
	for _, r := range rows {
		if !r.Timestamp.After(horizon) {
			continue
		}
		age := int(end.Sub(r.Timestamp) / week)
		w := float64(m.weeks - age)
		for _, a := range []*acc{&slots[slotOf(r)], &total} {
			a.w += w
			a.wy += w * r.Price
			a.wy2 += w * r.Price * r.Price
			a.n++
		}
	}

	moments := func(a acc) (float64, float64) {
		mean := a.wy / a.w
		variance := a.wy2/a.w - mean*mean
		if variance < 0 {
			variance = 0
		}
		return mean, math.Sqrt(variance)
	}

	st := profileState{Weeks: m.weeks, Slots: make([]profileSlot, models.HoursPerWindow)}
	st.Mean, st.Sigma = moments(total)
	for i, a := range slots {
		if a.n == 0 {
			st.Slots[i] = profileSlot{Mean: st.Mean, Sigma: st.Sigma}
			continue
		}
		mean, sigma := moments(a)
		st.Slots[i] = profileSlot{Mean: mean, Sigma: sigma, Samples: a.n}
	}

	return json.Marshal(st)
}

func (m *ProfileModel) Predict(_ context.Context, state []byte, rows []calendar.Row, confidence float64) ([]Prediction, error) {
	var st profileState
	if err := json.Unmarshal(state, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if len(st.Slots) != models.HoursPerWindow {
		return nil, fmt.Errorf("state has %d slots, want %d", len(st.Slots), models.HoursPerWindow)
	}

	z := math.Sqrt2 * math.Erfinv(confidence)
	out := make([]Prediction, len(rows))
	for i, r := range rows {
		s := st.Slots[slotOf(r)]
		half := z * s.Sigma
		out[i] = Prediction{
			Timestamp: r.Timestamp,
			Point:     s.Mean,
			Lower:     s.Mean - half,
			Upper:     s.Mean + half,
		}
	}
	return out, nil
}

func slotOf(r calendar.Row) int {
	day := r.DayOfWeek
	if r.IsHoliday {
		day = 6
	}
	return day*24 + r.Hour
}
