package models

import (
	"math"
	"time"
)

// PublishedSnapshot is the document handed to the presentation layer.
type PublishedSnapshot struct {
	GeneratedAt         time.Time              `json:"generated_at"`
	CurrentWeek         PublishedWeek          `json:"current_week"`
	LastWeekPerformance *PublishedPerformance  `json:"last_week_performance"`
	LastWeekComparison  []PublishedHour        `json:"last_week_comparison"`
	HistoricalTrend     []PublishedPerformance `json:"historical_trend"`
	Missing             []string               `json:"missing,omitempty"`
}

// PublishedWeek carries the latest forecast horizon.
type PublishedWeek struct {
	Start     string              `json:"start"`
	End       string              `json:"end"`
	Forecasts []PublishedForecast `json:"forecasts"`
}

type PublishedForecast struct {
	Datetime  string  `json:"datetime"`
	Predicted float64 `json:"predicted"`
	Lower     float64 `json:"lower"`
	Upper     float64 `json:"upper"`
}

type PublishedPerformance struct {
	Week           string  `json:"week"`
	WindowID       string  `json:"window_id"`
	MAPE           float64 `json:"mape"`
	MAPEComputable bool    `json:"mape_computable"`
	MAE            float64 `json:"mae"`
	RMSE           float64 `json:"rmse"`
	SampleCount    int     `json:"total_predictions"`
	ExcludedCount  int     `json:"excluded_predictions"`
}

type PublishedHour struct {
	Datetime     string  `json:"datetime"`
	Predicted    float64 `json:"predicted"`
	Actual       float64 `json:"actual"`
	Error        float64 `json:"error"`
	ErrorPercent float64 `json:"error_percent"`
}

// DatetimeLayout formats hourly timestamps in published documents.
const DatetimeLayout = "2006-01-02 15:04:05"

func NewPublishedForecast(r ForecastRecord) PublishedForecast {
	return PublishedForecast{
		Datetime:  r.Timestamp.Format(DatetimeLayout),
		Predicted: round2(r.Point),
		Lower:     round2(r.Lower),
		Upper:     round2(r.Upper),
	}
}

func NewPublishedPerformance(rec ComparisonRecord) PublishedPerformance {
	return PublishedPerformance{
		Week:           rec.Window.Label(),
		WindowID:       rec.Window.ID(),
		MAPE:           round2(rec.MAPE),
		MAPEComputable: rec.MAPEComputable,
		MAE:            round2(rec.MAE),
		RMSE:           round2(rec.RMSE),
		SampleCount:    rec.SampleCount,
		ExcludedCount:  rec.ExcludedCount,
	}
}

func NewPublishedHour(h HourlyComparison) PublishedHour {
	return PublishedHour{
		Datetime:     h.Timestamp.Format(DatetimeLayout),
		Predicted:    round2(h.Predicted),
		Actual:       round2(h.Actual),
		Error:        round2(h.AbsoluteError),
		ErrorPercent: round2(h.PercentageError),
	}
}

// round2 rounds to cents, as the dashboard displays prices.
func round2(v float64) float64 { return math.Round(v*100) / 100 }
