package models

import "time"

// Observation is one realized hourly clearing price.
type Observation struct {
	Timestamp time.Time
	Price     float64
}

// ForecastRecord is the forecast for one hour of a window.
type ForecastRecord struct {
	WindowID  string
	Timestamp time.Time
	Point     float64
	Lower     float64
	Upper     float64
}

// ComparisonRecord holds the error metrics of a reconciled window.
type ComparisonRecord struct {
	Window         TimeWindow
	MAE            float64
	RMSE           float64
	MAPE           float64
	MAPEComputable bool // false when no hour passed the percentage-error floor
	SampleCount    int  // matched hours
	ExcludedCount  int  // matched hours left out of MAPE
	Coverage       float64
	ComputedAt     time.Time
}

// HourlyComparison is the per-hour audit row behind a ComparisonRecord.
type HourlyComparison struct {
	WindowID           string
	Timestamp          time.Time
	Predicted          float64
	Actual             float64
	AbsoluteError      float64
	PercentageError    float64
	PercentageIncluded bool
}

// ModelSnapshot is the durable trained-model state plus the cutoff it was trained with.
type ModelSnapshot struct {
	Model        string    `json:"model"`
	Cutoff       time.Time `json:"cutoff"`
	TrainedAt    time.Time `json:"trained_at"`
	Observations int       `json:"observations"`
	HistoryStart time.Time `json:"history_start"`
	HistoryEnd   time.Time `json:"history_end"`
	State        []byte    `json:"state"`
}
