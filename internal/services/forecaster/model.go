package forecaster

import (
	"context"
	"time"

	"PriceCast/internal/services/calendar"
)

// Prediction is one model output for one requested row.
type Prediction struct {
	Timestamp time.Time `json:"ds"`
	Point     float64   `json:"yhat"`
	Lower     float64   `json:"yhat_lower"`
	Upper     float64   `json:"yhat_upper"`
}

// Model is the fit/predict capability behind the adapter. State is opaque to callers.
type Model interface {
	Name() string
	// LongestSeasonality is the longest periodic component the model learns;
	// training needs at least two full periods.
	LongestSeasonality() time.Duration
	Fit(ctx context.Context, rows []calendar.Row, holidays []calendar.Holiday) ([]byte, error)
	// Predict returns one prediction per row, in row order.
	Predict(ctx context.Context, state []byte, rows []calendar.Row, confidence float64) ([]Prediction, error)
}
