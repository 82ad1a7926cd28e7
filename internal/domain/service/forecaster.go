package service

import (
	"context"
	"time"

	"PriceCast/internal/domain/models"
)

// Forecaster wraps the external time-series model.
type Forecaster interface {
	// Train fits on observations strictly before cutoff and persists the snapshot.
	// The previous snapshot survives any failure.
	Train(ctx context.Context, history []models.Observation, cutoff time.Time) (*models.ModelSnapshot, error)
	// Forecast returns one record per hour of the window.
	Forecast(ctx context.Context, snap *models.ModelSnapshot, w models.TimeWindow) ([]models.ForecastRecord, error)
	// LoadSnapshot reloads the persisted snapshot.
	LoadSnapshot(ctx context.Context) (*models.ModelSnapshot, error)
}
