package repository

import (
	"context"
	"time"

	"PriceCast/internal/domain/models"
)

// PriceRepository is the storage boundary of the forecast cycle.
// Every I/O failure is returned as *models.RepositoryError; implementations never retry.
type PriceRepository interface {
	Init(ctx context.Context) error // ensure tables
	// ReadHistory returns observations with timestamp strictly before the bound, ascending.
	ReadHistory(ctx context.Context, before time.Time) ([]models.Observation, error)
	// ReadRealized returns observations inside the window's hour range, ascending.
	ReadRealized(ctx context.Context, w models.TimeWindow) ([]models.Observation, error)
	// WriteForecast replaces every forecast row stored for the window.
	WriteForecast(ctx context.Context, w models.TimeWindow, recs []models.ForecastRecord) error
	ReadForecast(ctx context.Context, w models.TimeWindow) ([]models.ForecastRecord, error)
	// ReadLatestForecast returns the most recent window holding forecast rows.
	// ok is false when nothing was ever forecast.
	ReadLatestForecast(ctx context.Context) (w models.TimeWindow, recs []models.ForecastRecord, ok bool, err error)
	// WriteComparison upserts the record keyed by window.
	WriteComparison(ctx context.Context, rec models.ComparisonRecord) error
	// ReadComparison returns the window's record; ok is false when absent.
	ReadComparison(ctx context.Context, w models.TimeWindow) (rec models.ComparisonRecord, ok bool, err error)
	// ReadComparisons returns up to limit records, newest window first.
	ReadComparisons(ctx context.Context, limit int) ([]models.ComparisonRecord, error)
	WriteHourlyComparison(ctx context.Context, w models.TimeWindow, rows []models.HourlyComparison) error
	ReadHourlyComparison(ctx context.Context, w models.TimeWindow) ([]models.HourlyComparison, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// SnapshotStore persists the single current model snapshot. Save is atomic.
type SnapshotStore interface {
	Save(ctx context.Context, snap *models.ModelSnapshot) error
	// Load returns models.ErrNoSnapshot when nothing was saved yet.
	Load(ctx context.Context) (*models.ModelSnapshot, error)
}

// Exporter renders a published snapshot to one durable artifact. Exports overwrite.
type Exporter interface {
	Name() string
	Export(ctx context.Context, snap *models.PublishedSnapshot) error
}

// Locker is an advisory lease keyed by cycle window.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type Metrics interface {
	RecordCycle(mode, result string)
	RecordStep(step, status string, seconds float64)
	RecordComparison(rec models.ComparisonRecord)
	RecordForecastRows(n int)
}

// PriceImporter ingests realized prices; re-imported hours overwrite.
type PriceImporter interface {
	WriteObservations(ctx context.Context, obs []models.Observation) error
}
