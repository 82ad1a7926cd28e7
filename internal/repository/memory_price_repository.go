package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"PriceCast/internal/domain/models"
	domrepo "PriceCast/internal/domain/repository"
	"PriceCast/pkg/util"
)

// MemoryOption configures MemoryRepository.
type MemoryOption func(*MemoryRepository)

// WithPricesCSV seeds prices from a CSV file on Init.
func WithPricesCSV(path string, loc *time.Location) MemoryOption {
	return func(r *MemoryRepository) {
		r.csvPath = path
		r.loc = loc
	}
}

// WithStateFile persists forecasts and comparisons to a JSON file after every write.
func WithStateFile(path string) MemoryOption {
	return func(r *MemoryRepository) { r.statePath = path }
}

// MemoryRepository is an in-process PriceRepository for local runs and tests.
type MemoryRepository struct {
	mu          sync.RWMutex
	prices      map[time.Time]float64
	forecasts   map[string][]models.ForecastRecord
	hourly      map[string][]models.HourlyComparison
	comparisons map[string]models.ComparisonRecord

	csvPath   string
	loc       *time.Location
	statePath string
}

type memoryState struct {
	Forecasts   map[string][]models.ForecastRecord   `json:"forecasts"`
	Hourly      map[string][]models.HourlyComparison `json:"hourly"`
	Comparisons map[string]models.ComparisonRecord   `json:"comparisons"`
}

func NewMemoryRepository(opts ...MemoryOption) *MemoryRepository {
	r := &MemoryRepository{
		prices:      make(map[time.Time]float64),
		forecasts:   make(map[string][]models.ForecastRecord),
		hourly:      make(map[string][]models.HourlyComparison),
		comparisons: make(map[string]models.ComparisonRecord),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Init loads the seed CSV and any persisted state.
func (r *MemoryRepository) Init(_ context.Context) error {
	if r.csvPath != "" {
		obs, err := LoadPricesCSV(r.csvPath, r.loc)
		if err != nil {
			return models.NewRepositoryError("init", err)
		}
		r.AddObservations(obs...)
	}
	if r.statePath == "" {
		return nil
	}
	b, err := os.ReadFile(r.statePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return models.NewRepositoryError("init", err)
	}
	var st memoryState
	if err := json.Unmarshal(b, &st); err != nil {
		return models.NewRepositoryError("init", fmt.Errorf("decode state: %w", err))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range st.Forecasts {
		r.forecasts[k] = v
	}
	for k, v := range st.Hourly {
		r.hourly[k] = v
	}
	for k, v := range st.Comparisons {
		r.comparisons[k] = v
	}
	return nil
}

// AddObservations upserts realized prices.
func (r *MemoryRepository) AddObservations(obs ...models.Observation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range obs {
		r.prices[o.Timestamp] = o.Price
	}
}

// WriteObservations is AddObservations behind the importer signature. Prices are
// never persisted to the state file; they are reseeded from the CSV on Init.
func (r *MemoryRepository) WriteObservations(_ context.Context, obs []models.Observation) error {
	r.AddObservations(obs...)
	return nil
}

func (r *MemoryRepository) ReadHistory(_ context.Context, before time.Time) ([]models.Observation, error) {
	return r.selectPrices(func(ts time.Time) bool { return ts.Before(before) }), nil
}

func (r *MemoryRepository) ReadRealized(_ context.Context, w models.TimeWindow) ([]models.Observation, error) {
	return r.selectPrices(w.Contains), nil
}

func (r *MemoryRepository) selectPrices(keep func(time.Time) bool) []models.Observation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Observation, 0, len(r.prices))
	for ts, p := range r.prices {
		if keep(ts) {
			out = append(out, models.Observation{Timestamp: ts, Price: p})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (r *MemoryRepository) WriteForecast(_ context.Context, w models.TimeWindow, recs []models.ForecastRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forecasts[w.ID()] = append([]models.ForecastRecord(nil), recs...)
	return models.NewRepositoryError("write_forecast", r.persistLocked())
}

func (r *MemoryRepository) ReadForecast(_ context.Context, w models.TimeWindow) ([]models.ForecastRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.ForecastRecord(nil), r.forecasts[w.ID()]...), nil
}

func (r *MemoryRepository) ReadLatestForecast(ctx context.Context) (models.TimeWindow, []models.ForecastRecord, bool, error) {
	r.mu.RLock()
	latest := ""
	for id, recs := range r.forecasts {
		if len(recs) > 0 && id > latest {
			latest = id
		}
	}
	r.mu.RUnlock()
	if latest == "" {
		return models.TimeWindow{}, nil, false, nil
	}
	w, err := models.ParseWindowID(latest)
	if err != nil {
		return models.TimeWindow{}, nil, false, models.NewRepositoryError("read_latest_forecast", err)
	}
	recs, err := r.ReadForecast(ctx, w)
	return w, recs, true, err
}

func (r *MemoryRepository) WriteComparison(_ context.Context, rec models.ComparisonRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.comparisons[rec.Window.ID()] = rec
	return models.NewRepositoryError("write_comparison", r.persistLocked())
}

func (r *MemoryRepository) ReadComparison(_ context.Context, w models.TimeWindow) (models.ComparisonRecord, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.comparisons[w.ID()]
	return rec, ok, nil
}

func (r *MemoryRepository) ReadComparisons(_ context.Context, limit int) ([]models.ComparisonRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ComparisonRecord, 0, len(r.comparisons))
	for _, rec := range r.comparisons {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Window.Start.After(out[j].Window.Start) })
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) WriteHourlyComparison(_ context.Context, w models.TimeWindow, rows []models.HourlyComparison) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hourly[w.ID()] = append([]models.HourlyComparison(nil), rows...)
	return models.NewRepositoryError("write_hourly_comparison", r.persistLocked())
}

func (r *MemoryRepository) ReadHourlyComparison(_ context.Context, w models.TimeWindow) ([]models.HourlyComparison, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.HourlyComparison(nil), r.hourly[w.ID()]...), nil
}

func (r *MemoryRepository) Health(context.Context) error { return nil }

func (r *MemoryRepository) Close() error { return nil }

func (r *MemoryRepository) persistLocked() error {
	if r.statePath == "" {
		return nil
	}
	b, err := json.Marshal(memoryState{Forecasts: r.forecasts, Hourly: r.hourly, Comparisons: r.comparisons})
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	return util.WriteFileAtomic(r.statePath, b, 0o644)
}

var (
	_ domrepo.PriceRepository = (*MemoryRepository)(nil)
	_ domrepo.PriceImporter   = (*MemoryRepository)(nil)
)
