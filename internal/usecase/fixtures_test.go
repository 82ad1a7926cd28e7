package usecase

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"PriceCast/internal/domain/models"
	memrepo "PriceCast/internal/repository"
)

var (
	october13 = time.Date(2025, 10, 13, 0, 0, 0, 0, time.UTC)
	october20 = time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC)
	october27 = time.Date(2025, 10, 27, 0, 0, 0, 0, time.UTC)
)

// weeklyPrice is a strictly weekly-periodic price curve.
func weeklyPrice(ts time.Time) float64 {
	hourOfWeek := float64(((int(ts.Weekday())+6)%7)*24 + ts.Hour())
	return 1500 + 400*math.Sin(hourOfWeek/168*2*math.Pi) + 10*float64(ts.Hour())
}

func seedPrices(repo *memrepo.MemoryRepository, from time.Time, hours int, price func(time.Time) float64) {
	obs := make([]models.Observation, hours)
	for i := range obs {
		ts := from.Add(time.Duration(i) * time.Hour)
		obs[i] = models.Observation{Timestamp: ts, Price: price(ts)}
	}
	repo.AddObservations(obs...)
}

func constantForecast(w models.TimeWindow, point float64) []models.ForecastRecord {
	out := make([]models.ForecastRecord, 0, w.Hours())
	for _, ts := range w.Timestamps() {
		out = append(out, models.ForecastRecord{WindowID: w.ID(), Timestamp: ts, Point: point, Lower: point - 10, Upper: point + 10})
	}
	return out
}

type fakeMetrics struct {
	mu          sync.Mutex
	cycles      []string
	steps       []string
	comparisons []models.ComparisonRecord
	rows        int
}

func (m *fakeMetrics) RecordCycle(mode, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles = append(m.cycles, mode+"/"+result)
}

func (m *fakeMetrics) RecordStep(step, status string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, step+"/"+status)
}

func (m *fakeMetrics) RecordComparison(rec models.ComparisonRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comparisons = append(m.comparisons, rec)
}

func (m *fakeMetrics) RecordForecastRows(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = n
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	err      error
	acquired []string
	released []string
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: map[string]bool{}} }

func (l *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	l.acquired = append(l.acquired, key)
	return true, nil
}

func (l *fakeLocker) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	l.released = append(l.released, key)
	return nil
}

type failingExporter struct{ name string }

func (e failingExporter) Name() string { return e.name }

func (e failingExporter) Export(context.Context, *models.PublishedSnapshot) error {
	return errors.New("broker unavailable")
}

type capturingExporter struct{ got []*models.PublishedSnapshot }

func (e *capturingExporter) Name() string { return "capture" }

func (e *capturingExporter) Export(_ context.Context, snap *models.PublishedSnapshot) error {
	e.got = append(e.got, snap)
	return nil
}

// stubForecaster records calls and lets a test shape each step.
type stubForecaster struct {
	snap       *models.ModelSnapshot
	trainErr   error
	onTrain    func()
	onForecast func()
	rows       int
	trained    []time.Time
}

func (f *stubForecaster) Train(_ context.Context, history []models.Observation, cutoff time.Time) (*models.ModelSnapshot, error) {
	f.trained = append(f.trained, cutoff)
	if f.onTrain != nil {
		f.onTrain()
	}
	if f.trainErr != nil {
		return nil, f.trainErr
	}
	f.snap = &models.ModelSnapshot{Model: "stub", Cutoff: cutoff, Observations: len(history)}
	return f.snap, nil
}

func (f *stubForecaster) Forecast(_ context.Context, _ *models.ModelSnapshot, w models.TimeWindow) ([]models.ForecastRecord, error) {
	if f.onForecast != nil {
		f.onForecast()
	}
	recs := constantForecast(w, 1000)
	if f.rows > 0 {
		recs = recs[:f.rows]
	}
	return recs, nil
}

func (f *stubForecaster) LoadSnapshot(context.Context) (*models.ModelSnapshot, error) {
	if f.snap == nil {
		return nil, models.ErrNoSnapshot
	}
	return f.snap, nil
}

// steppingClock advances only when told to.
type steppingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *steppingClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
