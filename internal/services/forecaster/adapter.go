package forecaster

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"PriceCast/internal/domain/models"
	"PriceCast/internal/domain/repository"
	"PriceCast/internal/services/calendar"
	"PriceCast/pkg/logger"
)

const defaultConfidence = 0.95

// Option configures Adapter.
type Option func(*Adapter)

// WithConfidence sets the prediction interval width.
func WithConfidence(c float64) Option {
	return func(a *Adapter) {
		if c > 0 && c < 1 {
			a.confidence = c
		}
	}
}

// WithClock overrides the clock stamped on snapshots.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// Adapter implements service.Forecaster on top of a Model and a SnapshotStore.
type Adapter struct {
	model      Model
	features   *calendar.Features
	store      repository.SnapshotStore
	log        *logger.Logger
	confidence float64
	now        func() time.Time
}

func NewAdapter(model Model, features *calendar.Features, store repository.SnapshotStore, log *logger.Logger, opts ...Option) *Adapter {
	a := &Adapter{
		model:      model,
		features:   features,
		store:      store,
		log:        log,
		confidence: defaultConfidence,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Train fits the model on history strictly before cutoff and persists the snapshot.
// Nothing is saved unless fitting succeeded.
func (a *Adapter) Train(ctx context.Context, history []models.Observation, cutoff time.Time) (*models.ModelSnapshot, error) {
	obs, dropped := prepareHistory(history, cutoff)
	if dropped > 0 {
		a.log.Warn("dropped observations at or after cutoff",
			logger.Int("dropped", dropped),
			logger.Time("cutoff", cutoff),
		)
	}

	required := 2 * a.model.LongestSeasonality()
	if len(obs) == 0 {
		return nil, &models.InsufficientDataError{Required: required}
	}
	span := obs[len(obs)-1].Timestamp.Sub(obs[0].Timestamp) + time.Hour
	if span < required {
		return nil, &models.InsufficientDataError{Observations: len(obs), Span: span, Required: required}
	}

	rows := a.features.TrainingRows(obs)
	state, err := a.model.Fit(ctx, rows, a.features.Holidays())
	if err != nil {
		return nil, fmt.Errorf("fit %s: %w", a.model.Name(), err)
	}

	snap := &models.ModelSnapshot{
		Model:        a.model.Name(),
		Cutoff:       cutoff,
		TrainedAt:    a.now(),
		Observations: len(obs),
		HistoryStart: obs[0].Timestamp,
		HistoryEnd:   obs[len(obs)-1].Timestamp,
		State:        state,
	}
	if err := a.store.Save(ctx, snap); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}

	a.log.Info("model trained",
		logger.String("model", snap.Model),
		logger.Int("observations", snap.Observations),
		logger.Time("history_start", snap.HistoryStart),
		logger.Time("history_end", snap.HistoryEnd),
		logger.Time("cutoff", cutoff),
	)
	return snap, nil
}

// Forecast predicts every hour of w from snap.
func (a *Adapter) Forecast(ctx context.Context, snap *models.ModelSnapshot, w models.TimeWindow) ([]models.ForecastRecord, error) {
	if snap == nil {
		return nil, models.ErrNoSnapshot
	}
	if w.Start.Before(snap.Cutoff) {
		return nil, &models.WindowBeforeCutoffError{WindowStart: w.Start, Cutoff: snap.Cutoff}
	}

	rows := a.features.ForecastRows(w)
	preds, err := a.model.Predict(ctx, snap.State, rows, a.confidence)
	if err != nil {
		return nil, fmt.Errorf("predict %s: %w", a.model.Name(), err)
	}
	if len(preds) != len(rows) {
		return nil, fmt.Errorf("model returned %d predictions for %d hours", len(preds), len(rows))
	}

	recs := make([]models.ForecastRecord, len(rows))
	widened := 0
	for i, p := range preds {
		if !p.Timestamp.IsZero() && !p.Timestamp.Equal(rows[i].Timestamp) {
			return nil, fmt.Errorf("prediction %d is for %s, want %s", i, p.Timestamp, rows[i].Timestamp)
		}
		if math.IsNaN(p.Point) || math.IsNaN(p.Lower) || math.IsNaN(p.Upper) {
			return nil, fmt.Errorf("prediction %d for %s is not a number", i, rows[i].Timestamp)
		}
		lower, upper := math.Min(p.Lower, p.Point), math.Max(p.Upper, p.Point)
		if lower != p.Lower || upper != p.Upper {
			widened++
		}
		recs[i] = models.ForecastRecord{
			WindowID:  w.ID(),
			Timestamp: rows[i].Timestamp,
			Point:     p.Point,
			Lower:     lower,
			Upper:     upper,
		}
	}
	if widened > 0 {
		a.log.Warn("interval widened to contain point estimate",
			logger.String("window", w.ID()),
			logger.Int("hours", widened),
		)
	}
	return recs, nil
}

// LoadSnapshot reads the persisted snapshot.
func (a *Adapter) LoadSnapshot(ctx context.Context) (*models.ModelSnapshot, error) {
	snap, err := a.store.Load(ctx)
	if err != nil {
		if errors.Is(err, models.ErrNoSnapshot) {
			return nil, err
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return snap, nil
}

// prepareHistory drops observations at or after cutoff and returns the rest sorted and
// deduplicated by timestamp, keeping the last value seen for a repeated hour.
func prepareHistory(history []models.Observation, cutoff time.Time) ([]models.Observation, int) {
	kept := make([]models.Observation, 0, len(history))
	dropped := 0
	for _, o := range history {
		if !o.Timestamp.Before(cutoff) {
			dropped++
			continue
		}
		kept = append(kept, o)
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Timestamp.Before(kept[j].Timestamp) })

	out := kept[:0]
	for _, o := range kept {
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(o.Timestamp) {
			out[n-1] = o
			continue
		}
		out = append(out, o)
	}
	return out, dropped
}
