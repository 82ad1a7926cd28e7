package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"PriceCast/internal/domain/models"
	drepo "PriceCast/internal/domain/repository"
	"PriceCast/pkg/logger"
)

// ReconcileConfig tunes the scoring of a finished window.
type ReconcileConfig struct {
	MinCoverage float64 // matched/expected hours below this skip the window
	MAPEFloor   float64 // actual prices at or below this are left out of MAPE
}

// Reconciler scores a past window's forecast against realized prices.
type Reconciler struct {
	repo    drepo.PriceRepository
	metrics drepo.Metrics
	log     *logger.Logger
	cfg     ReconcileConfig
	now     func() time.Time
}

// NewReconciler creates a new Reconciler instance.
func NewReconciler(repo drepo.PriceRepository, metrics drepo.Metrics, log *logger.Logger, cfg ReconcileConfig) *Reconciler {
	return &Reconciler{repo: repo, metrics: metrics, log: log, cfg: cfg, now: time.Now}
}

// Reconcile joins forecast and realized hours of w, computes error metrics and
// stores them. A window without enough matched hours yields
// *models.ReconciliationSkipped and writes nothing.
func (r *Reconciler) Reconcile(ctx context.Context, w models.TimeWindow) (*models.ComparisonRecord, error) {
	forecast, err := r.repo.ReadForecast(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("read forecast %s: %w", w.ID(), err)
	}
	if len(forecast) == 0 {
		return nil, &models.ReconciliationSkipped{WindowID: w.ID(), Reason: "no forecast stored", Expected: w.Hours()}
	}
	realized, err := r.repo.ReadRealized(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("read realized %s: %w", w.ID(), err)
	}

	rec, hourly := score(w, forecast, realized, r.cfg.MAPEFloor)
	if rec.Coverage < r.cfg.MinCoverage || rec.SampleCount == 0 {
		return nil, &models.ReconciliationSkipped{
			WindowID: w.ID(),
			Reason:   fmt.Sprintf("coverage %.3f below %.3f", rec.Coverage, r.cfg.MinCoverage),
			Matched:  rec.SampleCount,
			Expected: w.Hours(),
		}
	}
	rec.ComputedAt = r.now().UTC()

	if err := r.repo.WriteHourlyComparison(ctx, w, hourly); err != nil {
		return nil, fmt.Errorf("write hourly comparison %s: %w", w.ID(), err)
	}
	if err := r.repo.WriteComparison(ctx, rec); err != nil {
		return nil, fmt.Errorf("write comparison %s: %w", w.ID(), err)
	}
	if r.metrics != nil {
		r.metrics.RecordComparison(rec)
	}

	r.log.Info("window reconciled",
		logger.String("window", w.ID()),
		logger.Float64("mae", rec.MAE),
		logger.Float64("rmse", rec.RMSE),
		logger.Float64("mape", rec.MAPE),
		logger.Bool("mape_computable", rec.MAPEComputable),
		logger.Int("samples", rec.SampleCount),
		logger.Int("excluded", rec.ExcludedCount),
	)
	return &rec, nil
}

// score inner-joins forecast and realized rows on timestamp. Hours outside the
// window are ignored.
func score(w models.TimeWindow, forecast []models.ForecastRecord, realized []models.Observation, floor float64) (models.ComparisonRecord, []models.HourlyComparison) {
	actual := make(map[time.Time]float64, len(realized))
	for _, o := range realized {
		if w.Contains(o.Timestamp) {
			actual[o.Timestamp] = o.Price
		}
	}

	var (
		absSum, sqSum, pctSum float64
		included              int
		hourly                = make([]models.HourlyComparison, 0, len(forecast))
		seen                  = make(map[time.Time]bool, len(forecast))
	)
	for _, f := range forecast {
		a, ok := actual[f.Timestamp]
		if !ok || seen[f.Timestamp] {
			continue
		}
		seen[f.Timestamp] = true

		absErr := math.Abs(a - f.Point)
		absSum += absErr
		sqSum += absErr * absErr

		row := models.HourlyComparison{
			WindowID:      w.ID(),
			Timestamp:     f.Timestamp,
			Predicted:     f.Point,
			Actual:        a,
			AbsoluteError: absErr,
		}
		if a != 0 {
			row.PercentageError = absErr / math.Abs(a) * 100
		}
		if a > floor {
			row.PercentageIncluded = true
			pctSum += row.PercentageError
			included++
		}
		hourly = append(hourly, row)
	}

	matched := len(hourly)
	rec := models.ComparisonRecord{
		Window:        w,
		SampleCount:   matched,
		ExcludedCount: matched - included,
		Coverage:      float64(matched) / float64(w.Hours()),
	}
	if matched > 0 {
		rec.MAE = absSum / float64(matched)
		rec.RMSE = math.Sqrt(sqSum / float64(matched))
	}
	if included > 0 {
		rec.MAPE = pctSum / float64(included)
		rec.MAPEComputable = true
	}
	return rec, hourly
}
