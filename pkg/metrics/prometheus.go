package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"PriceCast/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cycles       *prometheus.CounterVec
	steps        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	lastError    *prometheus.GaugeVec
	coverage     prometheus.Gauge
	forecastRows prometheus.Gauge
}

// New creates a recorder registered on reg. A nil reg uses the default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Recorder{
		cycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricecast_cycles_total",
				Help: "Forecast cycles by mode and result",
			},
			[]string{"mode", "result"},
		),
		steps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricecast_steps_total",
				Help: "Cycle steps by outcome",
			},
			[]string{"step", "status"},
		),
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricecast_step_duration_seconds",
				Help:    "Duration of cycle steps in seconds",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
			},
			[]string{"step", "status"},
		),
		lastError: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pricecast_last_error",
				Help: "Error metrics of the most recently reconciled window",
			},
			[]string{"metric"},
		),
		coverage: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pricecast_last_coverage_ratio",
			Help: "Share of window hours matched in the last reconciliation",
		}),
		forecastRows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pricecast_forecast_rows",
			Help: "Rows written by the last forecast step",
		}),
	}
}

// RecordCycle counts a finished cycle.
func (r *Recorder) RecordCycle(mode, result string) {
	r.cycles.WithLabelValues(mode, result).Inc()
}

// RecordStep records a step outcome and its latency.
func (r *Recorder) RecordStep(step, status string, seconds float64) {
	r.steps.WithLabelValues(step, status).Inc()
	r.stepDuration.WithLabelValues(step, status).Observe(seconds)
}

// RecordComparison exposes the latest window errors. MAPE is left untouched when not computable.
func (r *Recorder) RecordComparison(rec models.ComparisonRecord) {
	r.lastError.WithLabelValues("mae").Set(rec.MAE)
	r.lastError.WithLabelValues("rmse").Set(rec.RMSE)
	if rec.MAPEComputable {
		r.lastError.WithLabelValues("mape").Set(rec.MAPE)
	}
	r.coverage.Set(rec.Coverage)
}

func (r *Recorder) RecordForecastRows(n int) {
	r.forecastRows.Set(float64(n))
}
