package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	ModelLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pricecast",
			Subsystem: "model",
			Name:      "latency_seconds",
			Help:      "Latency of model service calls",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 60, 300, 1200},
		},
		[]string{"endpoint"},
	)

	ModelErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricecast",
			Subsystem: "model",
			Name:      "errors_total",
			Help:      "Errors by model service endpoint",
		},
		[]string{"endpoint"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(ModelLatency, ModelErrors)
	})
}
