package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceCast/internal/domain/models"
	memrepo "PriceCast/internal/repository"
	"PriceCast/pkg/logger"
)

func newTestReconciler(repo *memrepo.MemoryRepository, m *fakeMetrics) *Reconciler {
	r := NewReconciler(repo, m, logger.Nop(), ReconcileConfig{MinCoverage: 0.8, MAPEFloor: 100})
	r.now = func() time.Time { return october27.Add(time.Minute) }
	return r
}

func TestReconcileComputesErrorsAndSkipsLowPricesForMAPE(t *testing.T) {
	ctx := context.Background()
	repo := memrepo.NewMemoryRepository()
	w := models.WindowAt(october20)
	require.NoError(t, repo.WriteForecast(ctx, w, constantForecast(w, 100)))
	// Alternate 90 and 110: every hour misses by 10, only the 110 hours clear the floor.
	seedPrices(repo, w.Start, w.Hours(), func(ts time.Time) float64 {
		if ts.Hour()%2 == 0 {
			return 90
		}
		return 110
	})

	m := &fakeMetrics{}
	rec, err := newTestReconciler(repo, m).Reconcile(ctx, w)
	require.NoError(t, err)

	assert.Equal(t, 168, rec.SampleCount)
	assert.Equal(t, 84, rec.ExcludedCount)
	assert.InDelta(t, 10, rec.MAE, 1e-9)
	assert.InDelta(t, 10, rec.RMSE, 1e-9)
	assert.InDelta(t, 10.0/110*100, rec.MAPE, 1e-9)
	assert.True(t, rec.MAPEComputable)
	assert.InDelta(t, 1.0, rec.Coverage, 1e-9)
	assert.Equal(t, october27.Add(time.Minute), rec.ComputedAt)

	stored, ok, err := repo.ReadComparison(ctx, w)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, *rec, stored)

	hourly, err := repo.ReadHourlyComparison(ctx, w)
	require.NoError(t, err)
	require.Len(t, hourly, 168)
	assert.False(t, hourly[0].PercentageIncluded)
	assert.True(t, hourly[1].PercentageIncluded)
	assert.InDelta(t, 10.0/90*100, hourly[0].PercentageError, 1e-9)

	require.Len(t, m.comparisons, 1)
}

func TestReconcileRMSEWeighsLargeMisses(t *testing.T) {
	ctx := context.Background()
	repo := memrepo.NewMemoryRepository()
	w := models.WindowAt(october20)
	require.NoError(t, repo.WriteForecast(ctx, w, constantForecast(w, 1000)))
	seedPrices(repo, w.Start, w.Hours(), func(ts time.Time) float64 {
		if ts.Equal(w.Start) {
			return 1168 // one miss of 168
		}
		return 1000
	})

	rec, err := newTestReconciler(repo, &fakeMetrics{}).Reconcile(ctx, w)
	require.NoError(t, err)
	assert.InDelta(t, 1, rec.MAE, 1e-9)
	assert.InDelta(t, math.Sqrt(168), rec.RMSE, 1e-9)
	assert.Greater(t, rec.RMSE, rec.MAE)
}

func TestReconcileAllBelowFloor(t *testing.T) {
	ctx := context.Background()
	repo := memrepo.NewMemoryRepository()
	w := models.WindowAt(october20)
	require.NoError(t, repo.WriteForecast(ctx, w, constantForecast(w, 60)))
	seedPrices(repo, w.Start, w.Hours(), func(time.Time) float64 { return 50 })

	rec, err := newTestReconciler(repo, &fakeMetrics{}).Reconcile(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, 0.0, rec.MAPE)
	assert.False(t, rec.MAPEComputable)
	assert.Equal(t, rec.SampleCount, rec.ExcludedCount)
	assert.InDelta(t, 10, rec.MAE, 1e-9)
}

func TestReconcileSkips(t *testing.T) {
	tests := []struct {
		name     string
		forecast bool
		realized int
		matched  int
	}{
		{name: "no realized prices", forecast: true, realized: 0, matched: 0},
		{name: "coverage below minimum", forecast: true, realized: 100, matched: 100},
		{name: "no forecast", forecast: false, realized: 168, matched: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			repo := memrepo.NewMemoryRepository()
			w := models.WindowAt(october20)
			if tt.forecast {
				require.NoError(t, repo.WriteForecast(ctx, w, constantForecast(w, 100)))
			}
			seedPrices(repo, w.Start, tt.realized, func(time.Time) float64 { return 120 })

			m := &fakeMetrics{}
			rec, err := newTestReconciler(repo, m).Reconcile(ctx, w)
			assert.Nil(t, rec)

			var skipped *models.ReconciliationSkipped
			require.True(t, errors.As(err, &skipped), "got %v", err)
			assert.Equal(t, w.ID(), skipped.WindowID)
			assert.Equal(t, tt.matched, skipped.Matched)
			assert.Equal(t, 168, skipped.Expected)

			_, ok, err := repo.ReadComparison(ctx, w)
			require.NoError(t, err)
			assert.False(t, ok)
			hourly, err := repo.ReadHourlyComparison(ctx, w)
			require.NoError(t, err)
			assert.Empty(t, hourly)
			assert.Empty(t, m.comparisons)
		})
	}
}

func TestReconcileIgnoresRealizedOutsideWindowAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := memrepo.NewMemoryRepository()
	w := models.WindowAt(october20)
	require.NoError(t, repo.WriteForecast(ctx, w, constantForecast(w, 100)))
	seedPrices(repo, october13, 3*168, func(time.Time) float64 { return 150 })

	r := newTestReconciler(repo, &fakeMetrics{})
	first, err := r.Reconcile(ctx, w)
	require.NoError(t, err)
	second, err := r.Reconcile(ctx, w)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 168, second.SampleCount)

	all, err := repo.ReadComparisons(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	hourly, err := repo.ReadHourlyComparison(ctx, w)
	require.NoError(t, err)
	assert.Len(t, hourly, 168)
}
