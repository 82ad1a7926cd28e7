package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceCast/internal/domain/models"
	"PriceCast/internal/repository"
	"PriceCast/internal/usecase"
	"PriceCast/pkg/cache"
	xhttp "PriceCast/pkg/http"
	xlogger "PriceCast/pkg/logger"
)

var october20 = time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC)

type countingAssembler struct {
	inner SnapshotAssembler
	calls int
}

func (a *countingAssembler) Assemble(ctx context.Context, w models.TimeWindow) (*models.PublishedSnapshot, error) {
	a.calls++
	return a.inner.Assemble(ctx, w)
}

type unhealthyRepo struct{ *repository.MemoryRepository }

func (unhealthyRepo) Health(context.Context) error { return errors.New("connection refused") }

type apiFixture struct {
	e         *echo.Echo
	repo      *repository.MemoryRepository
	assembler *countingAssembler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	w := models.WindowAt(october20)
	recs := make([]models.ForecastRecord, 0, w.Hours())
	for _, ts := range w.Timestamps() {
		recs = append(recs, models.ForecastRecord{WindowID: w.ID(), Timestamp: ts, Point: 2450.756, Lower: 2100, Upper: 2800})
	}
	require.NoError(t, repo.WriteForecast(ctx, w, recs))
	for i := 1; i <= 3; i++ {
		pw := models.WindowAt(october20.AddDate(0, 0, -7*i))
		require.NoError(t, repo.WriteComparison(ctx, models.ComparisonRecord{
			Window: pw, MAE: float64(100 * i), RMSE: float64(120 * i), MAPE: 4.321, MAPEComputable: true,
			SampleCount: 168, Coverage: 1,
		}))
	}

	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })

	asm := &countingAssembler{inner: usecase.NewPublisher(repo, xlogger.Nop(), usecase.PublishConfig{})}
	h := NewForecastEchoHandler(xlogger.Nop(), repo, asm, mc, time.Minute, "memory",
		func() models.TimeWindow { return w })

	e := echo.New()
	h.RegisterRoutes(e)
	return &apiFixture{e: e, repo: repo, assembler: asm}
}

func (fx *apiFixture) get(t *testing.T, target string, data interface{}) (int, xhttp.APIResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	fx.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	var env xhttp.APIResponse
	if data != nil {
		env.Data = data
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestSnapshotIsCached(t *testing.T) {
	fx := newAPIFixture(t)

	var snap models.PublishedSnapshot
	code, _ := fx.get(t, "/api/snapshot", &snap)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2025-10-20", snap.CurrentWeek.Start)
	assert.Len(t, snap.CurrentWeek.Forecasts, 168)
	assert.Equal(t, 2450.76, snap.CurrentWeek.Forecasts[0].Predicted)
	assert.Len(t, snap.HistoricalTrend, 3)
	require.NotNil(t, snap.LastWeekPerformance)
	assert.Equal(t, "2025-10-13", snap.LastWeekPerformance.WindowID)

	code, _ = fx.get(t, "/api/snapshot", &models.PublishedSnapshot{})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, fx.assembler.calls)
}

func TestForecastByWeek(t *testing.T) {
	fx := newAPIFixture(t)

	var res models.ForecastResponse
	code, env := fx.get(t, "/api/forecast?week=2025-10-20", &res)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, http.StatusOK, env.Status)
	assert.Equal(t, "2025-10-20", res.WindowID)
	assert.Equal(t, "2025-10-26", res.End)
	require.Len(t, res.Forecasts, 168)
	assert.Equal(t, "2025-10-26 23:00:00", res.Forecasts[167].Datetime)

	code, _ = fx.get(t, "/api/forecast", &models.ForecastResponse{})
	assert.Equal(t, http.StatusOK, code, "defaults to the current week")
}

func TestForecastRejectsBadWeeks(t *testing.T) {
	fx := newAPIFixture(t)

	tests := []struct {
		target string
		status int
		code   string
	}{
		{target: "/api/forecast?week=20-10-2025", status: http.StatusBadRequest, code: "ERR_DATETIME"},
		{target: "/api/forecast?week=2025-10-21", status: http.StatusBadRequest, code: "ERR_BAD_REQUEST"},
		{target: "/api/forecast?week=2025-10-27", status: http.StatusNotFound, code: "ERR_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			var errs []map[string]interface{}
			code, _ := fx.get(t, tt.target, &errs)
			assert.Equal(t, tt.status, code)
			require.Len(t, errs, 1)
			assert.Equal(t, tt.code, errs[0]["code"])
		})
	}
}

func TestPerformanceWeeks(t *testing.T) {
	fx := newAPIFixture(t)

	var perf []models.PublishedPerformance
	code, _ := fx.get(t, "/api/performance", &perf)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, perf, 3)
	assert.Equal(t, "2025-10-13", perf[0].WindowID)
	assert.Equal(t, 4.32, perf[0].MAPE)

	perf = nil
	code, _ = fx.get(t, "/api/performance?weeks=1", &perf)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, perf, 1)

	for _, q := range []string{"0", "53"} {
		var errs []xhttp.ValidationError
		code, _ = fx.get(t, "/api/performance?weeks="+q, &errs)
		assert.Equal(t, http.StatusBadRequest, code)
		require.Len(t, errs, 1)
		assert.Equal(t, "weeks", errs[0].Field)
	}

	var errs []xhttp.ValidationError
	code, _ = fx.get(t, "/api/performance?weeks=many", &errs)
	assert.Equal(t, http.StatusBadRequest, code)
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_BIND", errs[0].Code)
}

func TestHealth(t *testing.T) {
	fx := newAPIFixture(t)

	var h models.HealthResponse
	code, _ := fx.get(t, "/health", &h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.HealthResponse{Status: "ok", Backend: "memory"}, h)

	mc := cache.NewMemoryCache()
	defer mc.Close()
	sick := NewForecastEchoHandler(xlogger.Nop(), unhealthyRepo{fx.repo}, fx.assembler, mc, time.Minute, "clickhouse",
		func() models.TimeWindow { return models.WindowAt(october20) })
	e := echo.New()
	sick.RegisterRoutes(e)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}
