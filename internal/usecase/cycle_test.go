package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceCast/internal/domain/models"
	drepo "PriceCast/internal/domain/repository"
	"PriceCast/internal/domain/service"
	memrepo "PriceCast/internal/repository"
	"PriceCast/internal/services/calendar"
	"PriceCast/internal/services/forecaster"
	"PriceCast/pkg/logger"
)

type cycleFixture struct {
	repo     *memrepo.MemoryRepository
	runner   *CycleRunner
	locker   *fakeLocker
	metrics  *fakeMetrics
	clock    *steppingClock
	artifact string
	snapshot string
}

func newCycleFixture(t *testing.T, f service.Forecaster, snapshotPath string, exporters ...drepo.Exporter) *cycleFixture {
	t.Helper()
	dir := t.TempDir()
	fx := &cycleFixture{
		repo:     memrepo.NewMemoryRepository(),
		locker:   newFakeLocker(),
		metrics:  &fakeMetrics{},
		clock:    &steppingClock{t: october20.Add(6 * time.Hour)},
		artifact: filepath.Join(dir, memrepo.JSONFileName),
		snapshot: snapshotPath,
	}
	exporters = append([]drepo.Exporter{memrepo.NewJSONFileExporter(dir)}, exporters...)

	rec := newTestReconciler(fx.repo, fx.metrics)
	pub := newTestPublisher(fx.repo, PublishConfig{ForecastDays: 7, HistoryWeeks: 8}, exporters...)
	fx.runner = NewCycleRunner(fx.repo, f, rec, pub, fx.locker, fx.metrics, logger.Nop(),
		CycleConfig{Location: time.UTC, Deadline: 2 * time.Hour})
	fx.runner.now = fx.clock.Now
	return fx
}

// newProfileFixture wires the real adapter with the profile model and a file snapshot store.
func newProfileFixture(t *testing.T) *cycleFixture {
	t.Helper()
	snapPath := filepath.Join(t.TempDir(), "models", "snapshot.json")
	adapter := forecaster.NewAdapter(
		forecaster.NewProfileModel(4, 168*time.Hour),
		calendar.NewFeatures(nil, 1),
		forecaster.NewFileSnapshotStore(snapPath),
		logger.Nop(),
	)
	fx := newCycleFixture(t, adapter, snapPath)
	// Five weeks before the 20th plus the realized week of the 20th.
	seedPrices(fx.repo, october20.AddDate(0, 0, -35), 6*168, weeklyPrice)
	return fx
}

func TestBootstrapRunsTwoConsecutiveCycles(t *testing.T) {
	fx := newProfileFixture(t)
	ctx := context.Background()

	reports, err := fx.runner.Bootstrap(ctx, time.Date(2025, 10, 22, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, reports, 2)

	first, second := reports[0], reports[1]
	assert.Equal(t, "2025-10-20", first.Window.ID())
	assert.Equal(t, "2025-10-27", second.Window.ID())
	for _, rep := range reports {
		assert.True(t, rep.Success)
		assert.Equal(t, StateDone, rep.State)
		assert.Equal(t, 168, rep.Forecasts)
		assert.NoError(t, rep.Err)
	}

	// The first week has nothing to score yet.
	step, ok := first.Step(StepReconcilePrevious)
	require.True(t, ok)
	assert.Equal(t, StepSkipped, step.Status)
	assert.True(t, first.Degraded)

	// The second week scores the first against realized prices.
	step, ok = second.Step(StepReconcilePrevious)
	require.True(t, ok)
	assert.Equal(t, StepSucceeded, step.Status)
	require.NotNil(t, second.Comparison)
	assert.Equal(t, "2025-10-20", second.Comparison.Window.ID())
	assert.Equal(t, 168, second.Comparison.SampleCount)
	assert.InDelta(t, 0, second.Comparison.MAE, 1e-6)
	assert.True(t, second.Comparison.MAPEComputable)
	assert.False(t, second.Degraded)

	forecast, err := fx.repo.ReadForecast(ctx, models.WindowAt(october27))
	require.NoError(t, err)
	require.Len(t, forecast, 168)
	assert.Equal(t, october27, forecast[0].Timestamp)
	assert.InDelta(t, weeklyPrice(october27), forecast[0].Point, 1e-6)

	require.NotNil(t, second.Published)
	snap := second.Published.Snapshot
	assert.Equal(t, "2025-10-27", snap.CurrentWeek.Start)
	require.NotNil(t, snap.LastWeekPerformance)
	assert.Equal(t, "2025-10-20 - 2025-10-26", snap.LastWeekPerformance.Week)
	assert.FileExists(t, fx.artifact)
	assert.FileExists(t, fx.snapshot)

	assert.Equal(t, []string{"cycle:2025-10-20", "cycle:2025-10-27"}, fx.locker.acquired)
	assert.Equal(t, fx.locker.acquired, fx.locker.released)
	assert.Equal(t, []string{"bootstrap/degraded", "bootstrap/success"}, fx.metrics.cycles)
}

func TestRunWeeklyTargetsCurrentCalendarWeek(t *testing.T) {
	stub := &stubForecaster{}
	fx := newCycleFixture(t, stub, "")
	istanbul, err := time.LoadLocation("Europe/Istanbul")
	require.NoError(t, err)
	fx.runner.cfg.Location = istanbul
	// Sunday 22:30 UTC is already Monday 01:30 in Istanbul.
	fx.clock.t = time.Date(2025, 10, 26, 22, 30, 0, 0, time.UTC)

	rep, err := fx.runner.RunWeekly(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025-10-27", rep.Window.ID())
	assert.Equal(t, []time.Time{october27}, stub.trained)
	assert.Equal(t, ModeWeekly, rep.Mode)

	steps := make([]StepName, 0, len(rep.Steps))
	for _, s := range rep.Steps {
		steps = append(steps, s.Step)
	}
	assert.Equal(t, []StepName{StepReconcilePrevious, StepRetrain, StepForecastCurrent, StepPublish}, steps)
	assert.Equal(t, []string{
		"reconcile_previous/skipped",
		"retrain/succeeded",
		"forecast_current/succeeded",
		"publish/skipped",
	}, fx.metrics.steps)
	assert.Equal(t, 168, fx.metrics.rows)
}

func TestCycleRerunKeepsOneForecastPerHour(t *testing.T) {
	fx := newProfileFixture(t)
	ctx := context.Background()
	w := models.WindowAt(october20)

	for i := 0; i < 2; i++ {
		rep, err := fx.runner.RunForWindow(ctx, w)
		require.NoError(t, err)
		assert.True(t, rep.Success)
	}

	recs, err := fx.repo.ReadForecast(ctx, w)
	require.NoError(t, err)
	assert.Len(t, recs, 168)
}

func TestFailedRetrainLeavesSnapshotAndArtifactUntouched(t *testing.T) {
	fx := newProfileFixture(t)
	ctx := context.Background()

	_, err := fx.runner.RunForWindow(ctx, models.WindowAt(october20))
	require.NoError(t, err)
	artifactBefore, err := os.ReadFile(fx.artifact)
	require.NoError(t, err)
	snapshotBefore, err := os.ReadFile(fx.snapshot)
	require.NoError(t, err)

	// No history exists before this window, so training cannot succeed.
	early := models.WindowAt(time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC))
	rep, err := fx.runner.RunForWindow(ctx, early)
	require.Error(t, err)

	var insufficient *models.InsufficientDataError
	assert.True(t, errors.As(err, &insufficient))
	assert.False(t, rep.Success)
	assert.Equal(t, StateFailed, rep.State)
	step, ok := rep.Step(StepRetrain)
	require.True(t, ok)
	assert.Equal(t, StepFailed, step.Status)
	_, ok = rep.Step(StepForecastCurrent)
	assert.False(t, ok)
	_, ok = rep.Step(StepPublish)
	assert.False(t, ok)

	artifactAfter, err := os.ReadFile(fx.artifact)
	require.NoError(t, err)
	snapshotAfter, err := os.ReadFile(fx.snapshot)
	require.NoError(t, err)
	assert.Equal(t, artifactBefore, artifactAfter)
	assert.Equal(t, snapshotBefore, snapshotAfter)
	assert.Equal(t, []string{"cycle:2025-01-06"}, fx.locker.released[1:])
}

func TestBusyLockFailsWithoutTouchingState(t *testing.T) {
	stub := &stubForecaster{}
	fx := newCycleFixture(t, stub, "")
	fx.locker.held["cycle:2025-10-20"] = true

	rep, err := fx.runner.RunForWindow(context.Background(), models.WindowAt(october20))
	require.ErrorIs(t, err, models.ErrCycleInProgress)
	assert.Equal(t, StateFailed, rep.State)
	assert.Empty(t, rep.Steps)
	assert.Empty(t, stub.trained)
	assert.NoFileExists(t, fx.artifact)

	recs, err := fx.repo.ReadForecast(context.Background(), models.WindowAt(october20))
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Empty(t, fx.locker.released)
	assert.Equal(t, []string{"manual/failed"}, fx.metrics.cycles)
}

func TestLockErrorFailsCycle(t *testing.T) {
	fx := newCycleFixture(t, &stubForecaster{}, "")
	fx.locker.err = errors.New("redis down")

	_, err := fx.runner.RunForWindow(context.Background(), models.WindowAt(october20))
	assert.ErrorContains(t, err, "acquire cycle:2025-10-20: redis down")
}

func TestFatalStepsAbortBeforePublish(t *testing.T) {
	tests := []struct {
		name   string
		stub   *stubForecaster
		failed StepName
	}{
		{name: "retrain error", stub: &stubForecaster{trainErr: errors.New("fit exploded")}, failed: StepRetrain},
		{name: "short forecast", stub: &stubForecaster{rows: 167}, failed: StepForecastCurrent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newCycleFixture(t, tt.stub, "")

			rep, err := fx.runner.RunForWindow(context.Background(), models.WindowAt(october20))
			require.Error(t, err)
			assert.False(t, rep.Success)
			assert.Equal(t, StateFailed, rep.State)
			assert.ErrorContains(t, err, string(tt.failed))

			step, ok := rep.Step(tt.failed)
			require.True(t, ok)
			assert.Equal(t, StepFailed, step.Status)
			_, ok = rep.Step(StepPublish)
			assert.False(t, ok)
			assert.NoFileExists(t, fx.artifact)

			recs, err := fx.repo.ReadForecast(context.Background(), models.WindowAt(october20))
			require.NoError(t, err)
			assert.Empty(t, recs)
		})
	}
}

func TestPublishFailureDegradesButSucceeds(t *testing.T) {
	fx := newCycleFixture(t, &stubForecaster{}, "", failingExporter{name: "kafka"})

	rep, err := fx.runner.RunForWindow(context.Background(), models.WindowAt(october20))
	require.NoError(t, err)
	assert.True(t, rep.Success)
	assert.True(t, rep.Degraded)
	step, ok := rep.Step(StepPublish)
	require.True(t, ok)
	assert.Equal(t, StepSkipped, step.Status)

	var degraded *models.PublishDegraded
	require.True(t, errors.As(step.Err, &degraded))
	assert.True(t, degraded.Written)
	assert.FileExists(t, fx.artifact)
}

func TestDeadlineCheckedBetweenSteps(t *testing.T) {
	stub := &stubForecaster{}
	fx := newCycleFixture(t, stub, "")
	stub.onTrain = func() { fx.clock.Advance(3 * time.Hour) }

	rep, err := fx.runner.RunForWindow(context.Background(), models.WindowAt(october20))
	require.ErrorIs(t, err, models.ErrDeadlineExceeded)
	assert.Equal(t, StateFailed, rep.State)

	// Retrain ran to completion before the boundary check.
	step, ok := rep.Step(StepRetrain)
	require.True(t, ok)
	assert.Equal(t, StepSucceeded, step.Status)
	assert.Equal(t, 3*time.Hour, step.Duration)
	_, ok = rep.Step(StepForecastCurrent)
	assert.False(t, ok)
	assert.Len(t, fx.locker.released, 1)
}

func TestLateDeadlineOnlySkipsPublish(t *testing.T) {
	stub := &stubForecaster{}
	fx := newCycleFixture(t, stub, "")
	stub.onForecast = func() { fx.clock.Advance(3 * time.Hour) }

	rep, err := fx.runner.RunForWindow(context.Background(), models.WindowAt(october20))
	require.NoError(t, err)
	assert.True(t, rep.Success)
	assert.True(t, rep.Degraded)

	step, ok := rep.Step(StepPublish)
	require.True(t, ok)
	assert.Equal(t, StepSkipped, step.Status)
	assert.ErrorIs(t, step.Err, models.ErrDeadlineExceeded)
	assert.NoFileExists(t, fx.artifact)
}

func TestCancelledContextStopsBeforeFirstStep(t *testing.T) {
	stub := &stubForecaster{}
	fx := newCycleFixture(t, stub, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := fx.runner.RunForWindow(ctx, models.WindowAt(october20))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rep.Steps)
	assert.Empty(t, stub.trained)
}

func TestBootstrapDefaultsToPreviousAndCurrentWeek(t *testing.T) {
	stub := &stubForecaster{}
	fx := newCycleFixture(t, stub, "")
	fx.clock.t = time.Date(2025, 10, 29, 9, 0, 0, 0, time.UTC)

	reports, err := fx.runner.Bootstrap(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, []time.Time{october20, october27}, stub.trained)
}

func TestBootstrapReportsFirstFailureButRunsBoth(t *testing.T) {
	stub := &stubForecaster{trainErr: errors.New("fit exploded")}
	fx := newCycleFixture(t, stub, "")

	reports, err := fx.runner.Bootstrap(context.Background(), october20)
	require.Error(t, err)
	assert.ErrorContains(t, err, "bootstrap 2025-10-20")
	require.Len(t, reports, 2)
	assert.Len(t, stub.trained, 2)
}
