package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PriceCast/internal/domain/models"
	drepo "PriceCast/internal/domain/repository"
	"PriceCast/internal/domain/service"
	"PriceCast/internal/services/calendar"
	"PriceCast/pkg/logger"
)

// StepName identifies one step of the weekly cycle.
type StepName string

const (
	StepReconcilePrevious StepName = "reconcile_previous"
	StepRetrain           StepName = "retrain"
	StepForecastCurrent   StepName = "forecast_current"
	StepPublish           StepName = "publish"
)

// StepStatus is the tagged outcome of a step.
type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepSkipped   StepStatus = "skipped" // non-fatal, the cycle continues
	StepFailed    StepStatus = "failed"
)

// CycleState is the state machine position of a cycle.
type CycleState string

const (
	StateStart             CycleState = "START"
	StateReconcilePrevious CycleState = "RECONCILE_PREVIOUS"
	StateRetrain           CycleState = "RETRAIN"
	StateForecastCurrent   CycleState = "FORECAST_CURRENT"
	StatePublish           CycleState = "PUBLISH"
	StateDone              CycleState = "DONE"
	StateFailed            CycleState = "FAILED"
)

// Cycle modes, used as the metrics label.
const (
	ModeWeekly    = "weekly"
	ModeBootstrap = "bootstrap"
	ModeManual    = "manual"
)

type StepResult struct {
	Step     StepName
	Status   StepStatus
	Err      error
	Duration time.Duration
}

// CycleReport is the outcome of one cycle.
// Success holds iff retrain and forecast_current both succeeded.
type CycleReport struct {
	Mode       string
	Window     models.TimeWindow
	State      CycleState
	Success    bool
	Degraded   bool
	Steps      []StepResult
	Err        error
	Comparison *models.ComparisonRecord
	Forecasts  int
	Published  *PublishResult
}

// Step returns the result of the named step if it ran.
func (r *CycleReport) Step(name StepName) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Step == name {
			return s, true
		}
	}
	return StepResult{}, false
}

// Result is the metrics label of the cycle: success, degraded or failed.
func (r *CycleReport) Result() string {
	switch {
	case !r.Success:
		return "failed"
	case r.Degraded:
		return "degraded"
	default:
		return "success"
	}
}

type CycleConfig struct {
	Location   *time.Location
	Deadline   time.Duration // zero disables the cycle deadline
	LockMargin time.Duration // added to Deadline for the lock lease
}

// CycleRunner drives RECONCILE_PREVIOUS, RETRAIN, FORECAST_CURRENT and PUBLISH
// for one window. Steps run sequentially; cancellation and the deadline are
// honoured only between steps.
type CycleRunner struct {
	repo       drepo.PriceRepository
	forecaster service.Forecaster
	reconciler *Reconciler
	publisher  *Publisher
	locker     drepo.Locker
	metrics    drepo.Metrics
	log        *logger.Logger
	cfg        CycleConfig
	now        func() time.Time
}

// NewCycleRunner creates a new CycleRunner instance. locker and metrics may be nil.
func NewCycleRunner(
	repo drepo.PriceRepository,
	forecaster service.Forecaster,
	reconciler *Reconciler,
	publisher *Publisher,
	locker drepo.Locker,
	metrics drepo.Metrics,
	log *logger.Logger,
	cfg CycleConfig,
) *CycleRunner {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LockMargin <= 0 {
		cfg.LockMargin = 5 * time.Minute
	}
	return &CycleRunner{
		repo:       repo,
		forecaster: forecaster,
		reconciler: reconciler,
		publisher:  publisher,
		locker:     locker,
		metrics:    metrics,
		log:        log,
		cfg:        cfg,
		now:        time.Now,
	}
}

// CurrentWindow returns the window of the calendar week containing now.
func (c *CycleRunner) CurrentWindow() models.TimeWindow {
	return calendar.WindowFor(c.now(), 0, c.cfg.Location)
}

// RunWeekly runs the cycle for the current calendar week.
func (c *CycleRunner) RunWeekly(ctx context.Context) (*CycleReport, error) {
	return c.run(ctx, ModeWeekly, c.CurrentWindow())
}

// RunForWindow runs the cycle treating w as the current week.
func (c *CycleRunner) RunForWindow(ctx context.Context, w models.TimeWindow) (*CycleReport, error) {
	return c.run(ctx, ModeManual, w)
}

// Bootstrap runs two consecutive cycles starting at the week containing from,
// or at the previous week when from is zero. The second cycle still runs when
// the first fails; the returned error is the first failure.
func (c *CycleRunner) Bootstrap(ctx context.Context, from time.Time) ([]*CycleReport, error) {
	first := calendar.WindowFor(c.now(), -1, c.cfg.Location)
	if !from.IsZero() {
		first = calendar.WindowStarting(from)
	}

	var firstErr error
	reports := make([]*CycleReport, 0, 2)
	for _, w := range []models.TimeWindow{first, first.Next()} {
		rep, err := c.run(ctx, ModeBootstrap, w)
		reports = append(reports, rep)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("bootstrap %s: %w", w.ID(), err)
		}
		if errors.Is(err, context.Canceled) {
			break
		}
	}
	return reports, firstErr
}

// run returns a non-nil error iff the report is not successful.
func (c *CycleRunner) run(ctx context.Context, mode string, w models.TimeWindow) (rep *CycleReport, err error) {
	rep = &CycleReport{Mode: mode, Window: w, State: StateStart}
	log := c.log.With(logger.String("mode", mode), logger.String("window", w.ID()))
	log.Info("cycle started", logger.Time("cutoff", w.Cutoff))

	defer func() {
		if c.metrics != nil {
			c.metrics.RecordCycle(mode, rep.Result())
		}
		if err != nil {
			log.Error("cycle failed", logger.String("state", string(rep.State)), logger.Error(err))
			return
		}
		log.Info("cycle finished",
			logger.Bool("degraded", rep.Degraded),
			logger.Int("forecasts", rep.Forecasts),
		)
	}()

	deadline := c.deadline(ctx)
	if c.locker != nil {
		release, lerr := c.acquire(ctx, w, log)
		if lerr != nil {
			return c.fail(rep, lerr)
		}
		defer release()
	}

	// Steps run detached from cancellation so a step is never torn mid-way.
	stepCtx := context.WithoutCancel(ctx)

	if berr := c.boundary(ctx, deadline); berr != nil {
		return c.fail(rep, berr)
	}
	c.enter(rep, StateReconcilePrevious, log)
	c.step(rep, StepReconcilePrevious, log, func() error {
		cmp, rerr := c.reconciler.Reconcile(stepCtx, w.Previous())
		rep.Comparison = cmp
		return rerr
	})

	if berr := c.boundary(ctx, deadline); berr != nil {
		return c.fail(rep, berr)
	}
	c.enter(rep, StateRetrain, log)
	res := c.step(rep, StepRetrain, log, func() error {
		history, herr := c.repo.ReadHistory(stepCtx, w.Cutoff)
		if herr != nil {
			return fmt.Errorf("read history: %w", herr)
		}
		_, terr := c.forecaster.Train(stepCtx, history, w.Cutoff)
		return terr
	})
	if res.Status == StepFailed {
		return c.fail(rep, fmt.Errorf("%s: %w", StepRetrain, res.Err))
	}

	if berr := c.boundary(ctx, deadline); berr != nil {
		return c.fail(rep, berr)
	}
	c.enter(rep, StateForecastCurrent, log)
	res = c.step(rep, StepForecastCurrent, log, func() error {
		n, ferr := c.forecastCurrent(stepCtx, w)
		rep.Forecasts = n
		return ferr
	})
	if res.Status == StepFailed {
		return c.fail(rep, fmt.Errorf("%s: %w", StepForecastCurrent, res.Err))
	}
	rep.Success = true

	// Model and forecast are durable here, so a late deadline only skips publishing.
	c.enter(rep, StatePublish, log)
	if berr := c.boundary(ctx, deadline); berr != nil {
		c.record(rep, StepResult{Step: StepPublish, Status: StepSkipped, Err: berr}, log)
	} else {
		c.step(rep, StepPublish, log, func() error {
			pub, perr := c.publisher.Publish(stepCtx, w)
			rep.Published = pub
			return perr
		})
	}

	c.enter(rep, StateDone, log)
	return rep, nil
}

func (c *CycleRunner) forecastCurrent(ctx context.Context, w models.TimeWindow) (int, error) {
	snap, err := c.forecaster.LoadSnapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("load snapshot: %w", err)
	}
	if !snap.Cutoff.Equal(w.Cutoff) {
		return 0, fmt.Errorf("snapshot cutoff %s does not match window cutoff %s",
			snap.Cutoff.Format(time.RFC3339), w.Cutoff.Format(time.RFC3339))
	}
	recs, err := c.forecaster.Forecast(ctx, snap, w)
	if err != nil {
		return 0, err
	}
	if len(recs) != w.Hours() {
		return 0, fmt.Errorf("forecast has %d rows, want %d", len(recs), w.Hours())
	}
	if err := c.repo.WriteForecast(ctx, w, recs); err != nil {
		return 0, fmt.Errorf("write forecast: %w", err)
	}
	if c.metrics != nil {
		c.metrics.RecordForecastRows(len(recs))
	}
	return len(recs), nil
}

// step runs fn and files its tagged result. Skips are recognised by the
// non-fatal domain errors.
func (c *CycleRunner) step(rep *CycleReport, name StepName, log *logger.Logger, fn func() error) StepResult {
	start := c.now()
	err := fn()
	res := StepResult{Step: name, Status: StepSucceeded, Err: err, Duration: c.now().Sub(start)}

	var skipped *models.ReconciliationSkipped
	var degraded *models.PublishDegraded
	switch {
	case err == nil:
	case errors.As(err, &skipped), errors.As(err, &degraded):
		res.Status = StepSkipped
	default:
		res.Status = StepFailed
	}
	c.record(rep, res, log)
	return res
}

func (c *CycleRunner) record(rep *CycleReport, res StepResult, log *logger.Logger) {
	rep.Steps = append(rep.Steps, res)
	if res.Status != StepSucceeded && (res.Step == StepReconcilePrevious || res.Step == StepPublish) {
		rep.Degraded = true
	}
	if c.metrics != nil {
		c.metrics.RecordStep(string(res.Step), string(res.Status), res.Duration.Seconds())
	}

	fields := []logger.Field{
		logger.String("step", string(res.Step)),
		logger.String("status", string(res.Status)),
		logger.Duration("duration", res.Duration),
	}
	switch res.Status {
	case StepSucceeded:
		log.Info("step finished", fields...)
	case StepSkipped:
		log.Warn("step skipped", append(fields, logger.Error(res.Err))...)
	default:
		log.Error("step failed", append(fields, logger.Error(res.Err))...)
	}
}

func (c *CycleRunner) enter(rep *CycleReport, s CycleState, log *logger.Logger) {
	log.Debug("cycle transition", logger.String("from", string(rep.State)), logger.String("to", string(s)))
	rep.State = s
}

func (c *CycleRunner) fail(rep *CycleReport, err error) (*CycleReport, error) {
	rep.State = StateFailed
	rep.Success = false
	rep.Err = err
	return rep, err
}

// deadline is the earlier of the configured cycle deadline and ctx's own.
func (c *CycleRunner) deadline(ctx context.Context) time.Time {
	var d time.Time
	if c.cfg.Deadline > 0 {
		d = c.now().Add(c.cfg.Deadline)
	}
	if cd, ok := ctx.Deadline(); ok && (d.IsZero() || cd.Before(d)) {
		d = cd
	}
	return d
}

func (c *CycleRunner) boundary(ctx context.Context, deadline time.Time) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.ErrDeadlineExceeded
		}
		return err
	}
	if !deadline.IsZero() && c.now().After(deadline) {
		return models.ErrDeadlineExceeded
	}
	return nil
}

func (c *CycleRunner) acquire(ctx context.Context, w models.TimeWindow, log *logger.Logger) (func(), error) {
	key := LockKey(w)
	ttl := c.cfg.Deadline + c.cfg.LockMargin
	ok, err := c.locker.TryLock(ctx, key, ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, models.ErrCycleInProgress)
	}
	log.Debug("cycle lock acquired", logger.String("key", key), logger.Duration("ttl", ttl))
	return func() {
		if err := c.locker.Unlock(context.WithoutCancel(ctx), key); err != nil {
			log.Warn("cycle lock release failed", logger.String("key", key), logger.Error(err))
		}
	}, nil
}

// LockKey is the advisory lock key of a window's cycle.
func LockKey(w models.TimeWindow) string { return "cycle:" + w.ID() }
