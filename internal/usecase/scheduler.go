package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PriceCast/pkg/logger"
)

// WeeklyRunner is the part of CycleRunner the scheduler drives.
type WeeklyRunner interface {
	RunWeekly(ctx context.Context) (*CycleReport, error)
}

// Scheduler fires the weekly cycle every Monday at a fixed market wall clock time.
// One cycle runs at a time; a cycle that overruns the next slot delays it.
type Scheduler struct {
	runner WeeklyRunner
	loc    *time.Location
	hour   int
	minute int
	log    *logger.Logger
	now    func() time.Time
	after  func(time.Duration) <-chan time.Time
}

// NewScheduler parses at as HH:MM in loc.
func NewScheduler(runner WeeklyRunner, loc *time.Location, at string, log *logger.Logger) (*Scheduler, error) {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", at, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		runner: runner,
		loc:    loc,
		hour:   t.Hour(),
		minute: t.Minute(),
		log:    log,
		now:    time.Now,
		after:  time.After,
	}, nil
}

// NextRun returns the first scheduled Monday slot strictly after now.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	local := now.In(s.loc)
	days := (int(time.Monday) - int(local.Weekday()) + 7) % 7
	next := time.Date(local.Year(), local.Month(), local.Day()+days, s.hour, s.minute, 0, 0, s.loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

// Run blocks until ctx is cancelled. Failed cycles are logged and the next
// slot is still scheduled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		next := s.NextRun(s.now())
		s.log.Info("weekly cycle scheduled", logger.Time("at", next))

		select {
		case <-ctx.Done():
			return nil
		case <-s.after(next.Sub(s.now())):
		}

		report, err := s.runner.RunWeekly(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			s.log.Error("scheduled cycle failed", logger.Error(err))
		default:
			s.log.Info("scheduled cycle finished",
				logger.String("window", report.Window.ID()),
				logger.String("result", report.Result()),
			)
		}
	}
}
