package usecase

import (
	"context"
	"fmt"
	"time"

	"PriceCast/internal/domain/models"
	drepo "PriceCast/internal/domain/repository"
	"PriceCast/pkg/logger"
)

// Sections of the published document reported in Missing when unavailable.
const (
	SectionCurrentWeek         = "current_week"
	SectionLastWeekPerformance = "last_week_performance"
	SectionLastWeekComparison  = "last_week_comparison"
	SectionHistoricalTrend     = "historical_trend"
)

type PublishConfig struct {
	ForecastDays int
	HistoryWeeks int
}

// PublishResult reports what a publish run produced.
type PublishResult struct {
	Snapshot *models.PublishedSnapshot
	Exported []string
}

// Publisher turns stored forecasts and comparisons into the published snapshot.
type Publisher struct {
	repo      drepo.PriceRepository
	exporters []drepo.Exporter
	log       *logger.Logger
	cfg       PublishConfig
	now       func() time.Time
}

// NewPublisher creates a new Publisher instance.
func NewPublisher(repo drepo.PriceRepository, log *logger.Logger, cfg PublishConfig, exporters ...drepo.Exporter) *Publisher {
	if cfg.ForecastDays <= 0 {
		cfg.ForecastDays = 7
	}
	if cfg.HistoryWeeks <= 0 {
		cfg.HistoryWeeks = 8
	}
	return &Publisher{repo: repo, exporters: exporters, log: log, cfg: cfg, now: time.Now}
}

// Publish assembles the snapshot for current and hands it to every exporter.
// Missing data or a failing exporter returns the result together with
// *models.PublishDegraded.
func (p *Publisher) Publish(ctx context.Context, current models.TimeWindow) (*PublishResult, error) {
	snap, err := p.Assemble(ctx, current)
	if err != nil {
		return nil, err
	}

	res := &PublishResult{Snapshot: snap}
	var failures []error
	for _, e := range p.exporters {
		if err := e.Export(ctx, snap); err != nil {
			p.log.Error("export failed", logger.String("exporter", e.Name()), logger.Error(err))
			failures = append(failures, fmt.Errorf("%s: %w", e.Name(), err))
			continue
		}
		res.Exported = append(res.Exported, e.Name())
	}

	p.log.Info("snapshot published",
		logger.String("window", current.ID()),
		logger.Strings("exported", res.Exported),
		logger.Strings("missing", snap.Missing),
		logger.Int("forecasts", len(snap.CurrentWeek.Forecasts)),
	)

	if len(failures) > 0 || len(snap.Missing) > 0 {
		return res, &models.PublishDegraded{
			Written:  len(res.Exported) > 0,
			Missing:  snap.Missing,
			Failures: failures,
		}
	}
	return res, nil
}

// Assemble builds the published document without exporting it. Sections that
// cannot be read are left empty and listed in Missing.
func (p *Publisher) Assemble(ctx context.Context, current models.TimeWindow) (*models.PublishedSnapshot, error) {
	snap := &models.PublishedSnapshot{
		GeneratedAt:        p.now().UTC().Truncate(time.Second),
		CurrentWeek:        models.PublishedWeek{Forecasts: []models.PublishedForecast{}},
		LastWeekComparison: []models.PublishedHour{},
		HistoricalTrend:    []models.PublishedPerformance{},
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.fillCurrentWeek(ctx, snap, current)

	previous := current.Previous()
	rec, ok, err := p.repo.ReadComparison(ctx, previous)
	switch {
	case err != nil:
		p.missing(snap, SectionLastWeekPerformance, err)
	case !ok:
		p.missing(snap, SectionLastWeekPerformance, nil)
	default:
		perf := models.NewPublishedPerformance(rec)
		snap.LastWeekPerformance = &perf
	}

	hourly, err := p.repo.ReadHourlyComparison(ctx, previous)
	if err != nil || len(hourly) == 0 {
		p.missing(snap, SectionLastWeekComparison, err)
	}
	for _, h := range hourly {
		snap.LastWeekComparison = append(snap.LastWeekComparison, models.NewPublishedHour(h))
	}

	trend, err := p.repo.ReadComparisons(ctx, p.cfg.HistoryWeeks)
	if err != nil || len(trend) == 0 {
		p.missing(snap, SectionHistoricalTrend, err)
	}
	for _, rec := range trend {
		snap.HistoricalTrend = append(snap.HistoricalTrend, models.NewPublishedPerformance(rec))
	}
	return snap, nil
}

// fillCurrentWeek prefers the forecast of current and falls back to the most
// recent stored one.
func (p *Publisher) fillCurrentWeek(ctx context.Context, snap *models.PublishedSnapshot, current models.TimeWindow) {
	w := current
	recs, err := p.repo.ReadForecast(ctx, current)
	if err == nil && len(recs) == 0 {
		var ok bool
		w, recs, ok, err = p.repo.ReadLatestForecast(ctx)
		if err != nil || !ok {
			w = current
		}
	}
	snap.CurrentWeek.Start = w.Start.Format(models.DateLayout)
	snap.CurrentWeek.End = w.End.Format(models.DateLayout)
	if err != nil || len(recs) == 0 {
		p.missing(snap, SectionCurrentWeek, err)
		return
	}

	limit := w.Start.AddDate(0, 0, p.cfg.ForecastDays)
	for _, r := range recs {
		if !r.Timestamp.Before(limit) {
			continue
		}
		snap.CurrentWeek.Forecasts = append(snap.CurrentWeek.Forecasts, models.NewPublishedForecast(r))
	}
}

func (p *Publisher) missing(snap *models.PublishedSnapshot, section string, err error) {
	snap.Missing = append(snap.Missing, section)
	if err != nil {
		p.log.Warn("publish section unavailable", logger.String("section", section), logger.Error(err))
	}
}
