package server

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"PriceCast/internal/domain/repository"
	"PriceCast/internal/usecase"
	"PriceCast/pkg/config"
	xhttp "PriceCast/pkg/http"
	applogger "PriceCast/pkg/logger"
)

// App bundles the wired components one process runs. Infrastructure is
// released by the cleanup function returned alongside it by the injector.
type App struct {
	Runner     *usecase.CycleRunner
	Reconciler *usecase.Reconciler
	Publisher  *usecase.Publisher
	Repo       repository.PriceRepository
	Importer   repository.PriceImporter
	Log        *applogger.Logger

	cfg       *config.Config
	handler   xhttp.Handler
	scheduler *usecase.Scheduler
}

// New creates a new App instance with all dependencies. scheduler may be nil.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	runner *usecase.CycleRunner,
	reconciler *usecase.Reconciler,
	publisher *usecase.Publisher,
	repo repository.PriceRepository,
	importer repository.PriceImporter,
	handler xhttp.Handler,
	scheduler *usecase.Scheduler,
) *App {
	return &App{
		Runner:     runner,
		Reconciler: reconciler,
		Publisher:  publisher,
		Repo:       repo,
		Importer:   importer,
		Log:        log,
		cfg:        cfg,
		handler:    handler,
		scheduler:  scheduler,
	}
}

// Serve runs the HTTP API, and the weekly scheduler when configured, until ctx
// is cancelled or the listener fails.
func (a *App) Serve(ctx context.Context) error {
	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	srv := xhttp.NewServer(a.handler, a.Log,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(a.cfg.Server.CORS),
		xhttp.WithRateLimit(a.cfg.Server.RateLimit, a.cfg.Server.RateBurst),
		xhttp.WithMetrics(metricsPath, nil, nil),
	)

	g, gctx := errgroup.WithContext(ctx)
	if err := srv.Start(); err != nil {
		return err
	}
	g.Go(func() error {
		var err error
		select {
		case <-gctx.Done():
		case err = <-srv.Errors():
		}
		// The parent may already be cancelled; shutdown still gets its own timeout.
		if serr := srv.Stop(context.WithoutCancel(ctx)); serr != nil {
			a.Log.Error("http shutdown error", applogger.Error(serr))
		}
		return err
	})
	if a.scheduler != nil {
		g.Go(func() error { return a.scheduler.Run(gctx) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	a.Log.Info("shutdown complete")
	return err
}
