package di

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"PriceCast/internal/domain/repository"
	"PriceCast/internal/domain/service"
	"PriceCast/internal/handler/api"
	internalrepo "PriceCast/internal/repository"
	"PriceCast/internal/services/calendar"
	"PriceCast/internal/services/forecaster"
	"PriceCast/internal/usecase"
	"PriceCast/pkg/cache"
	pkgch "PriceCast/pkg/clickhouse"
	"PriceCast/pkg/config"
	xhttp "PriceCast/pkg/http"
	pkgkafka "PriceCast/pkg/kafka"
	applogger "PriceCast/pkg/logger"
	"PriceCast/pkg/metrics"
	"PriceCast/pkg/server"
	"PriceCast/pkg/util"
)

// holidayUpperWindow flags the day after each configured holiday too.
const holidayUpperWindow = 1

// ProvideLogger creates the application logger from the logger section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideLocation resolves the market timezone.
func ProvideLocation(cfg *config.Config) (*time.Location, error) {
	return cfg.Cycle.Location()
}

// ProvideMetrics creates a Prometheus metrics recorder on the default registry,
// which is the one the HTTP server exposes.
func ProvideMetrics() repository.Metrics {
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideRepository opens the configured backend and ensures its schema.
func ProvideRepository(cfg *config.Config, l *applogger.Logger, loc *time.Location) (repository.PriceRepository, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cfg.Backend.Type == config.BackendMemory {
		repo := internalrepo.NewMemoryRepository(
			internalrepo.WithPricesCSV(cfg.Backend.HistoryCSV, loc),
			internalrepo.WithStateFile(cfg.Backend.StateFile),
		)
		if err := repo.Init(ctx); err != nil {
			return nil, nil, fmt.Errorf("memory backend: %w", err)
		}
		l.Info("memory backend ready", applogger.String("history_csv", cfg.Backend.HistoryCSV))
		return repo, func() { _ = repo.Close() }, nil
	}

	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		pkgch.WithCreateDatabase(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	repo := internalrepo.NewClickHouseRepository(client.DB(), cfg.ClickHouse.Database, l)
	if err := repo.Init(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse: connected and schema ready", applogger.String("db", cfg.ClickHouse.Database))

	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	return repo, cleanup, nil
}

// ProvideImporter exposes price ingestion of the configured backend.
func ProvideImporter(repo repository.PriceRepository) (repository.PriceImporter, error) {
	im, ok := repo.(repository.PriceImporter)
	if !ok {
		return nil, fmt.Errorf("backend %T cannot import prices", repo)
	}
	return im, nil
}

// ProvideCache creates the Redis cache when enabled and an in-process one otherwise.
// It backs both the cycle lock and the API snapshot cache.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, func(), error) {
	var c cache.Service
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisCache(
			cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
			cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
			cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdle, cfg.Redis.PoolTimeout),
			cache.WithRedisPrefix(cfg.Redis.Prefix),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		c = rc
	} else {
		// Snapshots expire after one TTL, so sweeping at that pace keeps the cache small.
		c = cache.NewMemoryCache(cache.WithMemoryLimits(cfg.Server.CacheEntries, cfg.Server.SnapshotTTL))
	}
	cleanup := func() {
		if err := c.Close(); err != nil {
			l.Warn("cache close error", applogger.Error(err))
		}
	}
	return c, cleanup, nil
}

// ProvideLocker uses the Redis lease when Redis is enabled. Otherwise cycles are
// excluded through lease files, which every local process shares.
func ProvideLocker(cfg *config.Config, c cache.Service) repository.Locker {
	if cfg.Redis.Enabled {
		return c
	}
	dir := cfg.Cycle.LockDir
	if dir == "" {
		dir = filepath.Dir(cfg.Model.SnapshotPath)
	}
	return cache.NewFileLocker(dir)
}

// ProvideFeatures builds the calendar features from the configured holidays.
func ProvideFeatures(cfg *config.Config) (*calendar.Features, error) {
	holidays := make([]calendar.Holiday, 0, len(cfg.Holidays))
	for _, h := range cfg.Holidays {
		d, ok := util.ParseDate(h.Date)
		if !ok {
			return nil, fmt.Errorf("holiday %s: bad date %q", h.Name, h.Date)
		}
		holidays = append(holidays, calendar.Holiday{Name: h.Name, Date: d})
	}
	return calendar.NewFeatures(holidays, holidayUpperWindow), nil
}

// ProvideModel selects the in-process profile model or the remote model service.
// The remote service gets the same holiday window as the local features.
func ProvideModel(cfg *config.Config, features *calendar.Features) forecaster.Model {
	if cfg.Model.Type == config.ModelHTTP {
		return forecaster.NewHTTPModel(cfg.Model, features.UpperWindow())
	}
	return forecaster.NewProfileModel(cfg.Model.ProfileWeeks, cfg.Model.LongestSeason)
}

func ProvideSnapshotStore(cfg *config.Config) repository.SnapshotStore {
	return forecaster.NewFileSnapshotStore(cfg.Model.SnapshotPath)
}

func ProvideForecaster(
	cfg *config.Config,
	model forecaster.Model,
	features *calendar.Features,
	store repository.SnapshotStore,
	l *applogger.Logger,
) service.Forecaster {
	return forecaster.NewAdapter(model, features, store, l, forecaster.WithConfidence(cfg.Model.IntervalWidth))
}

// ProvideExporters lists the publish targets: the JSON document always, the
// CSV table and the Kafka topic when enabled.
func ProvideExporters(cfg *config.Config, l *applogger.Logger) ([]repository.Exporter, func(), error) {
	exporters := []repository.Exporter{internalrepo.NewJSONFileExporter(cfg.Publish.OutputDir)}
	if cfg.Publish.CSV {
		exporters = append(exporters, internalrepo.NewCSVExporter(cfg.Publish.OutputDir))
	}
	if !cfg.Kafka.Enabled {
		return exporters, func() {}, nil
	}

	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithTimeouts(cfg.Kafka.WriteTimeout, cfg.Kafka.WriteTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	l.Info("kafka: producer ready",
		applogger.Strings("brokers", cfg.Kafka.Brokers),
		applogger.String("topic", cfg.Kafka.Topic),
	)
	exporters = append(exporters, internalrepo.NewKafkaExporter(producer, cfg.Kafka.Topic))
	cleanup := func() {
		if err := producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	return exporters, cleanup, nil
}

func ProvideReconciler(cfg *config.Config, repo repository.PriceRepository, m repository.Metrics, l *applogger.Logger) *usecase.Reconciler {
	return usecase.NewReconciler(repo, m, l, usecase.ReconcileConfig{
		MinCoverage: cfg.Cycle.MinCoverage,
		MAPEFloor:   cfg.Cycle.MAPEFloor,
	})
}

func ProvidePublisher(cfg *config.Config, repo repository.PriceRepository, l *applogger.Logger, exporters []repository.Exporter) *usecase.Publisher {
	return usecase.NewPublisher(repo, l, usecase.PublishConfig{
		ForecastDays: cfg.Publish.ForecastDays,
		HistoryWeeks: cfg.Publish.HistoryWeeks,
	}, exporters...)
}

func ProvideCycleRunner(
	cfg *config.Config,
	loc *time.Location,
	repo repository.PriceRepository,
	f service.Forecaster,
	reconciler *usecase.Reconciler,
	publisher *usecase.Publisher,
	locker repository.Locker,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.CycleRunner {
	return usecase.NewCycleRunner(repo, f, reconciler, publisher, locker, m, l, usecase.CycleConfig{
		Location: loc,
		Deadline: cfg.Cycle.Deadline,
	})
}

// ProvideScheduler returns nil when no schedule is configured.
func ProvideScheduler(cfg *config.Config, runner *usecase.CycleRunner, loc *time.Location, l *applogger.Logger) (*usecase.Scheduler, error) {
	if cfg.Cycle.Schedule == "" {
		return nil, nil
	}
	return usecase.NewScheduler(runner, loc, cfg.Cycle.Schedule, l)
}

// ProvideHTTPHandler serves the read API over the same repository and publisher.
func ProvideHTTPHandler(
	cfg *config.Config,
	l *applogger.Logger,
	repo repository.PriceRepository,
	publisher *usecase.Publisher,
	c cache.Service,
	runner *usecase.CycleRunner,
) xhttp.Handler {
	return api.NewForecastEchoHandler(l, repo, publisher, c, cfg.Server.SnapshotTTL, cfg.Backend.Type, runner.CurrentWindow)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	runner *usecase.CycleRunner,
	reconciler *usecase.Reconciler,
	publisher *usecase.Publisher,
	repo repository.PriceRepository,
	importer repository.PriceImporter,
	handler xhttp.Handler,
	scheduler *usecase.Scheduler,
) *server.App {
	return server.New(cfg, l, runner, reconciler, publisher, repo, importer, handler, scheduler)
}
