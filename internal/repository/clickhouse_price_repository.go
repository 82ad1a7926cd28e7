package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"PriceCast/internal/domain/models"
	domrepo "PriceCast/internal/domain/repository"
	pkgch "PriceCast/pkg/clickhouse"
	applogger "PriceCast/pkg/logger"
)

const insertChunk = 2000

// ClickHouseRepository implements PriceRepository backed by ClickHouse.
type ClickHouseRepository struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
	now      func() time.Time
}

// NewClickHouseRepository builds the repository over an open pool.
func NewClickHouseRepository(db *sql.DB, database string, l *applogger.Logger) *ClickHouseRepository {
	return &ClickHouseRepository{db: db, database: database, l: l, now: time.Now}
}

func (r *ClickHouseRepository) table(name string) string { return r.database + "." + name }

func (r *ClickHouseRepository) Init(ctx context.Context) error {
	return models.NewRepositoryError("init", pkgch.InitSchema(ctx, r.db, schema(r.database)))
}

func (r *ClickHouseRepository) ReadHistory(ctx context.Context, before time.Time) ([]models.Observation, error) {
	q := fmt.Sprintf("SELECT ts, price FROM %s FINAL WHERE ts < ? ORDER BY ts ASC", r.table("mcp_prices"))
	obs, err := r.queryObservations(ctx, q, before)
	if err != nil {
		return nil, models.NewRepositoryError("read_history", err)
	}
	return obs, nil
}

func (r *ClickHouseRepository) ReadRealized(ctx context.Context, w models.TimeWindow) ([]models.Observation, error) {
	q := fmt.Sprintf("SELECT ts, price FROM %s FINAL WHERE ts >= ? AND ts < ? ORDER BY ts ASC", r.table("mcp_prices"))
	obs, err := r.queryObservations(ctx, q, w.Start, w.UpperBound())
	if err != nil {
		return nil, models.NewRepositoryError("read_realized", err)
	}
	return obs, nil
}

func (r *ClickHouseRepository) queryObservations(ctx context.Context, q string, args ...interface{}) ([]models.Observation, error) {
	start := time.Now()
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	out := make([]models.Observation, 0, 1024)
	for rows.Next() {
		var o models.Observation
		if err := rows.Scan(&o.Timestamp, &o.Price); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		o.Timestamp = o.Timestamp.UTC()
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	r.l.Debug("clickhouse prices read",
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// WriteForecast inserts recs under a fresh version, then prunes the window's
// older versions. A failed insert leaves the previous forecast readable.
func (r *ClickHouseRepository) WriteForecast(ctx context.Context, w models.TimeWindow, recs []models.ForecastRecord) error {
	table := r.table("forecast_history")
	version := uint64(r.now().UnixNano())
	err := r.insertChunked(ctx, table, "window_id, window_start, window_end, ts, predicted, lower, upper, version", 8, len(recs),
		func(i int) []interface{} {
			rec := recs[i]
			return []interface{}{w.ID(), w.Start, w.End, rec.Timestamp, rec.Point, rec.Lower, rec.Upper, version}
		})
	if err != nil {
		return models.NewRepositoryError("write_forecast", err)
	}
	if err := r.pruneWindow(ctx, table, w.ID(), version); err != nil {
		return models.NewRepositoryError("write_forecast", err)
	}
	r.l.Info("clickhouse forecast written",
		applogger.String("window", w.ID()),
		applogger.Int("rows", len(recs)),
	)
	return nil
}

func (r *ClickHouseRepository) ReadForecast(ctx context.Context, w models.TimeWindow) ([]models.ForecastRecord, error) {
	q := fmt.Sprintf("SELECT ts, predicted, lower, upper FROM %s FINAL WHERE window_id = ? ORDER BY ts ASC", r.table("forecast_history"))
	rows, err := r.db.QueryContext(ctx, q, w.ID())
	if err != nil {
		return nil, models.NewRepositoryError("read_forecast", err)
	}
	defer rows.Close()

	out := make([]models.ForecastRecord, 0, w.Hours())
	for rows.Next() {
		rec := models.ForecastRecord{WindowID: w.ID()}
		if err := rows.Scan(&rec.Timestamp, &rec.Point, &rec.Lower, &rec.Upper); err != nil {
			return nil, models.NewRepositoryError("read_forecast", fmt.Errorf("scan forecast: %w", err))
		}
		rec.Timestamp = rec.Timestamp.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewRepositoryError("read_forecast", err)
	}
	return out, nil
}

func (r *ClickHouseRepository) ReadLatestForecast(ctx context.Context) (models.TimeWindow, []models.ForecastRecord, bool, error) {
	q := fmt.Sprintf("SELECT window_id FROM %s FINAL ORDER BY window_start DESC LIMIT 1", r.table("forecast_history"))
	var id string
	if err := r.db.QueryRowContext(ctx, q).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.TimeWindow{}, nil, false, nil
		}
		return models.TimeWindow{}, nil, false, models.NewRepositoryError("read_latest_forecast", err)
	}
	w, err := models.ParseWindowID(id)
	if err != nil {
		return models.TimeWindow{}, nil, false, models.NewRepositoryError("read_latest_forecast", err)
	}
	recs, err := r.ReadForecast(ctx, w)
	if err != nil {
		return models.TimeWindow{}, nil, false, err
	}
	return w, recs, len(recs) > 0, nil
}

func (r *ClickHouseRepository) WriteComparison(ctx context.Context, rec models.ComparisonRecord) error {
	table := r.table("weekly_performance")
	version := uint64(r.now().UnixNano())
	q := fmt.Sprintf(`INSERT INTO %s (window_id, window_start, window_end, mae, rmse, mape, mape_computable,
		sample_count, excluded_count, coverage, computed_at, version) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, table)
	_, err := r.db.ExecContext(ctx, q,
		rec.Window.ID(), rec.Window.Start, rec.Window.End,
		rec.MAE, rec.RMSE, rec.MAPE, rec.MAPEComputable,
		uint32(rec.SampleCount), uint32(rec.ExcludedCount), rec.Coverage,
		rec.ComputedAt, version,
	)
	if err != nil {
		return models.NewRepositoryError("write_comparison", fmt.Errorf("insert %s: %w", table, err))
	}
	return models.NewRepositoryError("write_comparison", r.pruneWindow(ctx, table, rec.Window.ID(), version))
}

const comparisonColumns = "window_start, mae, rmse, mape, mape_computable, sample_count, excluded_count, coverage, computed_at"

func (r *ClickHouseRepository) ReadComparison(ctx context.Context, w models.TimeWindow) (models.ComparisonRecord, bool, error) {
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE window_id = ?", comparisonColumns, r.table("weekly_performance"))
	rec, err := scanComparison(r.db.QueryRowContext(ctx, q, w.ID()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ComparisonRecord{}, false, nil
		}
		return models.ComparisonRecord{}, false, models.NewRepositoryError("read_comparison", err)
	}
	return rec, true, nil
}

func (r *ClickHouseRepository) ReadComparisons(ctx context.Context, limit int) ([]models.ComparisonRecord, error) {
	q := fmt.Sprintf("SELECT %s FROM %s FINAL ORDER BY window_start DESC LIMIT ?", comparisonColumns, r.table("weekly_performance"))
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, models.NewRepositoryError("read_comparisons", err)
	}
	defer rows.Close()

	out := make([]models.ComparisonRecord, 0, limit)
	for rows.Next() {
		rec, err := scanComparison(rows)
		if err != nil {
			return nil, models.NewRepositoryError("read_comparisons", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewRepositoryError("read_comparisons", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanComparison(s scanner) (models.ComparisonRecord, error) {
	var (
		rec   models.ComparisonRecord
		start time.Time
	)
	if err := s.Scan(&start, &rec.MAE, &rec.RMSE, &rec.MAPE, &rec.MAPEComputable,
		&rec.SampleCount, &rec.ExcludedCount, &rec.Coverage, &rec.ComputedAt); err != nil {
		return rec, err
	}
	rec.Window = models.WindowAt(time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC))
	rec.ComputedAt = rec.ComputedAt.UTC()
	return rec, nil
}

func (r *ClickHouseRepository) WriteHourlyComparison(ctx context.Context, w models.TimeWindow, rows []models.HourlyComparison) error {
	table := r.table("forecast_hourly_errors")
	version := uint64(r.now().UnixNano())
	err := r.insertChunked(ctx, table, "window_id, ts, predicted, actual, absolute_error, percentage_error, included, version", 8, len(rows),
		func(i int) []interface{} {
			h := rows[i]
			return []interface{}{w.ID(), h.Timestamp, h.Predicted, h.Actual, h.AbsoluteError, h.PercentageError, h.PercentageIncluded, version}
		})
	if err != nil {
		return models.NewRepositoryError("write_hourly_comparison", err)
	}
	return models.NewRepositoryError("write_hourly_comparison", r.pruneWindow(ctx, table, w.ID(), version))
}

func (r *ClickHouseRepository) ReadHourlyComparison(ctx context.Context, w models.TimeWindow) ([]models.HourlyComparison, error) {
	q := fmt.Sprintf(`SELECT ts, predicted, actual, absolute_error, percentage_error, included
		FROM %s FINAL WHERE window_id = ? ORDER BY ts ASC`, r.table("forecast_hourly_errors"))
	rows, err := r.db.QueryContext(ctx, q, w.ID())
	if err != nil {
		return nil, models.NewRepositoryError("read_hourly_comparison", err)
	}
	defer rows.Close()

	out := make([]models.HourlyComparison, 0, w.Hours())
	for rows.Next() {
		h := models.HourlyComparison{WindowID: w.ID()}
		if err := rows.Scan(&h.Timestamp, &h.Predicted, &h.Actual, &h.AbsoluteError, &h.PercentageError, &h.PercentageIncluded); err != nil {
			return nil, models.NewRepositoryError("read_hourly_comparison", fmt.Errorf("scan hourly comparison: %w", err))
		}
		h.Timestamp = h.Timestamp.UTC()
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewRepositoryError("read_hourly_comparison", err)
	}
	return out, nil
}

// WriteObservations upserts realized prices; a re-imported hour supersedes the old row.
func (r *ClickHouseRepository) WriteObservations(ctx context.Context, obs []models.Observation) error {
	err := r.insertChunked(ctx, r.table("mcp_prices"), "ts, price", 2, len(obs),
		func(i int) []interface{} { return []interface{}{obs[i].Timestamp, obs[i].Price} })
	return models.NewRepositoryError("write_observations", err)
}

func (r *ClickHouseRepository) Health(ctx context.Context) error {
	return models.NewRepositoryError("health", r.db.PingContext(ctx))
}

// Close is a no-op; the pool is owned by pkg/clickhouse.Client.
func (r *ClickHouseRepository) Close() error { return nil }

// pruneWindow drops rows of the window written before version. It runs only
// after the new rows are stored, so hours absent from the new write do not linger.
func (r *ClickHouseRepository) pruneWindow(ctx context.Context, table, windowID string, version uint64) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE window_id = ? AND version < ?", table)
	if _, err := r.db.ExecContext(ctx, q, windowID, version); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

// insertChunked writes n rows as multi-row VALUES statements to reduce round-trips.
func (r *ClickHouseRepository) insertChunked(ctx context.Context, table, columns string, width, n int, row func(i int) []interface{}) error {
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", width), ", ") + ")"
	for start := 0; start < n; start += insertChunk {
		end := start + insertChunk
		if end > n {
			end = n
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*width)
		for i := start; i < end; i++ {
			values = append(values, placeholder)
			args = append(args, row(i)...)
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, columns, strings.Join(values, ","))
		if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return nil
}

var (
	_ domrepo.PriceRepository = (*ClickHouseRepository)(nil)
	_ domrepo.PriceImporter   = (*ClickHouseRepository)(nil)
)
