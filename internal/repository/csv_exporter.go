package repository

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"path/filepath"

	"PriceCast/internal/domain/models"
	domrepo "PriceCast/internal/domain/repository"
	"PriceCast/pkg/util"
)

const CSVFileName = "forecast_7days.csv"

// CSVExporter writes the current forecast horizon as timestamp, estimate, lower, upper.
type CSVExporter struct {
	path string
}

func NewCSVExporter(dir string) *CSVExporter {
	return &CSVExporter{path: filepath.Join(dir, CSVFileName)}
}

func (e *CSVExporter) Name() string { return "csv" }

func (e *CSVExporter) Export(_ context.Context, snap *models.PublishedSnapshot) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"timestamp", "estimate", "lower", "upper"}); err != nil {
		return err
	}
	for _, f := range snap.CurrentWeek.Forecasts {
		row := []string{f.Datetime, util.FormatPrice(f.Predicted), util.FormatPrice(f.Lower), util.FormatPrice(f.Upper)}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode csv: %w", err)
	}
	if err := util.WriteFileAtomic(e.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", e.path, err)
	}
	return nil
}

var _ domrepo.Exporter = (*CSVExporter)(nil)
