package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"PriceCast/internal/domain/models"
	domrepo "PriceCast/internal/domain/repository"
	"PriceCast/pkg/util"
)

// JSONFileName is the artifact read by the dashboard.
const JSONFileName = "forecasts.json"

// JSONFileExporter writes the snapshot document atomically to dir/forecasts.json.
type JSONFileExporter struct {
	path string
}

func NewJSONFileExporter(dir string) *JSONFileExporter {
	return &JSONFileExporter{path: filepath.Join(dir, JSONFileName)}
}

func (e *JSONFileExporter) Name() string { return "json" }

// Path returns the artifact location.
func (e *JSONFileExporter) Path() string { return e.path }

func (e *JSONFileExporter) Export(_ context.Context, snap *models.PublishedSnapshot) error {
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := util.WriteFileAtomic(e.path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", e.path, err)
	}
	return nil
}

var _ domrepo.Exporter = (*JSONFileExporter)(nil)
