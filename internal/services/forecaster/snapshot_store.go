package forecaster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"PriceCast/internal/domain/models"
	"PriceCast/pkg/util"
)

// FileSnapshotStore keeps the current snapshot as one JSON file, replaced atomically.
type FileSnapshotStore struct {
	path string
}

func NewFileSnapshotStore(path string) *FileSnapshotStore {
	return &FileSnapshotStore{path: path}
}

func (s *FileSnapshotStore) Save(_ context.Context, snap *models.ModelSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := util.WriteFileAtomic(s.path, b, 0o644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", s.path, err)
	}
	return nil
}

func (s *FileSnapshotStore) Load(_ context.Context) (*models.ModelSnapshot, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, models.ErrNoSnapshot
		}
		return nil, fmt.Errorf("read snapshot %s: %w", s.path, err)
	}
	var snap models.ModelSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", s.path, err)
	}
	return &snap, nil
}
