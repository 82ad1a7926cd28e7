package forecaster

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceCast/internal/domain/models"
)

func TestFileSnapshotStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", "snapshot.json")
	store := NewFileSnapshotStore(path)

	_, err := store.Load(context.Background())
	require.ErrorIs(t, err, models.ErrNoSnapshot)

	snap := &models.ModelSnapshot{
		Model:        "hour-of-week-profile",
		Cutoff:       time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC),
		TrainedAt:    time.Date(2025, 10, 20, 0, 3, 0, 0, time.UTC),
		Observations: 336,
		State:        []byte(`{"weeks":2}`),
	}
	require.NoError(t, store.Save(context.Background(), snap))

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Cutoff.Equal(snap.Cutoff))
	assert.Equal(t, snap.State, got.State)
	assert.Equal(t, 336, got.Observations)
}

func TestFileSnapshotStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileSnapshotStore(path).Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrNoSnapshot)
}
