package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceCast/internal/domain/models"
	"PriceCast/internal/usecase"
)

func TestParseWeekSnapsToMonday(t *testing.T) {
	for _, in := range []string{"2025-10-20", "2025-10-23", "2025-10-26"} {
		w, err := parseWeek(in)
		require.NoError(t, err, in)
		assert.Equal(t, "2025-10-20", w.ID(), in)
	}

	_, err := parseWeek("20.10.2025")
	assert.ErrorContains(t, err, "YYYY-MM-DD")
}

func TestPrintReport(t *testing.T) {
	rep := &usecase.CycleReport{
		Mode:    usecase.ModeWeekly,
		Window:  models.WindowAt(time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC)),
		State:   usecase.StateDone,
		Success: true,
		Steps: []usecase.StepResult{
			{Step: usecase.StepReconcilePrevious, Status: usecase.StepSkipped, Err: errors.New("no forecast stored")},
			{Step: usecase.StepRetrain, Status: usecase.StepSucceeded, Duration: 1500 * time.Millisecond},
		},
		Degraded: true,
	}

	var buf bytes.Buffer
	printReport(&buf, rep)
	out := buf.String()
	assert.Contains(t, out, "cycle weekly 2025-10-20: degraded (state DONE)")
	assert.Contains(t, out, "no forecast stored")
	assert.Contains(t, out, "1.5s")

	buf.Reset()
	printReport(&buf, nil)
	assert.Empty(t, buf.String())
}

func TestRootRequiresConfig(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"--config", "does/not/exist.yaml", "weekly"})
	root.SetOut(&bytes.Buffer{})
	err := root.Execute()
	assert.ErrorContains(t, err, "config load failed")
}
