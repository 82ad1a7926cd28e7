package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWindowID(t *testing.T) {
	w, err := ParseWindowID("2025-10-20")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 10, 26, 0, 0, 0, 0, time.UTC), w.End)
	assert.Equal(t, w.Start, w.Cutoff)
	assert.Equal(t, "2025-10-20 - 2025-10-26", w.Label())
	assert.Equal(t, time.Date(2025, 10, 26, 23, 0, 0, 0, time.UTC), w.LastHour())

	_, err = ParseWindowID("2025-10-21")
	assert.ErrorContains(t, err, "Tuesday")
	_, err = ParseWindowID("20.10.2025")
	assert.Error(t, err)
}

func TestWindowContainsAndShift(t *testing.T) {
	w := WindowAt(time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC))

	assert.True(t, w.Contains(w.Start))
	assert.True(t, w.Contains(w.LastHour()))
	assert.False(t, w.Contains(w.UpperBound()))
	assert.False(t, w.Contains(w.Start.Add(-time.Hour)))
	assert.Len(t, w.Timestamps(), HoursPerWindow)

	assert.Equal(t, "2025-10-27", w.Next().ID())
	assert.Equal(t, "2025-10-13", w.Previous().ID())
	assert.Equal(t, w, w.Next().Previous())
}
