package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPricesCSV(t *testing.T) {
	ist, err := time.LoadLocation("Europe/Istanbul")
	require.NoError(t, err)

	body := "\ufeffTarih,PTF\n" +
		"2025-10-20T00:00:00+03:00,\"2.450,75\"\n" +
		"2025-10-20 01:00:00,2400\n"
	obs, err := ReadPricesCSV(strings.NewReader(body), ist)
	require.NoError(t, err)
	require.Len(t, obs, 2)

	assert.Equal(t, time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC), obs[0].Timestamp)
	assert.Equal(t, 2450.75, obs[0].Price)
	assert.Equal(t, time.Date(2025, 10, 20, 1, 0, 0, 0, time.UTC), obs[1].Timestamp)
}

func TestReadPricesCSVErrors(t *testing.T) {
	cases := map[string]string{
		"missing price column": "timestamp,volume\n2025-10-20 00:00:00,1\n",
		"bad timestamp":        "timestamp,price\nsoon,1\n",
		"bad price":            "timestamp,price\n2025-10-20 00:00:00,abc\n",
		"empty":                "",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadPricesCSV(strings.NewReader(body), time.UTC)
			assert.Error(t, err)
		})
	}
}
