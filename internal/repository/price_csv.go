package repository

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"PriceCast/internal/domain/models"
	"PriceCast/internal/services/calendar"
)

var (
	timestampHeaders = []string{"timestamp", "ts", "date", "datetime", "ds", "tarih"}
	priceHeaders     = []string{"price", "mcp", "ptf", "y", "fiyat"}
)

// LoadPricesCSV reads hourly prices from a CSV file with a header row naming a
// timestamp column and a price column.
func LoadPricesCSV(path string, loc *time.Location) ([]models.Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open prices csv: %w", err)
	}
	defer f.Close()
	return ReadPricesCSV(f, loc)
}

// ReadPricesCSV parses the CSV body. Turkish number formatting ("2.450,75") is accepted.
func ReadPricesCSV(r io.Reader, loc *time.Location) ([]models.Observation, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	tsCol, priceCol := column(header, timestampHeaders), column(header, priceHeaders)
	if tsCol < 0 || priceCol < 0 {
		return nil, fmt.Errorf("header %v needs a timestamp and a price column", header)
	}

	var out []models.Observation
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ts, err := calendar.ParseTimestamp(strings.TrimSpace(rec[tsCol]), loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		price, err := parsePrice(rec[priceCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: parse price: %w", line, err)
		}
		out = append(out, models.Observation{Timestamp: ts, Price: price})
	}
	return out, nil
}

func column(header []string, names []string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for _, n := range names {
			if h == n {
				return i
			}
		}
	}
	return -1
}

func parsePrice(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), ",", ".")
	}
	return strconv.ParseFloat(s, 64)
}
