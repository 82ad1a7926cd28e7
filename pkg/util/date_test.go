package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeSQLDatetime(t *testing.T) {
	got, ok := ParseTime("2025-10-20 13:00:00")
	if !ok {
		t.Fatalf("expected ok")
	}
	if !got.Equal(time.Date(2025, 10, 20, 13, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseDate(t *testing.T) {
	if _, ok := ParseDate("20/10/2025"); ok {
		t.Fatalf("expected failure")
	}
	got, ok := ParseDate("2025-10-20")
	if !ok || got.Weekday() != time.Monday {
		t.Fatalf("unexpected date %v", got)
	}
}
