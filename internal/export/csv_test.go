package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"wmnmon/internal/model"
)

func TestWriteSamplesCSV(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	samples := []model.Sample{
		{Timestamp: base, Value: 42.5},
		{Timestamp: base.Add(time.Second), Value: 43},
	}

	var buf bytes.Buffer
	if err := WriteSamplesCSV(&buf, "ap-1", "latency_ms", samples); err != nil {
		t.Fatalf("WriteSamplesCSV: %v", err)
	}

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("rows=%d", len(records))
	}
	if records[0][2] != "latency_ms" {
		t.Fatalf("header=%v", records[0])
	}
	if records[1][1] != "ap-1" || records[1][2] != "42.500" {
		t.Fatalf("row=%v", records[1])
	}
	if _, err := time.Parse(time.RFC3339Nano, records[1][0]); err != nil {
		t.Fatalf("timestamp column: %v", err)
	}
}

func TestWriteSamplesCSV_Empty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteSamplesCSV(&buf, "ap-1", "score", nil); err != nil {
		t.Fatalf("WriteSamplesCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines=%v", lines)
	}
}
