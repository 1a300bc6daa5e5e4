// Package export writes device history series to CSV for offline analysis.
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"wmnmon/internal/model"
)

// WriteSamplesCSV writes a sample series with a fixed column order. The
// value column header names the metric (e.g. "latency_ms", "score").
func WriteSamplesCSV(w io.Writer, deviceID, valueHeader string, samples []model.Sample) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"timestamp", "device_id", valueHeader}); err != nil {
		return err
	}

	for _, s := range samples {
		record := []string{
			s.Timestamp.UTC().Format(time.RFC3339Nano),
			deviceID,
			strconv.FormatFloat(s.Value, 'f', 3, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}
