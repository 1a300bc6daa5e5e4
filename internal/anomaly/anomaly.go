// Package anomaly flags latency samples that deviate from their rolling
// mean by a configurable number of standard deviations.
package anomaly

import (
	"math"
	"sort"

	"wmnmon/internal/model"
)

// badMultiplier escalates a verdict from warn to bad.
const badMultiplier = 1.35

// Config tunes the rolling-window detector.
type Config struct {
	// Window is the number of trailing samples the statistics cover.
	Window int
	// MinSamples is the minimum history length before any verdict.
	MinSamples int
	// ZThreshold is the |z| bound at which a sample becomes anomalous.
	ZThreshold float64
}

// Verdict describes a detected latency anomaly.
type Verdict struct {
	Z        float64
	Mean     float64
	StdDev   float64
	Latest   float64
	Severity model.Severity
}

// Detect evaluates a device's latency history. The second return is false
// when there is no verdict: too little history, or a zero-variance window
// that would make the z-score meaningless. No verdict is not the same as
// "not anomalous".
//
// Bus delivery order may diverge from origination order, so samples are
// sorted by timestamp before the trailing window is taken.
func Detect(history []model.Sample, cfg Config) (Verdict, bool) {
	need := cfg.MinSamples
	if cfg.Window > need {
		need = cfg.Window
	}
	if cfg.Window < 2 || len(history) < need {
		return Verdict{}, false
	}

	sorted := make([]model.Sample, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	window := sorted[len(sorted)-cfg.Window:]

	var sum float64
	for _, s := range window {
		sum += s.Value
	}
	mean := sum / float64(len(window))

	var sq float64
	for _, s := range window {
		d := s.Value - mean
		sq += d * d
	}
	// Sample standard deviation over the window.
	stddev := math.Sqrt(sq / float64(len(window)-1))
	if stddev == 0 || math.IsNaN(stddev) {
		return Verdict{}, false
	}

	latest := window[len(window)-1].Value
	z := (latest - mean) / stddev
	if math.Abs(z) < cfg.ZThreshold {
		return Verdict{}, false
	}

	severity := model.SeverityWarn
	if math.Abs(z) >= cfg.ZThreshold*badMultiplier {
		severity = model.SeverityBad
	}
	return Verdict{
		Z:        z,
		Mean:     mean,
		StdDev:   stddev,
		Latest:   latest,
		Severity: severity,
	}, true
}
