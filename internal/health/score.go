// Package health computes the composite 0-100 wireless experience score.
package health

// Score derives a composite score from the four raw metrics. Each metric
// contributes an independent, non-compounding penalty from fixed tiers;
// a missing metric contributes nothing. The second return is false only
// when all four inputs are absent.
//
// The result is used as a fallback: an analyzer-reported score always
// takes precedence over it.
func Score(rssiDBm, latencyMs, jitterMs, lossPct *float64) (int, bool) {
	if rssiDBm == nil && latencyMs == nil && jitterMs == nil && lossPct == nil {
		return 0, false
	}

	s := 100.0
	if rssiDBm != nil {
		s -= rssiPenalty(*rssiDBm)
	}
	if latencyMs != nil {
		s -= latencyPenalty(*latencyMs)
	}
	if jitterMs != nil {
		s -= jitterPenalty(*jitterMs)
	}
	if lossPct != nil {
		s -= lossPenalty(*lossPct)
	}

	if s < 0 {
		s = 0
	}
	if s > 100 {
		s = 100
	}
	return int(s), true
}

func rssiPenalty(v float64) float64 {
	switch {
	case v >= -60:
		return 0
	case v >= -70:
		return 8
	case v >= -80:
		return 20
	default:
		return 35
	}
}

func latencyPenalty(v float64) float64 {
	switch {
	case v <= 60:
		return 0
	case v <= 120:
		return 10
	case v <= 200:
		return 25
	default:
		return 40
	}
}

func jitterPenalty(v float64) float64 {
	switch {
	case v <= 15:
		return 0
	case v <= 35:
		return 10
	case v <= 60:
		return 20
	default:
		return 30
	}
}

func lossPenalty(v float64) float64 {
	switch {
	case v <= 1:
		return 0
	case v <= 3:
		return 15
	case v <= 6:
		return 30
	default:
		return 45
	}
}
