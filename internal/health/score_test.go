package health

import "testing"

func f(v float64) *float64 { return &v }

func TestScore_AllAbsent(t *testing.T) {
	t.Parallel()

	if _, ok := Score(nil, nil, nil, nil); ok {
		t.Fatalf("expected absent score when all inputs are absent")
	}
}

func TestScore_SingleInputPresent(t *testing.T) {
	t.Parallel()

	got, ok := Score(f(-55), nil, nil, nil)
	if !ok {
		t.Fatalf("expected a score")
	}
	if got != 100 {
		t.Fatalf("score=%d", got)
	}
}

func TestScore_WeakSignalScenario(t *testing.T) {
	t.Parallel()

	// RSSI -85, latency 40, jitter 5, loss 0: only the RSSI tier applies.
	got, ok := Score(f(-85), f(40), f(5), f(0))
	if !ok {
		t.Fatalf("expected a score")
	}
	if got != 65 {
		t.Fatalf("score=%d, want 65", got)
	}
}

func TestScore_WorstTiersClampToZero(t *testing.T) {
	t.Parallel()

	// 35+40+30+45 penalties push the raw value below zero.
	got, ok := Score(f(-95), f(500), f(120), f(20))
	if !ok {
		t.Fatalf("expected a score")
	}
	if got != 0 {
		t.Fatalf("score=%d, want 0", got)
	}
}

func TestScore_Bounds(t *testing.T) {
	t.Parallel()

	rssis := []*float64{nil, f(-50), f(-65), f(-75), f(-90)}
	lats := []*float64{nil, f(10), f(100), f(180), f(400)}
	jits := []*float64{nil, f(5), f(25), f(50), f(90)}
	losses := []*float64{nil, f(0), f(2), f(5), f(12)}

	for _, r := range rssis {
		for _, l := range lats {
			for _, j := range jits {
				for _, p := range losses {
					got, ok := Score(r, l, j, p)
					allAbsent := r == nil && l == nil && j == nil && p == nil
					if ok == allAbsent {
						t.Fatalf("ok=%v with allAbsent=%v", ok, allAbsent)
					}
					if ok && (got < 0 || got > 100) {
						t.Fatalf("score=%d out of range", got)
					}
				}
			}
		}
	}
}

func TestScore_MonotonicPerMetric(t *testing.T) {
	t.Parallel()

	// Decreasing RSSI must never increase the score with the rest fixed.
	prev := 101
	for _, rssi := range []float64{-50, -65, -75, -85, -100} {
		got, ok := Score(f(rssi), f(100), f(20), f(2))
		if !ok {
			t.Fatalf("expected a score for rssi=%.0f", rssi)
		}
		if got > prev {
			t.Fatalf("score increased from %d to %d as rssi fell to %.0f", prev, got, rssi)
		}
		prev = got
	}

	prev = 101
	for _, lat := range []float64{10, 80, 150, 300} {
		got, _ := Score(f(-65), f(lat), f(20), f(2))
		if got > prev {
			t.Fatalf("score increased to %d as latency rose to %.0f", got, lat)
		}
		prev = got
	}

	prev = 101
	for _, jit := range []float64{5, 25, 50, 90} {
		got, _ := Score(f(-65), f(100), f(jit), f(2))
		if got > prev {
			t.Fatalf("score increased to %d as jitter rose to %.0f", got, jit)
		}
		prev = got
	}

	prev = 101
	for _, loss := range []float64{0, 2, 5, 12} {
		got, _ := Score(f(-65), f(100), f(20), f(loss))
		if got > prev {
			t.Fatalf("score increased to %d as loss rose to %.1f", got, loss)
		}
		prev = got
	}
}

func TestScore_ZeroIsAReading(t *testing.T) {
	t.Parallel()

	// RSSI 0 dBm is a (strong) reading, not a missing value.
	withZero, ok := Score(f(0), nil, nil, nil)
	if !ok {
		t.Fatalf("rssi 0 must produce a score")
	}
	if withZero != 100 {
		t.Fatalf("score=%d", withZero)
	}
}

func TestScore_TierBoundaries(t *testing.T) {
	t.Parallel()

	cases := []struct {
		rssi float64
		want int
	}{
		{-60, 100},
		{-60.1, 92},
		{-70, 92},
		{-70.1, 80},
		{-80, 80},
		{-80.1, 65},
	}
	for _, tc := range cases {
		got, _ := Score(f(tc.rssi), nil, nil, nil)
		if got != tc.want {
			t.Fatalf("rssi=%.1f score=%d want=%d", tc.rssi, got, tc.want)
		}
	}
}
