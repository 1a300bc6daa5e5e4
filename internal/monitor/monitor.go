// Package monitor is the read-only query surface consumers poll for
// snapshots, trends, and incidents. It owns no state of its own and is
// agnostic to whatever refresh cadence the caller uses.
package monitor

import (
	"sort"
	"time"

	"wmnmon/internal/health"
	"wmnmon/internal/incident"
	"wmnmon/internal/model"
	"wmnmon/internal/store"
)

// movingAvgWindow is the smoothing window for the latency trend overlay.
const movingAvgWindow = 12

// Monitor joins the device store with the scorer, anomaly detector, and
// incident correlator.
type Monitor struct {
	store *store.Store
	rules incident.Rules
}

// New wires a monitor over the given store with fixed correlation rules.
func New(st *store.Store, rules incident.Rules) *Monitor {
	return &Monitor{store: st, rules: rules}
}

// ListDevices returns every known device id, sorted.
func (m *Monitor) ListDevices() []string {
	return m.store.DeviceIDs()
}

// DeviceView returns the joined view for one device with the health score
// filled in. The analyzer-reported score wins unconditionally; the local
// score is fallback only.
func (m *Monitor) DeviceView(id string) (model.DeviceView, bool) {
	view, ok := m.store.Device(id)
	if !ok {
		return model.DeviceView{}, false
	}
	view.Health = healthOf(view)
	return view, true
}

// Snapshot returns all device views with health scores filled in.
func (m *Monitor) Snapshot() []model.DeviceView {
	views := m.store.Snapshot()
	for i := range views {
		views[i].Health = healthOf(views[i])
	}
	return views
}

// Trend is a device's latency series plus a short moving average laid over
// it for display.
type Trend struct {
	Samples   []model.Sample `json:"samples"`
	MovingAvg []model.Sample `json:"moving_avg"`
}

// LatencyTrend returns the bounded latency history for one device.
func (m *Monitor) LatencyTrend(id string) Trend {
	samples := m.store.LatencyHistory(id)
	return Trend{Samples: samples, MovingAvg: movingAverage(samples, movingAvgWindow)}
}

// ScoreTrend returns the analyzer-score history for one device.
func (m *Monitor) ScoreTrend(id string) []model.Sample {
	return m.store.ScoreHistory(id)
}

// Incidents recomputes the correlated incident list against the current
// snapshot. now is injected so tests and replays stay deterministic.
func (m *Monitor) Incidents(now time.Time) []model.Incident {
	return incident.Correlate(now, m.Snapshot(), m.store.LatencyHistory, m.rules)
}

// LastMessageAt reports when the most recent message of any kind arrived.
func (m *Monitor) LastMessageAt() time.Time {
	return m.store.LastMessageAt()
}

// FleetRow is one line of the fleet overview table.
type FleetRow struct {
	Device    string   `json:"device"`
	Health    *int     `json:"health,omitempty"`
	RSSIdBm   *float64 `json:"rssi_dbm,omitempty"`
	LatencyMs *float64 `json:"latency_ms,omitempty"`
	LossPct   *float64 `json:"loss_pct,omitempty"`
	AgeSec    int      `json:"age_sec"`
}

// Fleet builds the overview rows, best health first; devices with no
// computable health sink to the bottom.
func (m *Monitor) Fleet(now time.Time) []FleetRow {
	views := m.Snapshot()
	rows := make([]FleetRow, 0, len(views))
	for _, v := range views {
		row := FleetRow{Device: v.ID, Health: v.Health}
		if v.Metrics != nil {
			row.RSSIdBm = v.Metrics.RSSIdBm
			row.LatencyMs = v.Metrics.LatencyMs
			row.LossPct = v.Metrics.PacketLossPct
		}
		if !v.LastSeen.IsZero() {
			row.AgeSec = int(now.Sub(v.LastSeen).Seconds())
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Health, rows[j].Health
		switch {
		case a == nil && b == nil:
			return rows[i].Device < rows[j].Device
		case a == nil:
			return false
		case b == nil:
			return true
		case *a != *b:
			return *a > *b
		}
		return rows[i].Device < rows[j].Device
	})
	return rows
}

// movingAverage smooths samples with a trailing window, emitting one point
// per input point so the two series line up on a chart.
func movingAverage(samples []model.Sample, window int) []model.Sample {
	if len(samples) == 0 || window < 1 {
		return nil
	}
	out := make([]model.Sample, len(samples))
	var sum float64
	for i, s := range samples {
		sum += s.Value
		if i >= window {
			sum -= samples[i-window].Value
		}
		n := i + 1
		if n > window {
			n = window
		}
		out[i] = model.Sample{Timestamp: s.Timestamp, Value: sum / float64(n)}
	}
	return out
}

func healthOf(view model.DeviceView) *int {
	if view.Analysis != nil && view.Analysis.Score != nil {
		v := int(*view.Analysis.Score)
		return &v
	}
	if view.Metrics == nil {
		return nil
	}
	m := view.Metrics
	score, ok := health.Score(m.RSSIdBm, m.LatencyMs, m.JitterMs, m.PacketLossPct)
	if !ok {
		return nil
	}
	return &score
}
