// Package incident correlates thresholds, analyzer flags, and anomaly
// verdicts into a ranked per-snapshot incident list.
package incident

import (
	"fmt"
	"sort"
	"time"

	"wmnmon/internal/anomaly"
	"wmnmon/internal/model"
)

// Escalation multipliers over the warn bounds.
const (
	latencyBadFactor = 1.6
	jitterBadFactor  = 1.6
	lossBadFactor    = 2.0
)

// Rules holds the thresholds the correlator evaluates against.
type Rules struct {
	OnlineGrace   time.Duration
	RSSIWeakDBm   float64
	LatencyWarnMs float64
	JitterWarnMs  float64
	LossWarnPct   float64
	Anomaly       anomaly.Config
}

// HistoryFunc supplies a device's latency history for the anomaly rule.
type HistoryFunc func(deviceID string) []model.Sample

// Correlate evaluates every device in the snapshot independently and
// returns all incidents sorted bad-first, then newest, then device id.
// It is stateless: the same snapshot and rules always yield the same list.
func Correlate(now time.Time, devices []model.DeviceView, history HistoryFunc, rules Rules) []model.Incident {
	var incidents []model.Incident
	for _, dev := range devices {
		incidents = append(incidents, evaluate(now, dev, history, rules)...)
	}

	sort.SliceStable(incidents, func(i, j int) bool {
		a, b := incidents[i], incidents[j]
		if a.Severity != b.Severity {
			return a.Severity == model.SeverityBad
		}
		if !a.At.Equal(b.At) {
			return a.At.After(b.At)
		}
		return a.DeviceID < b.DeviceID
	})
	return incidents
}

func evaluate(now time.Time, dev model.DeviceView, history HistoryFunc, rules Rules) []model.Incident {
	mk := func(sev model.Severity, typ model.IncidentType, detail string) model.Incident {
		return model.Incident{
			DeviceID: dev.ID,
			Severity: sev,
			Type:     typ,
			Detail:   detail,
			At:       now,
		}
	}

	// Offline short-circuits everything else: the remaining readings are
	// stale and would only produce noise on top of the real problem.
	if rules.OnlineGrace > 0 && !dev.LastSeen.IsZero() {
		if silence := now.Sub(dev.LastSeen); silence > rules.OnlineGrace {
			return []model.Incident{mk(model.SeverityBad, model.IncidentOffline,
				fmt.Sprintf("no message for %s (grace %s)", silence.Truncate(time.Second), rules.OnlineGrace))}
		}
	}

	var incidents []model.Incident

	if m := dev.Metrics; m != nil {
		if m.RSSIdBm != nil && *m.RSSIdBm < rules.RSSIWeakDBm {
			incidents = append(incidents, mk(model.SeverityWarn, model.IncidentWeakSignal,
				fmt.Sprintf("rssi %.1f dBm below %.1f dBm", *m.RSSIdBm, rules.RSSIWeakDBm)))
		}
		if m.LatencyMs != nil && *m.LatencyMs > rules.LatencyWarnMs {
			sev := model.SeverityWarn
			if *m.LatencyMs > rules.LatencyWarnMs*latencyBadFactor {
				sev = model.SeverityBad
			}
			incidents = append(incidents, mk(sev, model.IncidentHighLatency,
				fmt.Sprintf("latency %.1f ms above %.1f ms", *m.LatencyMs, rules.LatencyWarnMs)))
		}
		if m.JitterMs != nil && *m.JitterMs > rules.JitterWarnMs {
			sev := model.SeverityWarn
			if *m.JitterMs > rules.JitterWarnMs*jitterBadFactor {
				sev = model.SeverityBad
			}
			incidents = append(incidents, mk(sev, model.IncidentHighJitter,
				fmt.Sprintf("jitter %.1f ms above %.1f ms", *m.JitterMs, rules.JitterWarnMs)))
		}
		if m.PacketLossPct != nil && *m.PacketLossPct > rules.LossWarnPct {
			sev := model.SeverityWarn
			if *m.PacketLossPct > rules.LossWarnPct*lossBadFactor {
				sev = model.SeverityBad
			}
			incidents = append(incidents, mk(sev, model.IncidentPacketLoss,
				fmt.Sprintf("packet loss %.1f%% above %.1f%%", *m.PacketLossPct, rules.LossWarnPct)))
		}
	}

	if a := dev.Analysis; a != nil {
		if a.HandoverDetected {
			incidents = append(incidents, mk(model.SeverityWarn, model.IncidentHandover,
				"analyzer reported a handover"))
		}
		if a.CongestionDetected {
			incidents = append(incidents, mk(model.SeverityWarn, model.IncidentCongestion,
				"analyzer reported congestion"))
		}
	}

	if history != nil {
		if v, ok := anomaly.Detect(history(dev.ID), rules.Anomaly); ok {
			incidents = append(incidents, mk(v.Severity, model.IncidentLatencyAnomaly,
				fmt.Sprintf("latency %.1f ms deviates z=%.2f from mean %.1f ms", v.Latest, v.Z, v.Mean)))
		}
	}

	return incidents
}
