package model

import (
	"encoding/json"
	"strings"
	"time"
)

// MetricsRecord is the latest raw telemetry reported by a device.
// Pointer fields distinguish "not reported" from a legitimate zero reading;
// an RSSI of 0 dBm and a missing RSSI are different things.
type MetricsRecord struct {
	RSSIdBm            *float64 `json:"rssi_dbm,omitempty"`
	LatencyMs          *float64 `json:"latency_ms_avg,omitempty"`
	JitterMs           *float64 `json:"jitter_ms,omitempty"`
	PacketLossPct      *float64 `json:"packet_loss_pct,omitempty"`
	Interface          string   `json:"interface,omitempty"`
	Channel            *int     `json:"channel,omitempty"`
	ThroughputUpMbps   *float64 `json:"throughput_up_mbps,omitempty"`
	ThroughputDownMbps *float64 `json:"throughput_down_mbps,omitempty"`
}

// AnalysisRecord is the latest analyzer output for a device.
type AnalysisRecord struct {
	Score              *float64 `json:"wireless_score_0_100,omitempty"`
	HandoverDetected   bool     `json:"handover_detected"`
	CongestionDetected bool     `json:"congestion_detected"`
}

// ExplanationRecord is the latest free-text explanation for a device.
// Producers are inconsistent about the field name, so both are accepted.
type ExplanationRecord struct {
	Text        string          `json:"text,omitempty"`
	Explanation string          `json:"explanation,omitempty"`
	Raw         json.RawMessage `json:"-"`
}

// Display returns the explanation text, falling back to the alternate
// field name and finally to the raw payload.
func (e ExplanationRecord) Display() string {
	if e.Text != "" {
		return e.Text
	}
	if e.Explanation != "" {
		return e.Explanation
	}
	return strings.TrimSpace(string(e.Raw))
}

// Sample is one point of a bounded per-device time series.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Severity ranks an incident.
type Severity string

const (
	SeverityWarn Severity = "warn"
	SeverityBad  Severity = "bad"
)

// IncidentType classifies what triggered an incident.
type IncidentType string

const (
	IncidentOffline        IncidentType = "offline"
	IncidentWeakSignal     IncidentType = "weak_signal"
	IncidentHighLatency    IncidentType = "high_latency"
	IncidentHighJitter     IncidentType = "high_jitter"
	IncidentPacketLoss     IncidentType = "packet_loss"
	IncidentHandover       IncidentType = "handover"
	IncidentCongestion     IncidentType = "congestion"
	IncidentLatencyAnomaly IncidentType = "latency_anomaly"
)

// Incident is a correlated finding about a device. Incidents are recomputed
// on every query and never persisted.
type Incident struct {
	DeviceID string       `json:"device_id"`
	Severity Severity     `json:"severity"`
	Type     IncidentType `json:"type"`
	Detail   string       `json:"detail"`
	At       time.Time    `json:"at"`
}

// DeviceView is the joined latest state of one device across all record
// kinds. A nil record means no message of that kind has been seen yet.
// Health is filled by the query surface, not the store: it is the analyzer
// score when present, the locally computed score otherwise.
type DeviceView struct {
	ID          string             `json:"id"`
	Metrics     *MetricsRecord     `json:"metrics,omitempty"`
	Analysis    *AnalysisRecord    `json:"analysis,omitempty"`
	Explanation *ExplanationRecord `json:"explanation,omitempty"`
	LastSeen    time.Time          `json:"last_seen"`
	Health      *int               `json:"health,omitempty"`
}
