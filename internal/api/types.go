package api

import (
	"wmnmon/internal/model"
	"wmnmon/internal/monitor"
)

// StatusResponse reports collector liveness for the status badge.
type StatusResponse struct {
	Connected     bool   `json:"connected"`
	LastMessageAt string `json:"last_message_at,omitempty"`
	Devices       int    `json:"devices"`
}

// DevicesResponse lists the fleet overview.
type DevicesResponse struct {
	Devices []monitor.FleetRow `json:"devices"`
}

// DeviceResponse is the joined view of one device.
type DeviceResponse struct {
	Device model.DeviceView `json:"device"`
}

// TrendResponse carries a device's latency series and moving average.
type TrendResponse struct {
	DeviceID string         `json:"device_id"`
	Latency  monitor.Trend  `json:"latency"`
	Scores   []model.Sample `json:"scores,omitempty"`
}

// IncidentsResponse is the ranked incident list for one snapshot.
type IncidentsResponse struct {
	Incidents []model.Incident `json:"incidents"`
}

// ExplainRequest asks the explainer about one device.
type ExplainRequest struct {
	DeviceID string `json:"device_id"`
	Question string `json:"question"`
}
