// Package telemetry turns raw bus messages into typed records.
package telemetry

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wmnmon/internal/model"
)

// Kind classifies a message by its topic namespace.
type Kind string

const (
	KindMetrics  Kind = "metrics"
	KindAnalysis Kind = "analysis"
	KindExplain  Kind = "explain"
)

const (
	topicMetricsPrefix  = "wmn/metrics"
	topicAnalysisPrefix = "wmn/analysis"
	topicExplainPrefix  = "wmn/explain"
)

// UnknownDeviceID is substituted when a payload carries no device_id.
// All such messages collapse onto this one synthetic device.
const UnknownDeviceID = "unknown"

// Message is one decoded telemetry message. Exactly one of Metrics,
// Analysis, Explanation is non-nil, matching Kind.
type Message struct {
	Kind        Kind
	DeviceID    string
	ReceivedAt  time.Time
	Metrics     *model.MetricsRecord
	Analysis    *model.AnalysisRecord
	Explanation *model.ExplanationRecord
	Raw         []byte
}

// Classify maps a topic to a message kind. The second return is false for
// topics outside the wmn namespaces; those messages are ignored.
func Classify(topic string) (Kind, bool) {
	switch {
	case strings.HasPrefix(topic, topicMetricsPrefix):
		return KindMetrics, true
	case strings.HasPrefix(topic, topicAnalysisPrefix):
		return KindAnalysis, true
	case strings.HasPrefix(topic, topicExplainPrefix):
		return KindExplain, true
	}
	return "", false
}

// envelope is the common outer payload shape. The nested metrics/analysis
// objects stay raw here so a malformed sub-field can degrade to an empty
// record instead of failing the whole message.
type envelope struct {
	DeviceID    string          `json:"device_id"`
	Metrics     json.RawMessage `json:"metrics"`
	Analysis    json.RawMessage `json:"analysis"`
	Text        string          `json:"text"`
	Explanation string          `json:"explanation"`
}

// Decode parses one inbound message. A parse failure is returned as an
// error and must be handled by dropping the message; it never carries
// partial state.
func Decode(topic string, payload []byte, receivedAt time.Time) (Message, error) {
	kind, ok := Classify(topic)
	if !ok {
		return Message{}, fmt.Errorf("topic %q outside wmn namespaces", topic)
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Message{}, fmt.Errorf("decode %s payload: %w", kind, err)
	}

	deviceID := env.DeviceID
	if deviceID == "" {
		deviceID = UnknownDeviceID
	}

	msg := Message{
		Kind:       kind,
		DeviceID:   deviceID,
		ReceivedAt: receivedAt,
		Raw:        payload,
	}

	switch kind {
	case KindMetrics:
		rec := &model.MetricsRecord{}
		if len(env.Metrics) > 0 {
			// Absent or non-object sub-field means an empty record, not an error.
			if err := json.Unmarshal(env.Metrics, rec); err != nil {
				rec = &model.MetricsRecord{}
			}
		}
		msg.Metrics = rec
	case KindAnalysis:
		rec := &model.AnalysisRecord{}
		if len(env.Analysis) > 0 {
			if err := json.Unmarshal(env.Analysis, rec); err != nil {
				rec = &model.AnalysisRecord{}
			}
		}
		msg.Analysis = rec
	case KindExplain:
		msg.Explanation = &model.ExplanationRecord{
			Text:        env.Text,
			Explanation: env.Explanation,
			Raw:         json.RawMessage(payload),
		}
	}

	return msg, nil
}
