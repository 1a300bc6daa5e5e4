package telemetry

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		topic string
		kind  Kind
		ok    bool
	}{
		{"wmn/metrics/ap-1", KindMetrics, true},
		{"wmn/analysis/ap-1", KindAnalysis, true},
		{"wmn/explain/ap-1", KindExplain, true},
		{"wmn/other/ap-1", "", false},
		{"telemetry/ap-1", "", false},
	}
	for _, tc := range cases {
		kind, ok := Classify(tc.topic)
		if ok != tc.ok || kind != tc.kind {
			t.Fatalf("Classify(%q)=%q,%v", tc.topic, kind, ok)
		}
	}
}

func TestDecode_Metrics(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	payload := []byte(`{
		"device_id": "ap-1",
		"metrics": {
			"rssi_dbm": -72.5,
			"latency_ms_avg": 83.2,
			"jitter_ms": 12,
			"packet_loss_pct": 0,
			"interface": "wlan0",
			"channel": 36
		}
	}`)

	msg, err := Decode("wmn/metrics/ap-1", payload, now)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg.Kind != KindMetrics || msg.DeviceID != "ap-1" {
		t.Fatalf("msg=%+v", msg)
	}
	m := msg.Metrics
	if m == nil {
		t.Fatalf("metrics record missing")
	}
	if m.RSSIdBm == nil || *m.RSSIdBm != -72.5 {
		t.Fatalf("rssi=%v", m.RSSIdBm)
	}
	// Zero loss is present, not absent.
	if m.PacketLossPct == nil || *m.PacketLossPct != 0 {
		t.Fatalf("loss=%v", m.PacketLossPct)
	}
	if m.Channel == nil || *m.Channel != 36 {
		t.Fatalf("channel=%v", m.Channel)
	}
	if m.ThroughputUpMbps != nil {
		t.Fatalf("absent throughput decoded as %v", *m.ThroughputUpMbps)
	}
}

func TestDecode_MissingDeviceID(t *testing.T) {
	t.Parallel()

	msg, err := Decode("wmn/metrics/x", []byte(`{"metrics": {"latency_ms_avg": 10}}`), time.Now())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg.DeviceID != UnknownDeviceID {
		t.Fatalf("device=%q", msg.DeviceID)
	}
}

func TestDecode_AbsentSubfieldIsEmptyRecord(t *testing.T) {
	t.Parallel()

	msg, err := Decode("wmn/metrics/ap-1", []byte(`{"device_id": "ap-1"}`), time.Now())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg.Metrics == nil {
		t.Fatalf("expected empty record, got nil")
	}
	if msg.Metrics.LatencyMs != nil || msg.Metrics.RSSIdBm != nil {
		t.Fatalf("empty record has values: %+v", msg.Metrics)
	}
}

func TestDecode_NonObjectSubfieldIsEmptyRecord(t *testing.T) {
	t.Parallel()

	msg, err := Decode("wmn/metrics/ap-1", []byte(`{"device_id": "ap-1", "metrics": "broken"}`), time.Now())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg.Metrics == nil || msg.Metrics.LatencyMs != nil {
		t.Fatalf("record=%+v", msg.Metrics)
	}
}

func TestDecode_MalformedPayloadRejected(t *testing.T) {
	t.Parallel()

	if _, err := Decode("wmn/metrics/ap-1", []byte(`{not json`), time.Now()); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
	if _, err := Decode("other/topic", []byte(`{}`), time.Now()); err == nil {
		t.Fatalf("expected error for foreign topic")
	}
}

func TestDecode_Analysis(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"device_id": "ap-2",
		"analysis": {
			"wireless_score_0_100": 87.5,
			"handover_detected": true,
			"congestion_detected": false
		}
	}`)

	msg, err := Decode("wmn/analysis/ap-2", payload, time.Now())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	a := msg.Analysis
	if a == nil || a.Score == nil || *a.Score != 87.5 {
		t.Fatalf("analysis=%+v", a)
	}
	if !a.HandoverDetected || a.CongestionDetected {
		t.Fatalf("flags=%+v", a)
	}
}

func TestDecode_ExplainFallbackFields(t *testing.T) {
	t.Parallel()

	msg, err := Decode("wmn/explain/ap-1", []byte(`{"device_id":"ap-1","explanation":"all good"}`), time.Now())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg.Explanation == nil {
		t.Fatalf("explanation missing")
	}
	if got := msg.Explanation.Display(); got != "all good" {
		t.Fatalf("display=%q", got)
	}

	// Neither text field present: display falls back to the raw payload.
	msg, err = Decode("wmn/explain/ap-1", []byte(`{"device_id":"ap-1","verdict":"ok"}`), time.Now())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := msg.Explanation.Display(); got != `{"device_id":"ap-1","verdict":"ok"}` {
		t.Fatalf("display=%q", got)
	}
}
