package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wmnmon/internal/anomaly"
	"wmnmon/internal/api"
	"wmnmon/internal/explain"
	"wmnmon/internal/incident"
	"wmnmon/internal/model"
	"wmnmon/internal/monitor"
	"wmnmon/internal/store"
	"wmnmon/internal/telemetry"
)

func f(v float64) *float64 { return &v }

type fakeBus struct{ up bool }

func (b fakeBus) Connected() bool { return b.up }

func testServer(t *testing.T, explainer *explain.Client) (*Server, *store.Store) {
	t.Helper()
	st := store.New(100)
	rules := incident.Rules{
		OnlineGrace:   20 * time.Second,
		RSSIWeakDBm:   -80,
		LatencyWarnMs: 150,
		JitterWarnMs:  50,
		LossWarnPct:   3,
		Anomaly:       anomaly.Config{Window: 30, MinSamples: 30, ZThreshold: 3},
	}
	mon := monitor.New(st, rules)
	return New("127.0.0.1:0", mon, fakeBus{up: true}, explainer), st
}

func ingest(st *store.Store, dev string, rec model.MetricsRecord) {
	st.Ingest(telemetry.Message{
		Kind:       telemetry.KindMetrics,
		DeviceID:   dev,
		ReceivedAt: time.Now().UTC(),
		Metrics:    &rec,
	})
}

func TestHandleStatus(t *testing.T) {
	t.Parallel()

	srv, st := testServer(t, nil)
	ingest(st, "ap-1", model.MetricsRecord{LatencyMs: f(40)})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var resp api.StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Connected || resp.Devices != 1 || resp.LastMessageAt == "" {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestHandleDevices(t *testing.T) {
	t.Parallel()

	srv, st := testServer(t, nil)
	ingest(st, "ap-1", model.MetricsRecord{RSSIdBm: f(-55)})
	ingest(st, "ap-2", model.MetricsRecord{RSSIdBm: f(-85)})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/devices", nil))

	var resp api.DevicesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Devices) != 2 {
		t.Fatalf("devices=%d", len(resp.Devices))
	}
	// Best health first.
	if resp.Devices[0].Device != "ap-1" {
		t.Fatalf("first=%s", resp.Devices[0].Device)
	}
}

func TestHandleDevice_NotFound(t *testing.T) {
	t.Parallel()

	srv, _ := testServer(t, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/device?id=ghost", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/device", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestHandleTrend(t *testing.T) {
	t.Parallel()

	srv, st := testServer(t, nil)
	for i := 0; i < 5; i++ {
		ingest(st, "ap-1", model.MetricsRecord{LatencyMs: f(float64(40 + i))})
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/trend?id=ap-1", nil))

	var resp api.TrendResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Latency.Samples) != 5 || len(resp.Latency.MovingAvg) != 5 {
		t.Fatalf("trend=%+v", resp.Latency)
	}
}

func TestHandleIncidents(t *testing.T) {
	t.Parallel()

	srv, st := testServer(t, nil)
	ingest(st, "ap-1", model.MetricsRecord{LatencyMs: f(500)})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/incidents", nil))

	var resp api.IncidentsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Incidents) != 1 || resp.Incidents[0].Type != model.IncidentHighLatency {
		t.Fatalf("incidents=%+v", resp.Incidents)
	}
	if resp.Incidents[0].Severity != model.SeverityBad {
		t.Fatalf("severity=%s", resp.Incidents[0].Severity)
	}
}

func TestHandleExplain_ProxiesToService(t *testing.T) {
	t.Parallel()

	explainSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got map[string]map[string]any
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if got["analysis"]["device_id"] != "ap-1" {
			t.Errorf("payload=%v", got)
		}
		w.Write([]byte(`{"answer":"ok"}`))
	}))
	defer explainSrv.Close()

	srv, st := testServer(t, explain.NewClient(explainSrv.URL, 5*time.Second))
	ingest(st, "ap-1", model.MetricsRecord{LatencyMs: f(40)})

	body, _ := json.Marshal(api.ExplainRequest{DeviceID: "ap-1", Question: "why?"})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/explain", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"answer"`) {
		t.Fatalf("body=%s", rec.Body.String())
	}
}

func TestHandleExplain_ServiceFailureIsBadGateway(t *testing.T) {
	t.Parallel()

	explainSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	defer explainSrv.Close()

	srv, st := testServer(t, explain.NewClient(explainSrv.URL, 5*time.Second))
	ingest(st, "ap-1", model.MetricsRecord{LatencyMs: f(40)})

	body, _ := json.Marshal(api.ExplainRequest{DeviceID: "ap-1", Question: "why?"})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/explain", bytes.NewReader(body)))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestHandleExplain_NotConfigured(t *testing.T) {
	t.Parallel()

	srv, _ := testServer(t, nil)
	body, _ := json.Marshal(api.ExplainRequest{DeviceID: "ap-1", Question: "why?"})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/explain", bytes.NewReader(body)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestMethodGuards(t *testing.T) {
	t.Parallel()

	srv, _ := testServer(t, nil)
	for _, path := range []string{"/status", "/devices", "/incidents"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s status=%d", path, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/explain", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("/explain status=%d", rec.Code)
	}
}
