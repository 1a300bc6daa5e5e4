// Package server exposes the read-only snapshot query surface over HTTP
// plus a websocket push channel. It reads from the monitor and never
// mutates core state.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"wmnmon/internal/api"
	"wmnmon/internal/explain"
	"wmnmon/internal/monitor"
)

// minBroadcastInterval rate-limits ingest-driven websocket frames so a
// chatty fleet doesn't turn every message into a broadcast.
const minBroadcastInterval = time.Second

// ConnectionState reports whether the telemetry bus session is up.
type ConnectionState interface {
	Connected() bool
}

// Server serves the collector's query API.
type Server struct {
	listen    string
	mon       *monitor.Monitor
	bus       ConnectionState
	explainer *explain.Client
	hub       *Hub
	upgrader  websocket.Upgrader

	lastPush time.Time
	pushCh   chan struct{}
}

// New wires a server over the monitor. explainer may be nil when no
// explanation service is configured; bus may be nil in replay setups.
func New(listen string, mon *monitor.Monitor, bus ConnectionState, explainer *explain.Client) *Server {
	return &Server{
		listen:    listen,
		mon:       mon,
		bus:       bus,
		explainer: explainer,
		hub:       NewHub(),
		upgrader:  websocket.Upgrader{},
		pushCh:    make(chan struct{}, 1),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/devices", s.handleDevices)
	mux.HandleFunc("/device", s.handleDevice)
	mux.HandleFunc("/trend", s.handleTrend)
	mux.HandleFunc("/incidents", s.handleIncidents)
	mux.HandleFunc("/explain", s.handleExplain)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Run serves until ctx is cancelled, pushing websocket frames as ingest
// notifications arrive.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go s.pushLoop(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("query API listening on %s", s.listen)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Notify signals that new telemetry landed. Called from the ingest path;
// never blocks.
func (s *Server) Notify() {
	select {
	case s.pushCh <- struct{}{}:
	default:
	}
}

func (s *Server) pushLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.pushCh:
		}

		if since := time.Since(s.lastPush); since < minBroadcastInterval {
			select {
			case <-ctx.Done():
				return
			case <-time.After(minBroadcastInterval - since):
			}
		}
		s.lastPush = time.Now()

		if s.hub.Count() == 0 {
			continue
		}
		now := time.Now().UTC()
		s.hub.Broadcast(map[string]any{
			"fleet":     s.mon.Fleet(now),
			"incidents": s.mon.Incidents(now),
			"at":        now,
		})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := api.StatusResponse{Devices: len(s.mon.ListDevices())}
	if s.bus != nil {
		resp.Connected = s.bus.Connected()
	}
	if at := s.mon.LastMessageAt(); !at.IsZero() {
		resp.LastMessageAt = at.UTC().Format(time.RFC3339Nano)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, api.DevicesResponse{Devices: s.mon.Fleet(time.Now().UTC())})
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "id required")
		return
	}
	view, ok := s.mon.DeviceView(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "unknown device")
		return
	}
	writeJSON(w, http.StatusOK, api.DeviceResponse{Device: view})
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "id required")
		return
	}
	writeJSON(w, http.StatusOK, api.TrendResponse{
		DeviceID: id,
		Latency:  s.mon.LatencyTrend(id),
		Scores:   s.mon.ScoreTrend(id),
	})
}

func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	incidents := s.mon.Incidents(time.Now().UTC())
	writeJSON(w, http.StatusOK, api.IncidentsResponse{Incidents: incidents})
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.explainer == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "explainer not configured")
		return
	}

	var req api.ExplainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.DeviceID == "" || req.Question == "" {
		writeJSONError(w, http.StatusBadRequest, "device_id and question are required")
		return
	}

	view, ok := s.mon.DeviceView(req.DeviceID)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "unknown device")
		return
	}

	answer, err := s.explainer.Ask(r.Context(), explain.Request{
		DeviceID: req.DeviceID,
		Raw:      view.Metrics,
		Analysis: view.Analysis,
		Question: req.Question,
	})
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(answer)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade: %v", err)
		return
	}
	s.hub.Add(conn)

	// Consumers only read; drain until the peer goes away.
	go func() {
		defer s.hub.Remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
