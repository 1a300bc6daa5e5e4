// Package store owns all mutable per-device state: latest records per
// message kind, bounded latency/score histories, and last-seen timestamps.
package store

import (
	"sort"
	"sync"
	"time"

	"wmnmon/internal/model"
	"wmnmon/internal/telemetry"
)

// DefaultHistoryCapacity bounds each per-device time series.
const DefaultHistoryCapacity = 800

// Store is the single shared repository of device state. One mutex covers
// every map so all updates from one message land as a single atomic unit:
// a reader can never observe last_seen advanced while the metrics map is
// still stale.
type Store struct {
	mu       sync.RWMutex
	capacity int

	metrics   map[string]model.MetricsRecord
	analysis  map[string]model.AnalysisRecord
	explain   map[string]model.ExplanationRecord
	latHist   map[string][]model.Sample
	scoreHist map[string][]model.Sample
	lastSeen  map[string]time.Time

	lastMessage time.Time
}

// New creates an empty store. capacity bounds each history; values <= 0
// fall back to DefaultHistoryCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &Store{
		capacity:  capacity,
		metrics:   make(map[string]model.MetricsRecord),
		analysis:  make(map[string]model.AnalysisRecord),
		explain:   make(map[string]model.ExplanationRecord),
		latHist:   make(map[string][]model.Sample),
		scoreHist: make(map[string][]model.Sample),
		lastSeen:  make(map[string]time.Time),
	}
}

// Ingest applies one decoded message: wholesale overwrite of the per-kind
// record, history append when a numeric latency/score is present, and
// last-seen update. Messages outside the known kinds are dropped.
func (s *Store) Ingest(msg telemetry.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg.Kind {
	case telemetry.KindMetrics:
		if msg.Metrics == nil {
			return
		}
		s.metrics[msg.DeviceID] = *msg.Metrics
		if msg.Metrics.LatencyMs != nil {
			s.latHist[msg.DeviceID] = s.appendBounded(s.latHist[msg.DeviceID], model.Sample{
				Timestamp: msg.ReceivedAt,
				Value:     *msg.Metrics.LatencyMs,
			})
		}
	case telemetry.KindAnalysis:
		if msg.Analysis == nil {
			return
		}
		s.analysis[msg.DeviceID] = *msg.Analysis
		if msg.Analysis.Score != nil {
			s.scoreHist[msg.DeviceID] = s.appendBounded(s.scoreHist[msg.DeviceID], model.Sample{
				Timestamp: msg.ReceivedAt,
				Value:     *msg.Analysis.Score,
			})
		}
	case telemetry.KindExplain:
		if msg.Explanation == nil {
			return
		}
		s.explain[msg.DeviceID] = *msg.Explanation
	default:
		return
	}

	s.lastSeen[msg.DeviceID] = msg.ReceivedAt
	if msg.ReceivedAt.After(s.lastMessage) {
		s.lastMessage = msg.ReceivedAt
	}
}

// appendBounded appends in arrival order and evicts strictly FIFO.
func (s *Store) appendBounded(hist []model.Sample, sample model.Sample) []model.Sample {
	hist = append(hist, sample)
	if len(hist) > s.capacity {
		trimmed := make([]model.Sample, s.capacity)
		copy(trimmed, hist[len(hist)-s.capacity:])
		return trimmed
	}
	return hist
}

// Snapshot returns an internally consistent view of every known device,
// keyed by the union of all three record maps and sorted by id. Records
// are copies; mutating the result never touches store state.
func (s *Store) Snapshot() []model.DeviceView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.unionIDsLocked()
	views := make([]model.DeviceView, 0, len(ids))
	for _, id := range ids {
		view := model.DeviceView{ID: id, LastSeen: s.lastSeen[id]}
		if rec, ok := s.metrics[id]; ok {
			m := rec
			view.Metrics = &m
		}
		if rec, ok := s.analysis[id]; ok {
			a := rec
			view.Analysis = &a
		}
		if rec, ok := s.explain[id]; ok {
			e := rec
			view.Explanation = &e
		}
		views = append(views, view)
	}
	return views
}

// Device returns the joined view for one device id.
func (s *Store) Device(id string) (model.DeviceView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view := model.DeviceView{ID: id, LastSeen: s.lastSeen[id]}
	found := false
	if rec, ok := s.metrics[id]; ok {
		m := rec
		view.Metrics = &m
		found = true
	}
	if rec, ok := s.analysis[id]; ok {
		a := rec
		view.Analysis = &a
		found = true
	}
	if rec, ok := s.explain[id]; ok {
		e := rec
		view.Explanation = &e
		found = true
	}
	return view, found
}

// DeviceIDs returns the sorted union of ids across all record maps.
func (s *Store) DeviceIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unionIDsLocked()
}

func (s *Store) unionIDsLocked() []string {
	set := make(map[string]struct{}, len(s.metrics))
	for id := range s.metrics {
		set[id] = struct{}{}
	}
	for id := range s.analysis {
		set[id] = struct{}{}
	}
	for id := range s.explain {
		set[id] = struct{}{}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LatencyHistory returns a copy of the device's latency series in arrival
// order. Nil when the device has produced no numeric latency yet.
func (s *Store) LatencyHistory(id string) []model.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySamples(s.latHist[id])
}

// ScoreHistory returns a copy of the device's analyzer-score series.
func (s *Store) ScoreHistory(id string) []model.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySamples(s.scoreHist[id])
}

// LastMessageAt is the receive time of the most recent message of any kind
// across all devices. Zero until the first message lands.
func (s *Store) LastMessageAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastMessage
}

func copySamples(src []model.Sample) []model.Sample {
	if len(src) == 0 {
		return nil
	}
	out := make([]model.Sample, len(src))
	copy(out, src)
	return out
}
