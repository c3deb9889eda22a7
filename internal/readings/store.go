// Package readings is the in-process view of the realtime reading store:
// current reading, bounded history, and all-time highest level per station,
// plus cancellable watch subscriptions for status-change consumers.
package readings

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"floodwatch/internal/model"
	"floodwatch/internal/storage"
)

type stationData struct {
	current    model.StationReading
	hasCurrent bool
	history    []model.HistoryPoint
	highest    float64
	watchers   map[*Subscription]struct{}
}

type Store struct {
	mu           sync.RWMutex
	logger       *slog.Logger
	persist      storage.Store
	historyLimit int
	stations     map[string]*stationData
}

func NewStore(historyLimit int, persist storage.Store, logger *slog.Logger) *Store {
	if historyLimit <= 0 {
		historyLimit = 288
	}
	return &Store{
		logger:       logger,
		persist:      persist,
		historyLimit: historyLimit,
		stations:     make(map[string]*stationData),
	}
}

// SetCurrent replaces a station's current reading, appends to its history,
// and notifies watchers. Readings are replace-only; nothing is deleted.
func (s *Store) SetCurrent(ctx context.Context, rd model.StationReading) {
	if rd.StationID == "" {
		return
	}
	s.mu.Lock()
	st := s.station(rd.StationID)
	st.current = rd
	st.hasCurrent = true
	if !rd.Timestamp.IsZero() {
		st.history = append(st.history, model.HistoryPoint{Timestamp: rd.Timestamp, Value: rd.WaterLevel})
		if len(st.history) > s.historyLimit {
			st.history = st.history[len(st.history)-s.historyLimit:]
		}
	}
	if rd.WaterLevel > st.highest {
		st.highest = rd.WaterLevel
	}
	watchers := make([]*Subscription, 0, len(st.watchers))
	for w := range st.watchers {
		watchers = append(watchers, w)
	}
	s.mu.Unlock()

	for _, w := range watchers {
		w.deliver(rd, s.logger)
	}

	if s.persist != nil {
		if err := s.persist.SaveReading(ctx, rd); err != nil && s.logger != nil {
			s.logger.Warn("persist reading failed", "station", rd.StationID, "err", err)
		}
	}
}

func (s *Store) Current(stationID string) (model.StationReading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stations[stationID]
	if !ok || !st.hasCurrent {
		return model.StationReading{}, false
	}
	return st.current, true
}

func (s *Store) Highest(stationID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.stations[stationID]; ok {
		return st.highest
	}
	return 0
}

// Snapshot returns the current reading of every station, sorted by id.
func (s *Store) Snapshot() []model.StationReading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.StationReading, 0, len(s.stations))
	for _, st := range s.stations {
		if st.hasCurrent {
			out = append(out, st.current)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StationID < out[j].StationID })
	return out
}

func (s *Store) History(stationID string) []model.HistoryPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stations[stationID]
	if !ok {
		return nil
	}
	out := make([]model.HistoryPoint, len(st.history))
	copy(out, st.history)
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, st := range s.stations {
		if len(st.watchers) == 0 {
			delete(s.stations, id)
			continue
		}
		st.current = model.StationReading{}
		st.hasCurrent = false
		st.history = nil
		st.highest = 0
	}
}

// caller must hold s.mu
func (s *Store) station(id string) *stationData {
	st, ok := s.stations[id]
	if !ok {
		st = &stationData{watchers: make(map[*Subscription]struct{})}
		s.stations[id] = st
	}
	return st
}
