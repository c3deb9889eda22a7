package readings

import (
	"context"
	"time"

	"floodwatch/internal/model"
)

type WindowStats struct {
	Count int       `json:"count"`
	Min   float64   `json:"min"`
	Max   float64   `json:"max"`
	Avg   float64   `json:"avg"`
	From  time.Time `json:"from"`
	To    time.Time `json:"to"`
}

// HistoryStats summarizes a station's history points inside the window ending
// at now. A zero window covers the whole retained history.
func (s *Store) HistoryStats(stationID string, window time.Duration, now time.Time) WindowStats {
	points := s.History(stationID)
	cutoff := time.Time{}
	if window > 0 {
		cutoff = now.Add(-window)
	}
	var stats WindowStats
	var sum float64
	for _, p := range points {
		if !cutoff.IsZero() && p.Timestamp.Before(cutoff) {
			continue
		}
		if stats.Count == 0 {
			stats.Min = p.Value
			stats.Max = p.Value
			stats.From = p.Timestamp
			stats.To = p.Timestamp
		} else {
			if p.Value < stats.Min {
				stats.Min = p.Value
			}
			if p.Value > stats.Max {
				stats.Max = p.Value
			}
			if p.Timestamp.Before(stats.From) {
				stats.From = p.Timestamp
			}
			if p.Timestamp.After(stats.To) {
				stats.To = p.Timestamp
			}
		}
		stats.Count++
		sum += p.Value
	}
	if stats.Count > 0 {
		stats.Avg = sum / float64(stats.Count)
	}
	return stats
}

// HistoryDurable returns points at or after cutoff, falling back to
// persistent storage when the in-memory buffer has nothing for the window,
// as after a restart.
func (s *Store) HistoryDurable(ctx context.Context, stationID string, cutoff time.Time, limit int) []model.HistoryPoint {
	points := s.HistorySince(stationID, cutoff)
	if len(points) > 0 || s.persist == nil {
		return points
	}
	saved, err := s.persist.ListReadings(ctx, stationID, cutoff, limit)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("durable history read failed", "station", stationID, "err", err)
		}
		return points
	}
	return saved
}

// HistorySince filters retained points to those at or after cutoff.
func (s *Store) HistorySince(stationID string, cutoff time.Time) []model.HistoryPoint {
	points := s.History(stationID)
	out := make([]model.HistoryPoint, 0, len(points))
	for _, p := range points {
		if !p.Timestamp.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out
}
