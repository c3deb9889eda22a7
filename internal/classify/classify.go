// Package classify holds the pure reading-classification rules: staleness
// against a per-consumer threshold and raw status labels against the severity
// tiers. Callers pass an explicit "now" so behavior is deterministic in tests.
package classify

import (
	"time"

	"floodwatch/internal/model"
)

// IsStale reports whether a producer timestamp is too old to trust. A zero
// timestamp (producer sent none) is always stale. The boundary is exclusive:
// a reading exactly threshold old is still fresh.
func IsStale(ts time.Time, threshold time.Duration, now time.Time) bool {
	if ts.IsZero() {
		return true
	}
	return now.Sub(ts) > threshold
}

// Classify maps a raw status label to an effective severity. Staleness is the
// single highest-precedence override: a stale reading is Offline no matter
// what the sensor last said.
func Classify(raw string, stale bool) model.Severity {
	if stale {
		return model.SeverityOffline
	}
	return model.ParseSeverity(raw)
}

// Effective derives the consumer-facing view of a reading. Stale stations
// report a zero water level so consumers never show hours-old values as
// current.
func Effective(rd model.StationReading, threshold time.Duration, now time.Time) model.EffectiveStatus {
	stale := IsStale(rd.Timestamp, threshold, now)
	level := rd.WaterLevel
	if stale {
		level = 0
	}
	return model.EffectiveStatus{
		StationID:  rd.StationID,
		Severity:   Classify(rd.RawStatus, stale),
		Stale:      stale,
		WaterLevel: level,
		UpdatedAt:  rd.Timestamp,
	}
}
