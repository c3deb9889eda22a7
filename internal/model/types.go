package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Severity is the ordered tier a station reading is classified into.
// Unknown covers raw status labels the upstream pipeline emits that we do
// not recognize; it sorts below Normal so threshold logic stays conservative.
// Offline is not a sensor state: it is forced whenever a reading is stale
// and overrides whatever the raw label says.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityNormal
	SeverityWarning
	SeverityAlert
	SeverityCritical
	SeverityOffline
)

func (s Severity) String() string {
	switch s {
	case SeverityNormal:
		return "Normal"
	case SeverityWarning:
		return "Warning"
	case SeverityAlert:
		return "Alert"
	case SeverityCritical:
		return "Critical"
	case SeverityOffline:
		return "Offline"
	default:
		return "Unknown"
	}
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	*s = ParseSeverity(label)
	return nil
}

// ParseSeverity maps a raw status label to a tier, case-insensitively.
// Unrecognized labels map to SeverityUnknown rather than Normal so that
// upstream label drift is observable instead of silently downgraded.
func ParseSeverity(raw string) Severity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "normal":
		return SeverityNormal
	case "warning":
		return SeverityWarning
	case "alert":
		return SeverityAlert
	case "critical":
		return SeverityCritical
	case "offline":
		return SeverityOffline
	default:
		return SeverityUnknown
	}
}

// StationReading is one measurement from a monitoring point. Timestamp is
// producer-supplied capture time, not receipt time; a zero Timestamp means
// the producer sent none and the reading classifies as stale.
type StationReading struct {
	StationID  string    `json:"station_id"`
	WaterLevel float64   `json:"water_level"`
	RawStatus  string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Lat        float64   `json:"lat,omitempty"`
	Lng        float64   `json:"lng,omitempty"`
	Source     string    `json:"source,omitempty"`
}

// HistoryPoint is a retained water-level sample.
type HistoryPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// EffectiveStatus is the derived, consumer-facing view of a station.
// Never persisted.
type EffectiveStatus struct {
	StationID    string    `json:"station_id"`
	Name         string    `json:"name,omitempty"`
	Severity     Severity  `json:"severity"`
	Stale        bool      `json:"stale"`
	WaterLevel   float64   `json:"water_level"`
	HighestLevel float64   `json:"highest_level,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Alert struct {
	Timestamp    time.Time `json:"timestamp"`
	StationID    string    `json:"station_id"`
	Severity     Severity  `json:"severity"`
	PrevSeverity Severity  `json:"prev_severity"`
	WaterLevel   float64   `json:"water_level"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
}

type Subscriber struct {
	PhoneNumber  string    `json:"phone_number"`
	SubscribedAt time.Time `json:"subscribed_at"`
}

type Feedback struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
