package normalize

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"floodwatch/internal/model"
)

// ReadingFields is the raw string form of one reading as extracted by the
// ingest parsers, before any type conversion.
type ReadingFields struct {
	StationID  string
	WaterLevel string
	Status     string
	Timestamp  string
	Lat        string
	Lng        string
	Raw        string
	Extras     map[string]string
}

var ErrMissingStation = errors.New("reading has no station id")

// Reading converts parsed fields into a typed reading. A missing timestamp is
// kept as the zero time; downstream classification treats it as stale rather
// than trusting the arrival clock.
func Reading(fields ReadingFields, loc *time.Location) (model.StationReading, error) {
	station := strings.ToLower(strings.TrimSpace(fields.StationID))
	if station == "" {
		return model.StationReading{}, ErrMissingStation
	}
	rd := model.StationReading{
		StationID: station,
		RawStatus: strings.TrimSpace(fields.Status),
	}
	if v := strings.TrimSpace(fields.WaterLevel); v != "" {
		level, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return model.StationReading{}, errors.New("invalid water level: " + v)
		}
		rd.WaterLevel = level
	}
	if v := strings.TrimSpace(fields.Timestamp); v != "" {
		ts, err := ParseTimestamp(v, loc)
		if err != nil {
			return model.StationReading{}, err
		}
		rd.Timestamp = ts.UTC()
	}
	if v := strings.TrimSpace(fields.Lat); v != "" {
		if lat, err := strconv.ParseFloat(v, 64); err == nil {
			rd.Lat = lat
		}
	}
	if v := strings.TrimSpace(fields.Lng); v != "" {
		if lng, err := strconv.ParseFloat(v, 64); err == nil {
			rd.Lng = lng
		}
	}
	return rd, nil
}
