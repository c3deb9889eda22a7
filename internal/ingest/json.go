package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"floodwatch/internal/normalize"
)

func ParseJSONBytes(data []byte) (*normalize.ReadingFields, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return ParseJSONMap(obj), nil
}

func ParseJSONMap(obj map[string]interface{}) *normalize.ReadingFields {
	fields := &normalize.ReadingFields{Extras: map[string]string{}}
	for key, val := range obj {
		fields.Extras[strings.ToLower(key)] = formatValue(val)
	}
	fields.StationID = firstNonEmpty(fields.Extras, "station_id", "station", "location", "site", "id")
	fields.WaterLevel = firstNonEmpty(fields.Extras, "water_level", "waterlevel", "level", "value")
	fields.Status = firstNonEmpty(fields.Extras, "status", "state", "condition")
	fields.Timestamp = firstNonEmpty(fields.Extras, "timestamp", "time", "ts", "date_time")
	fields.Lat = firstNonEmpty(fields.Extras, "lat", "latitude")
	fields.Lng = firstNonEmpty(fields.Extras, "lng", "lon", "longitude")
	return fields
}

// formatValue keeps numeric JSON values in plain notation; fmt.Sprint would
// render epoch timestamps in exponent form.
func formatValue(val interface{}) string {
	if f, ok := val.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(val)
}
