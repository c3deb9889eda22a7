package ingest

import (
	"encoding/csv"
	"regexp"
	"strings"

	"floodwatch/internal/normalize"
)

var (
	reTimestamp = regexp.MustCompile(`^\s*([0-9]{4}-[0-9]{2}-[0-9]{2}[ T][0-9:.+-Z]+)`)
	reKV        = regexp.MustCompile(`(?i)([a-zA-Z_]+)=([^\s]+)`)
)

// Parser handles the line formats field gateways emit: JSON objects, CSV
// rows (with or without a header), and plain key=value text.
type Parser struct {
	csv *CSVParser
}

func NewParser() *Parser {
	return &Parser{csv: NewCSVParser()}
}

func (p *Parser) ParseLine(line string) (*normalize.ReadingFields, error) {
	trim := strings.TrimSpace(line)
	if trim == "" {
		return nil, nil
	}
	if looksLikeJSON(trim) {
		if fields, err := ParseJSONBytes([]byte(trim)); err == nil {
			fields.Raw = line
			return fields, nil
		}
	}
	if strings.Contains(trim, ",") {
		fields, err := p.csv.Parse(trim)
		if err == nil {
			if fields == nil {
				return nil, nil
			}
			fields.Raw = line
			return fields, nil
		}
	}
	fields := parsePlain(trim)
	fields.Raw = line
	return fields, nil
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func parsePlain(line string) *normalize.ReadingFields {
	fields := &normalize.ReadingFields{Extras: map[string]string{}}
	ts, rest := extractTimestamp(line)
	fields.Timestamp = ts

	kv := map[string]string{}
	for _, match := range reKV.FindAllStringSubmatch(line, -1) {
		kv[strings.ToLower(match[1])] = match[2]
	}
	fields.StationID = firstNonEmpty(kv, "station_id", "station", "location", "site", "id")
	fields.WaterLevel = firstNonEmpty(kv, "water_level", "waterlevel", "level", "value")
	fields.Status = firstNonEmpty(kv, "status", "state", "condition")
	fields.Lat = firstNonEmpty(kv, "lat", "latitude")
	fields.Lng = firstNonEmpty(kv, "lng", "lon", "longitude")
	for k, v := range kv {
		fields.Extras[k] = v
	}

	if fields.StationID == "" && rest != "" {
		tokens := strings.Fields(rest)
		if len(tokens) > 0 {
			fields.StationID = tokens[0]
		}
	}
	if fields.Timestamp == "" {
		fields.Timestamp = firstNonEmpty(kv, "timestamp", "time", "ts")
	}
	return fields
}

func extractTimestamp(line string) (string, string) {
	m := reTimestamp.FindStringSubmatchIndex(line)
	if len(m) >= 4 {
		ts := strings.TrimSpace(line[m[2]:m[3]])
		rest := strings.TrimSpace(line[m[3]:])
		return ts, rest
	}
	return "", line
}

func firstNonEmpty(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(m[k]); v != "" {
			return v
		}
	}
	return ""
}

type CSVParser struct {
	header []string
}

func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

// Parse reads one CSV row. The first row that looks like a header sets the
// column layout; without one, columns are timestamp, station, level, status.
func (p *CSVParser) Parse(line string) (*normalize.ReadingFields, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.TrimLeadingSpace = true
	record, err := r.Read()
	if err != nil {
		return nil, err
	}
	if len(record) == 0 {
		return nil, nil
	}
	if p.header == nil && looksLikeHeader(record) {
		p.header = normalizeHeader(record)
		return nil, nil
	}
	fields := &normalize.ReadingFields{Extras: map[string]string{}}
	if p.header != nil {
		for i, name := range p.header {
			if i >= len(record) {
				break
			}
			assignField(fields, name, record[i])
		}
	} else {
		if len(record) >= 1 {
			fields.Timestamp = record[0]
		}
		if len(record) >= 2 {
			fields.StationID = record[1]
		}
		if len(record) >= 3 {
			fields.WaterLevel = record[2]
		}
		if len(record) >= 4 {
			fields.Status = record[3]
		}
	}
	return fields, nil
}

func looksLikeHeader(record []string) bool {
	for _, v := range record {
		v = strings.ToLower(strings.TrimSpace(v))
		switch v {
		case "timestamp", "time", "ts", "station", "station_id", "location", "water_level", "level", "status", "lat", "lng":
			return true
		}
	}
	return false
}

func normalizeHeader(record []string) []string {
	out := make([]string, len(record))
	for i, v := range record {
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

func assignField(fields *normalize.ReadingFields, name string, value string) {
	name = strings.ToLower(strings.TrimSpace(name))
	value = strings.TrimSpace(value)
	switch name {
	case "timestamp", "time", "ts", "date_time":
		fields.Timestamp = value
	case "station", "station_id", "location", "site":
		fields.StationID = value
	case "water_level", "waterlevel", "level", "value":
		fields.WaterLevel = value
	case "status", "state", "condition":
		fields.Status = value
	case "lat", "latitude":
		fields.Lat = value
	case "lng", "lon", "longitude":
		fields.Lng = value
	default:
		if fields.Extras != nil {
			fields.Extras[name] = value
		}
	}
}
