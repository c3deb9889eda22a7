package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floodwatch/internal/model"
	"floodwatch/internal/normalize"
	"floodwatch/internal/observability"
)

func TestParseLineJSON(t *testing.T) {
	p := NewParser()
	fields, err := p.ParseLine(`{"station":"Burgos","water_level":4.25,"status":"Critical","timestamp":"2026-08-12T06:30:00Z"}`)
	require.NoError(t, err)
	require.NotNil(t, fields)
	assert.Equal(t, "Burgos", fields.StationID)
	assert.Equal(t, "4.25", fields.WaterLevel)
	assert.Equal(t, "Critical", fields.Status)
	assert.Equal(t, "2026-08-12T06:30:00Z", fields.Timestamp)
}

func TestParseLineJSONAltKeys(t *testing.T) {
	p := NewParser()
	fields, err := p.ParseLine(`{"station_id":"sabtang","level":1.1,"state":"Normal","ts":1786516200}`)
	require.NoError(t, err)
	require.NotNil(t, fields)
	assert.Equal(t, "sabtang", fields.StationID)
	assert.Equal(t, "1.1", fields.WaterLevel)
	assert.Equal(t, "Normal", fields.Status)
	assert.Equal(t, "1786516200", fields.Timestamp)
}

func TestParseLineCSVWithHeader(t *testing.T) {
	p := NewParser()
	header, err := p.ParseLine("timestamp,station,water_level,status")
	require.NoError(t, err)
	assert.Nil(t, header)

	fields, err := p.ParseLine("2026-08-12T06:30:00Z,burgos,4.25,Critical")
	require.NoError(t, err)
	require.NotNil(t, fields)
	assert.Equal(t, "burgos", fields.StationID)
	assert.Equal(t, "4.25", fields.WaterLevel)
	assert.Equal(t, "Critical", fields.Status)
}

func TestParseLineCSVPositional(t *testing.T) {
	p := NewParser()
	fields, err := p.ParseLine("2026-08-12T06:30:00Z,burgos,4.25,Alert")
	require.NoError(t, err)
	require.NotNil(t, fields)
	assert.Equal(t, "burgos", fields.StationID)
	assert.Equal(t, "Alert", fields.Status)
}

func TestParseLinePlainKV(t *testing.T) {
	p := NewParser()
	fields, err := p.ParseLine("2026-08-12T06:30:00Z station=burgos level=4.25 status=Warning")
	require.NoError(t, err)
	require.NotNil(t, fields)
	assert.Equal(t, "burgos", fields.StationID)
	assert.Equal(t, "4.25", fields.WaterLevel)
	assert.Equal(t, "Warning", fields.Status)
	assert.Equal(t, "2026-08-12T06:30:00Z", fields.Timestamp)
}

func TestParseLineEmpty(t *testing.T) {
	p := NewParser()
	fields, err := p.ParseLine("   ")
	require.NoError(t, err)
	assert.Nil(t, fields)
}

func TestNormalizeReadingFromParsedFields(t *testing.T) {
	p := NewParser()
	fields, err := p.ParseLine(`{"station":"Burgos","water_level":"4.25","status":"Critical","timestamp":"2026-08-12T06:30:00Z"}`)
	require.NoError(t, err)

	rd, err := normalize.Reading(*fields, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "burgos", rd.StationID)
	assert.Equal(t, 4.25, rd.WaterLevel)
	assert.Equal(t, time.Date(2026, 8, 12, 6, 30, 0, 0, time.UTC), rd.Timestamp)
}

func TestNormalizeReadingMissingTimestampStaysZero(t *testing.T) {
	rd, err := normalize.Reading(normalize.ReadingFields{StationID: "burgos", WaterLevel: "2.0"}, time.UTC)
	require.NoError(t, err)
	assert.True(t, rd.Timestamp.IsZero())
}

func TestSendNonBlockingDropsWhenFull(t *testing.T) {
	out := make(chan model.StationReading, 1)
	m := observability.NewMetricsForTesting()
	rd := model.StationReading{StationID: "burgos"}

	assert.True(t, SendNonBlocking(context.Background(), out, rd, nil, m))
	assert.False(t, SendNonBlocking(context.Background(), out, rd, nil, m))
}

func TestDedupeCache(t *testing.T) {
	d := NewDedupeCache()
	now := time.Now().UTC()
	rd := model.StationReading{StationID: "burgos", WaterLevel: 4.2, RawStatus: "Alert", Timestamp: now}

	assert.False(t, d.Seen(readingKey(rd), now, 30*time.Second))
	assert.True(t, d.Seen(readingKey(rd), now.Add(10*time.Second), 30*time.Second))
	assert.False(t, d.Seen(readingKey(rd), now.Add(2*time.Minute), 30*time.Second))

	other := rd
	other.WaterLevel = 4.3
	assert.False(t, d.Seen(readingKey(other), now, 30*time.Second))
}
