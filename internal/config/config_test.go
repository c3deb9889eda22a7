package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "floodwatch.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "log_level: debug\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.Evaluation.ConfirmDelay)
	assert.Equal(t, 120*time.Minute, cfg.Evaluation.StatusStaleAfter)
	assert.Equal(t, 12*time.Hour, cfg.Evaluation.HistoryStaleAfter)
	assert.Equal(t, "63", cfg.Notify.SMS.CountryCode)
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, `{"log_level":"warn","stations":[{"id":"Burgos","name":"Burgos Station"}]}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	require.Len(t, cfg.Stations, 1)
	assert.Equal(t, "Burgos Station", cfg.StationName("Burgos"))
	assert.Equal(t, "Tapuac", cfg.StationName("Tapuac"))
}

func TestLoadCanonicalizesStationIDs(t *testing.T) {
	path := writeConfig(t, `{"stations":[{"id":" Burgos ","name":"Burgos Bridge"}]}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	// ingested readings are keyed by lowercased station id; the loaded
	// config must use the same form or watches never match
	assert.Equal(t, "burgos", cfg.Stations[0].ID)
	assert.Equal(t, "Burgos Bridge", cfg.StationName("burgos"))
	assert.Equal(t, "Burgos Bridge", cfg.StationName("Burgos"))
}

func TestValidateRejectsDuplicateStations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Stations = []StationConfig{{ID: "Burgos"}, {ID: "Burgos"}}
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsDuplicateStationsAcrossCase(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Stations = []StationConfig{{ID: "Burgos"}, {ID: "burgos"}}
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsPushWithoutAppID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Notify.Push.Enabled = true
	cfg.Notify.Push.AppID = ""
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsKafkaMissingFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ingest.Kafka.Enabled = true
	assert.Error(t, Validate(cfg))
}

func TestLoadRejectsEmptyFile(t *testing.T) {
	path := writeConfig(t, "")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestManagerReload(t *testing.T) {
	path := writeConfig(t, "log_level: info\n")
	m, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, "info", m.Get().LogLevel)

	require.NoError(t, os.WriteFile(path, []byte("log_level: error\n"), 0o644))
	cfg, err := m.Reload()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, "error", m.Get().LogLevel)
}
