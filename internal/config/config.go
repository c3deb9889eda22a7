package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel   string           `json:"log_level" yaml:"log_level"`
	LogFormat  string           `json:"log_format" yaml:"log_format"`
	Stations   []StationConfig  `json:"stations" yaml:"stations"`
	Ingest     IngestConfig     `json:"ingest" yaml:"ingest"`
	Evaluation EvaluationConfig `json:"evaluation" yaml:"evaluation"`
	Notify     NotifyConfig     `json:"notify" yaml:"notify"`
	API        APIConfig        `json:"api" yaml:"api"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	Alerts     AlertsConfig     `json:"alerts" yaml:"alerts"`
}

// StationConfig identifies one monitoring point. The monitored fleet is
// configuration-supplied; nothing is compiled into the binary.
type StationConfig struct {
	ID   string  `json:"id" yaml:"id"`
	Name string  `json:"name" yaml:"name"`
	Lat  float64 `json:"lat" yaml:"lat"`
	Lng  float64 `json:"lng" yaml:"lng"`
}

type IngestConfig struct {
	ChannelBuffer int             `json:"channel_buffer" yaml:"channel_buffer"`
	DedupeWindow  time.Duration   `json:"dedupe_window" yaml:"dedupe_window"`
	Timezone      string          `json:"timezone" yaml:"timezone"`
	REST          RESTConfig      `json:"rest" yaml:"rest"`
	Kafka         KafkaConfig     `json:"kafka" yaml:"kafka"`
	TCPStream     TCPStreamConfig `json:"tcp_stream" yaml:"tcp_stream"`
	FileTail      FileTailConfig  `json:"file_tail" yaml:"file_tail"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type TCPStreamConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type FileTailConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	StartAtEnd bool     `json:"start_at_end" yaml:"start_at_end"`
	Files      []string `json:"files" yaml:"files"`
}

// EvaluationConfig tunes the status evaluation pipeline. Staleness is
// per-consumer: the station table and alerting use StatusStaleAfter, history
// aggregation uses the looser HistoryStaleAfter.
type EvaluationConfig struct {
	ConfirmDelay      time.Duration `json:"confirm_delay" yaml:"confirm_delay"`
	StatusStaleAfter  time.Duration `json:"status_stale_after" yaml:"status_stale_after"`
	HistoryStaleAfter time.Duration `json:"history_stale_after" yaml:"history_stale_after"`
	HistoryLimit      int           `json:"history_limit" yaml:"history_limit"`
}

type NotifyConfig struct {
	Push PushConfig `json:"push" yaml:"push"`
	SMS  SMSConfig  `json:"sms" yaml:"sms"`
}

type PushConfig struct {
	Enabled bool          `json:"enabled" yaml:"enabled"`
	URL     string        `json:"url" yaml:"url"`
	AppID   string        `json:"app_id" yaml:"app_id"`
	APIKey  string        `json:"api_key" yaml:"api_key"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

type SMSConfig struct {
	Enabled     bool          `json:"enabled" yaml:"enabled"`
	RelayURL    string        `json:"relay_url" yaml:"relay_url"`
	CountryCode string        `json:"country_code" yaml:"country_code"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type AlertsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			DedupeWindow:  30 * time.Second,
			Timezone:      "UTC",
			REST:          RESTConfig{Enabled: true, Addr: ":8080"},
			Kafka:         KafkaConfig{Enabled: false},
			TCPStream:     TCPStreamConfig{Enabled: false, Addr: ":9000"},
			FileTail:      FileTailConfig{Enabled: false, StartAtEnd: true},
		},
		Evaluation: EvaluationConfig{
			ConfirmDelay:      30 * time.Second,
			StatusStaleAfter:  120 * time.Minute,
			HistoryStaleAfter: 12 * time.Hour,
			HistoryLimit:      288,
		},
		Notify: NotifyConfig{
			Push: PushConfig{Enabled: false, URL: "https://onesignal.com/api/v1/notifications", Timeout: 10 * time.Second},
			SMS:  SMSConfig{Enabled: false, RelayURL: "http://localhost:3001/send-sms", CountryCode: "63", Timeout: 10 * time.Second},
		},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:floodwatch.db?_pragma=busy_timeout(5000)"},
		Alerts:  AlertsConfig{StoreLimit: 1000},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
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

func applyDefaults(cfg *Config) {
	// ingested readings carry lowercased station ids; config must match
	for i := range cfg.Stations {
		cfg.Stations[i].ID = strings.ToLower(strings.TrimSpace(cfg.Stations[i].ID))
	}
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Ingest.Timezone == "" {
		cfg.Ingest.Timezone = "UTC"
	}
	if cfg.Evaluation.ConfirmDelay <= 0 {
		cfg.Evaluation.ConfirmDelay = 30 * time.Second
	}
	if cfg.Evaluation.StatusStaleAfter <= 0 {
		cfg.Evaluation.StatusStaleAfter = 120 * time.Minute
	}
	if cfg.Evaluation.HistoryStaleAfter <= 0 {
		cfg.Evaluation.HistoryStaleAfter = 12 * time.Hour
	}
	if cfg.Evaluation.HistoryLimit <= 0 {
		cfg.Evaluation.HistoryLimit = 288
	}
	if cfg.Notify.Push.Timeout <= 0 {
		cfg.Notify.Push.Timeout = 10 * time.Second
	}
	if cfg.Notify.SMS.Timeout <= 0 {
		cfg.Notify.SMS.Timeout = 10 * time.Second
	}
	if cfg.Notify.SMS.CountryCode == "" {
		cfg.Notify.SMS.CountryCode = "63"
	}
	if cfg.Alerts.StoreLimit <= 0 {
		cfg.Alerts.StoreLimit = 1000
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.TCPStream.Enabled && cfg.Ingest.TCPStream.Addr == "" {
		return errors.New("ingest.tcp_stream.addr required when ingest.tcp_stream.enabled is true")
	}
	if cfg.Ingest.FileTail.Enabled && len(cfg.Ingest.FileTail.Files) == 0 {
		return errors.New("ingest.file_tail.files required when ingest.file_tail.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Notify.Push.Enabled {
		if cfg.Notify.Push.URL == "" || cfg.Notify.Push.AppID == "" {
			return errors.New("notify.push requires url and app_id")
		}
	}
	if cfg.Notify.SMS.Enabled && cfg.Notify.SMS.RelayURL == "" {
		return errors.New("notify.sms.relay_url required when notify.sms.enabled is true")
	}
	seen := map[string]bool{}
	for _, st := range cfg.Stations {
		if strings.TrimSpace(st.ID) == "" {
			return errors.New("stations entries require an id")
		}
		id := strings.ToLower(st.ID)
		if seen[id] {
			return fmt.Errorf("duplicate station id: %s", st.ID)
		}
		seen[id] = true
	}
	return nil
}

// StationName resolves a station's display name, falling back to its id.
// Station ids compare case-insensitively.
func (c *Config) StationName(id string) string {
	for _, st := range c.Stations {
		if strings.EqualFold(st.ID, id) && st.Name != "" {
			return st.Name
		}
	}
	return id
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
