// Package api exposes the read side of the monitor plus the signup and admin
// operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"floodwatch/internal/alerts"
	"floodwatch/internal/classify"
	"floodwatch/internal/config"
	"floodwatch/internal/feedback"
	"floodwatch/internal/model"
	"floodwatch/internal/observability"
	"floodwatch/internal/readings"
	"floodwatch/internal/subscribers"
)

// MonitorControl is the slice of the evaluation engine the admin endpoints
// need.
type MonitorControl interface {
	Reset()
	UpdateConfig(cfg *config.Config)
}

type Server struct {
	cfg      *config.Manager
	readings *readings.Store
	alerts   *alerts.Store
	subs     *subscribers.Store
	feedback *feedback.Store
	monitor  MonitorControl
	logger   *slog.Logger
	metrics  *observability.Metrics
	version  string
}

type statusResponse struct {
	Status     string           `json:"status"`
	Time       string           `json:"time"`
	Version    string           `json:"version"`
	ConfigPath string           `json:"config_path"`
	Stations   int              `json:"stations"`
	Ingest     ingestStatus     `json:"ingest"`
	API        apiStatus        `json:"api"`
	Evaluation evaluationStatus `json:"evaluation"`
}

type ingestStatus struct {
	REST      bool `json:"rest"`
	Kafka     bool `json:"kafka"`
	TCPStream bool `json:"tcp_stream"`
	FileTail  bool `json:"file_tail"`
}

type apiStatus struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

type evaluationStatus struct {
	ConfirmDelay     string `json:"confirm_delay"`
	StatusStaleAfter string `json:"status_stale_after"`
}

type stationResponse struct {
	model.EffectiveStatus
	Lat float64 `json:"lat,omitempty"`
	Lng float64 `json:"lng,omitempty"`
}

func Start(ctx context.Context, cfg *config.Manager, rds *readings.Store, alertsStore *alerts.Store, subs *subscribers.Store, fb *feedback.Store, monitor MonitorControl, logger *slog.Logger, metrics *observability.Metrics, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:      cfg,
		readings: rds,
		alerts:   alertsStore,
		subs:     subs,
		feedback: fb,
		monitor:  monitor,
		logger:   logger,
		metrics:  metrics,
		version:  version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/stations", server.handleStations)
	mux.HandleFunc("/stations/", server.handleStation)
	mux.HandleFunc("/alerts", server.handleAlerts)
	mux.HandleFunc("/subscriptions", server.handleSubscriptions)
	mux.HandleFunc("/feedback", server.handleFeedback)
	mux.HandleFunc("/admin/clear", server.handleClear)
	mux.HandleFunc("/admin/restart", server.handleRestart)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Stations:   len(cfg.Stations),
		Ingest: ingestStatus{
			REST:      cfg.Ingest.REST.Enabled,
			Kafka:     cfg.Ingest.Kafka.Enabled,
			TCPStream: cfg.Ingest.TCPStream.Enabled,
			FileTail:  cfg.Ingest.FileTail.Enabled,
		},
		API: apiStatus{Enabled: cfg.API.Enabled, Addr: cfg.API.Addr},
		Evaluation: evaluationStatus{
			ConfirmDelay:     cfg.Evaluation.ConfirmDelay.String(),
			StatusStaleAfter: cfg.Evaluation.StatusStaleAfter.String(),
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStations reports every configured station's effective status. A
// station without any reading yet shows as Offline.
func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	now := time.Now().UTC()
	stale := 0
	list := make([]stationResponse, 0, len(cfg.Stations))
	for _, st := range cfg.Stations {
		resp := s.stationStatus(cfg, strings.ToLower(st.ID), now)
		resp.Lat = st.Lat
		resp.Lng = st.Lng
		if resp.Stale {
			stale++
		}
		list = append(list, resp)
	}
	if s.metrics != nil {
		s.metrics.StaleStations.Set(float64(stale))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stations": list,
		"count":    len(list),
	})
}

func (s *Server) handleStation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := strings.ToLower(strings.TrimPrefix(r.URL.Path, "/stations/"))
	if path == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if id, ok := strings.CutSuffix(path, "/history"); ok {
		s.handleHistory(w, r, id)
		return
	}
	cfg := s.cfg.Get()
	if !s.knownStation(cfg, path) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.stationStatus(cfg, path, time.Now().UTC()))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, id string) {
	cfg := s.cfg.Get()
	if !s.knownStation(cfg, id) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	window := cfg.Evaluation.HistoryStaleAfter
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		window = d
	}
	now := time.Now().UTC()
	points := s.readings.HistoryDurable(r.Context(), id, now.Add(-window), cfg.Evaluation.HistoryLimit)
	stats := s.readings.HistoryStats(id, window, now)
	writeJSON(w, http.StatusOK, map[string]any{
		"station_id": id,
		"window":     window.String(),
		"points":     points,
		"stats":      stats,
		"highest":    s.readings.Highest(id),
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	sinceStr := r.URL.Query().Get("since")
	var list []model.Alert
	if sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.alerts.Since(ts)
	} else {
		list = s.alerts.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

func (s *Server) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"count": s.subs.Count()})
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var req struct {
			PhoneNumber string `json:"phone_number"`
		}
		if err := json.Unmarshal(body, &req); err != nil || strings.TrimSpace(req.PhoneNumber) == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		phone, err := s.subs.Subscribe(r.Context(), req.PhoneNumber)
		if errors.Is(err, subscribers.ErrAlreadySubscribed) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":        "already subscribed",
				"phone_number": phone,
			})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"status":       "subscribed",
			"phone_number": phone,
		})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var req struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	fb, err := s.feedback.Submit(r.Context(), req.Name, req.Email, req.Message)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"status": "received",
		"id":     fb.ID,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	var req struct {
		Target string `json:"target"`
	}
	_ = json.Unmarshal(body, &req)
	target := strings.ToLower(strings.TrimSpace(req.Target))
	if target == "" {
		target = "all"
	}
	switch target {
	case "all":
		s.readings.Clear()
		s.alerts.Clear()
		s.subs.Clear()
	case "readings":
		s.readings.Clear()
	case "alerts":
		s.alerts.Clear()
	case "subscribers":
		s.subs.Clear()
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.monitor != nil {
		s.monitor.Reset()
	}
	s.readings.Clear()
	s.alerts.Clear()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) stationStatus(cfg *config.Config, id string, now time.Time) stationResponse {
	rd, ok := s.readings.Current(id)
	if !ok {
		return stationResponse{EffectiveStatus: model.EffectiveStatus{
			StationID: id,
			Name:      cfg.StationName(id),
			Severity:  model.SeverityOffline,
			Stale:     true,
		}}
	}
	eff := classify.Effective(rd, cfg.Evaluation.StatusStaleAfter, now)
	eff.Name = cfg.StationName(id)
	eff.HighestLevel = s.readings.Highest(id)
	return stationResponse{EffectiveStatus: eff}
}

func (s *Server) knownStation(cfg *config.Config, id string) bool {
	for _, st := range cfg.Stations {
		if strings.EqualFold(st.ID, id) {
			return true
		}
	}
	_, ok := s.readings.Current(id)
	return ok
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
