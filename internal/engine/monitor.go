// Package engine watches station readings and raises alerts when a station's
// effective status changes and the change survives a confirmation delay.
// Transient flips that revert within the delay never produce an alert.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"floodwatch/internal/alerts"
	"floodwatch/internal/classify"
	"floodwatch/internal/config"
	"floodwatch/internal/model"
	"floodwatch/internal/observability"
	"floodwatch/internal/readings"
	"floodwatch/internal/storage"
)

// Sink receives confirmed status-change alerts.
type Sink interface {
	Dispatch(ctx context.Context, alert model.Alert)
}

type Monitor struct {
	logger   *slog.Logger
	metrics  *observability.Metrics
	alerts   *alerts.Store
	store    storage.Store
	readings *readings.Store
	sink     Sink
	clock    clockwork.Clock
	cfg      atomic.Value

	mu       sync.Mutex
	stations map[string]*stationState
	subs     map[string]*readings.Subscription
	ctx      context.Context
}

type stationState struct {
	baseline    model.Severity
	hasBaseline bool
	timer       clockwork.Timer
	pending     model.Severity
	gen         uint64
}

func NewMonitor(cfg *config.Config, rds *readings.Store, sink Sink, alertsStore *alerts.Store, store storage.Store, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Monitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	m := &Monitor{
		logger:   logger,
		metrics:  metrics,
		alerts:   alertsStore,
		store:    store,
		readings: rds,
		sink:     sink,
		clock:    clock,
		stations: make(map[string]*stationState),
		subs:     make(map[string]*readings.Subscription),
	}
	m.cfg.Store(cfg)
	return m
}

func (m *Monitor) UpdateConfig(cfg *config.Config) {
	m.cfg.Store(cfg)
	m.mu.Lock()
	ctx := m.ctx
	m.mu.Unlock()
	if ctx != nil {
		m.watchConfigured(ctx, cfg)
	}
}

func (m *Monitor) config() *config.Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

// Start subscribes to every configured station and evaluates readings as they
// arrive. It returns immediately; evaluation runs until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()
	m.watchConfigured(ctx, m.config())
	go func() {
		<-ctx.Done()
		m.Stop()
	}()
}

func (m *Monitor) watchConfigured(ctx context.Context, cfg *config.Config) {
	for _, st := range cfg.Stations {
		// readings arrive keyed by lowercased station id
		id := strings.ToLower(st.ID)
		m.mu.Lock()
		_, watching := m.subs[id]
		var sub *readings.Subscription
		if !watching {
			sub = m.readings.Watch(id)
			m.subs[id] = sub
		}
		m.mu.Unlock()
		if sub == nil {
			continue
		}
		go func(sub *readings.Subscription) {
			for {
				select {
				case rd, ok := <-sub.C:
					if !ok {
						return
					}
					m.OnReading(rd)
				case <-ctx.Done():
					return
				}
			}
		}(sub)
	}
}

// OnReading classifies the reading and schedules or cancels a confirmation
// timer. Alerts are never raised here; only a timer that fires with the
// change still in effect raises one.
func (m *Monitor) OnReading(rd model.StationReading) {
	cfg := m.config()
	now := m.clock.Now().UTC()
	status := classify.Classify(rd.RawStatus, classify.IsStale(rd.Timestamp, cfg.Evaluation.StatusStaleAfter, now))

	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.station(rd.StationID)

	if st.hasBaseline && status == st.baseline {
		m.cancelLocked(st)
		return
	}
	if st.timer != nil && st.pending == status {
		return
	}
	m.cancelLocked(st)
	st.gen++
	st.pending = status
	gen := st.gen
	stationID := rd.StationID
	st.timer = m.clock.AfterFunc(cfg.Evaluation.ConfirmDelay, func() {
		m.confirm(stationID, gen)
	})
	if m.metrics != nil {
		m.metrics.PendingConfirms.Inc()
	}
	if m.logger != nil {
		m.logger.Debug("status change pending confirmation",
			"station", stationID,
			"status", status,
			"delay", cfg.Evaluation.ConfirmDelay,
		)
	}
}

// confirm re-reads the station at fire time. The reading and the subscriber
// roster may both have changed during the delay; the alert reflects the state
// now, not the state when the timer was armed.
func (m *Monitor) confirm(stationID string, gen uint64) {
	cfg := m.config()
	now := m.clock.Now().UTC()

	m.mu.Lock()
	st, ok := m.stations[stationID]
	if !ok || st.gen != gen {
		m.mu.Unlock()
		return
	}
	st.timer = nil
	if m.metrics != nil {
		m.metrics.PendingConfirms.Dec()
	}

	rd, has := m.readings.Current(stationID)
	if !has {
		m.mu.Unlock()
		return
	}
	status := classify.Classify(rd.RawStatus, classify.IsStale(rd.Timestamp, cfg.Evaluation.StatusStaleAfter, now))
	if st.hasBaseline && status == st.baseline {
		m.mu.Unlock()
		return
	}
	prev := st.baseline
	if !st.hasBaseline {
		prev = model.SeverityUnknown
	}
	st.baseline = status
	st.hasBaseline = true
	m.mu.Unlock()

	level := rd.WaterLevel
	if status == model.SeverityOffline {
		level = 0
	}
	alert := model.Alert{
		Timestamp:    now,
		StationID:    stationID,
		Severity:     status,
		PrevSeverity: prev,
		WaterLevel:   level,
		Title:        alertTitle(cfg.StationName(stationID), status),
		Body:         alertBody(cfg.StationName(stationID), status, prev, level),
	}
	if m.logger != nil {
		m.logger.Warn("status change confirmed",
			"station", stationID,
			"severity", status,
			"previous", prev,
			"water_level", level,
		)
	}
	if m.alerts != nil {
		m.alerts.Add(alert)
	}
	if m.store != nil {
		if err := m.store.SaveAlert(context.Background(), alert); err != nil && m.logger != nil {
			m.logger.Warn("persist alert failed", "station", stationID, "err", err)
		}
	}
	if m.sink != nil {
		m.sink.Dispatch(context.Background(), alert)
	}
}

// CancelStation drops any pending confirmation for a station. Safe to call
// when nothing is pending.
func (m *Monitor) CancelStation(stationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.stations[stationID]; ok {
		m.cancelLocked(st)
	}
}

// Pending reports whether a confirmation timer is armed for the station.
func (m *Monitor) Pending(stationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stations[stationID]
	return ok && st.timer != nil
}

// Baseline returns the last confirmed status for a station.
func (m *Monitor) Baseline(stationID string) (model.Severity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stations[stationID]
	if !ok || !st.hasBaseline {
		return model.SeverityUnknown, false
	}
	return st.baseline, true
}

// Reset clears all baselines and pending timers.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.stations {
		m.cancelLocked(st)
	}
	m.stations = make(map[string]*stationState)
}

// Stop cancels subscriptions and pending timers. The monitor cannot be
// restarted afterwards.
func (m *Monitor) Stop() {
	m.mu.Lock()
	subs := make([]*readings.Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	m.subs = make(map[string]*readings.Subscription)
	for _, st := range m.stations {
		m.cancelLocked(st)
	}
	m.mu.Unlock()
	for _, sub := range subs {
		sub.Cancel()
	}
}

// caller must hold m.mu
func (m *Monitor) cancelLocked(st *stationState) {
	if st.timer == nil {
		return
	}
	st.timer.Stop()
	st.timer = nil
	st.gen++
	if m.metrics != nil {
		m.metrics.PendingConfirms.Dec()
	}
}

// caller must hold m.mu
func (m *Monitor) station(id string) *stationState {
	st, ok := m.stations[id]
	if !ok {
		st = &stationState{}
		m.stations[id] = st
	}
	return st
}

func alertTitle(name string, severity model.Severity) string {
	if severity >= model.SeverityWarning {
		return fmt.Sprintf("Flood Warning: %s", name)
	}
	return fmt.Sprintf("Flood Update: %s", name)
}

func alertBody(name string, severity, prev model.Severity, level float64) string {
	return fmt.Sprintf("%s is now at %s (%.2f m), previously %s.", name, severity, level, prev)
}
