package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floodwatch/internal/alerts"
	"floodwatch/internal/config"
	"floodwatch/internal/model"
	"floodwatch/internal/normalize"
	"floodwatch/internal/notify"
	"floodwatch/internal/readings"
	"floodwatch/internal/subscribers"
)

type captureSink struct {
	mu     sync.Mutex
	alerts []model.Alert
}

func (c *captureSink) Dispatch(_ context.Context, alert model.Alert) {
	c.mu.Lock()
	c.alerts = append(c.alerts, alert)
	c.mu.Unlock()
}

func (c *captureSink) list() []model.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Alert, len(c.alerts))
	copy(out, c.alerts)
	return out
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Stations = []config.StationConfig{{ID: "burgos", Name: "Burgos Bridge"}}
	cfg.Evaluation.ConfirmDelay = 30 * time.Second
	cfg.Evaluation.StatusStaleAfter = 2 * time.Hour
	return cfg
}

type fixture struct {
	clock    *clockwork.FakeClock
	readings *readings.Store
	sink     *captureSink
	monitor  *Monitor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 12, 6, 0, 0, 0, time.UTC))
	rds := readings.NewStore(100, nil, nil)
	sink := &captureSink{}
	m := NewMonitor(testConfig(), rds, sink, alerts.NewStore(100), nil, clock, nil, nil)
	return &fixture{clock: clock, readings: rds, sink: sink, monitor: m}
}

func (f *fixture) observe(status string) {
	rd := model.StationReading{
		StationID:  "burgos",
		WaterLevel: 4.2,
		RawStatus:  status,
		Timestamp:  f.clock.Now(),
	}
	f.readings.SetCurrent(context.Background(), rd)
	f.monitor.OnReading(rd)
}

func waitAlerts(t *testing.T, sink *captureSink, n int) []model.Alert {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(sink.list()) >= n
	}, time.Second, time.Millisecond, "expected %d alerts", n)
	return sink.list()
}

func TestFirstReadingConfirmsAfterDelay(t *testing.T) {
	f := newFixture(t)
	f.observe("Normal")
	require.True(t, f.monitor.Pending("burgos"))
	assert.Empty(t, f.sink.list())

	f.clock.Advance(30 * time.Second)
	got := waitAlerts(t, f.sink, 1)
	assert.Equal(t, model.SeverityNormal, got[0].Severity)
	assert.Equal(t, model.SeverityUnknown, got[0].PrevSeverity)
	assert.Equal(t, "burgos", got[0].StationID)
	assert.Contains(t, got[0].Body, "Burgos Bridge")

	baseline, ok := f.monitor.Baseline("burgos")
	require.True(t, ok)
	assert.Equal(t, model.SeverityNormal, baseline)
}

func TestRevertWithinDelaySuppressesAlert(t *testing.T) {
	f := newFixture(t)
	f.observe("Normal")
	f.clock.Advance(30 * time.Second)
	waitAlerts(t, f.sink, 1)

	f.observe("Critical")
	f.clock.Advance(10 * time.Second)
	f.observe("Normal")
	assert.False(t, f.monitor.Pending("burgos"))

	f.clock.Advance(time.Minute)
	assert.Len(t, waitAlerts(t, f.sink, 1), 1)
}

func TestEscalationSupersedesPendingChange(t *testing.T) {
	f := newFixture(t)
	f.observe("Normal")
	f.clock.Advance(5 * time.Second)
	f.observe("Critical")

	f.clock.Advance(30 * time.Second)
	got := waitAlerts(t, f.sink, 1)
	require.Len(t, got, 1)
	assert.Equal(t, model.SeverityCritical, got[0].Severity)

	// the superseded timer never fires later
	f.clock.Advance(time.Minute)
	assert.Len(t, f.sink.list(), 1)
}

func TestDuplicateReadingDoesNotRestartTimer(t *testing.T) {
	f := newFixture(t)
	f.observe("Warning")
	f.clock.Advance(20 * time.Second)
	f.observe("Warning")

	// the original timer is still armed from the first observation
	f.clock.Advance(10 * time.Second)
	got := waitAlerts(t, f.sink, 1)
	assert.Equal(t, model.SeverityWarning, got[0].Severity)
}

func TestConfirmUsesReadingAtFireTime(t *testing.T) {
	f := newFixture(t)
	f.observe("Normal")
	f.clock.Advance(30 * time.Second)
	waitAlerts(t, f.sink, 1)

	f.observe("Warning")
	f.clock.Advance(10 * time.Second)
	// escalates further while the Warning confirmation is pending; same
	// timer, but the alert carries the status in effect when it fires
	f.readings.SetCurrent(context.Background(), model.StationReading{
		StationID:  "burgos",
		WaterLevel: 5.1,
		RawStatus:  "Critical",
		Timestamp:  f.clock.Now(),
	})
	f.monitor.OnReading(model.StationReading{
		StationID:  "burgos",
		WaterLevel: 5.1,
		RawStatus:  "Critical",
		Timestamp:  f.clock.Now(),
	})

	f.clock.Advance(30 * time.Second)
	got := waitAlerts(t, f.sink, 2)
	assert.Equal(t, model.SeverityCritical, got[1].Severity)
	assert.Equal(t, model.SeverityNormal, got[1].PrevSeverity)
	assert.Equal(t, 5.1, got[1].WaterLevel)
}

func TestStaleReadingConfirmsOffline(t *testing.T) {
	f := newFixture(t)
	rd := model.StationReading{
		StationID:  "burgos",
		WaterLevel: 3.0,
		RawStatus:  "Normal",
		Timestamp:  f.clock.Now().Add(-3 * time.Hour),
	}
	f.readings.SetCurrent(context.Background(), rd)
	f.monitor.OnReading(rd)

	f.clock.Advance(30 * time.Second)
	got := waitAlerts(t, f.sink, 1)
	assert.Equal(t, model.SeverityOffline, got[0].Severity)
	assert.Zero(t, got[0].WaterLevel)
}

func TestCancelStationIdempotent(t *testing.T) {
	f := newFixture(t)
	f.observe("Critical")
	require.True(t, f.monitor.Pending("burgos"))

	f.monitor.CancelStation("burgos")
	f.monitor.CancelStation("burgos")
	f.monitor.CancelStation("never-seen")
	assert.False(t, f.monitor.Pending("burgos"))

	f.clock.Advance(time.Minute)
	assert.Empty(t, f.sink.list())
}

func TestResetClearsBaselines(t *testing.T) {
	f := newFixture(t)
	f.observe("Normal")
	f.clock.Advance(30 * time.Second)
	waitAlerts(t, f.sink, 1)

	f.monitor.Reset()
	_, ok := f.monitor.Baseline("burgos")
	assert.False(t, ok)

	// after a reset the same status is treated as a fresh change
	f.observe("Normal")
	f.clock.Advance(30 * time.Second)
	got := waitAlerts(t, f.sink, 2)
	assert.Equal(t, model.SeverityUnknown, got[1].PrevSeverity)
}

func TestMixedCaseStationConfigStillAlerts(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 12, 6, 0, 0, 0, time.UTC))
	rds := readings.NewStore(100, nil, nil)
	sink := &captureSink{}
	cfg := config.DefaultConfig()
	cfg.Stations = []config.StationConfig{{ID: "Burgos", Name: "Burgos Bridge"}}
	cfg.Evaluation.ConfirmDelay = 30 * time.Second
	cfg.Evaluation.StatusStaleAfter = 2 * time.Hour
	m := NewMonitor(cfg, rds, sink, alerts.NewStore(100), nil, clock, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	// gateways send mixed-case ids too; normalization lowercases them
	rd, err := normalize.Reading(normalize.ReadingFields{
		StationID:  "Burgos",
		WaterLevel: "4.2",
		Status:     "Critical",
		Timestamp:  clock.Now().Format(time.RFC3339),
	}, time.UTC)
	require.NoError(t, err)
	rds.SetCurrent(context.Background(), rd)

	require.Eventually(t, func() bool {
		return m.Pending("burgos")
	}, time.Second, time.Millisecond)

	clock.BlockUntil(1)
	clock.Advance(30 * time.Second)
	got := waitAlerts(t, sink, 1)
	assert.Equal(t, "burgos", got[0].StationID)
	assert.Equal(t, model.SeverityCritical, got[0].Severity)
	assert.Contains(t, got[0].Body, "Burgos Bridge")
}

func TestSubscriberAddedDuringConfirmWindowIsNotified(t *testing.T) {
	var mu sync.Mutex
	var recipients []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			To string `json:"to"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		recipients = append(recipients, req.To)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 12, 6, 0, 0, 0, time.UTC))
	rds := readings.NewStore(100, nil, nil)
	subs := subscribers.NewStore("63", nil, clock, nil)
	sms := notify.NewSMSChannel(config.SMSConfig{RelayURL: srv.URL, Timeout: time.Second}, subs, nil, nil, nil)
	dispatcher := notify.NewDispatcher([]notify.Channel{sms}, nil, nil)
	m := NewMonitor(testConfig(), rds, dispatcher, alerts.NewStore(100), nil, clock, nil, nil)

	rd := model.StationReading{
		StationID:  "burgos",
		WaterLevel: 4.2,
		RawStatus:  "Critical",
		Timestamp:  clock.Now(),
	}
	rds.SetCurrent(context.Background(), rd)
	m.OnReading(rd)
	require.True(t, m.Pending("burgos"))

	// signup lands while the confirmation timer is still running
	clock.Advance(10 * time.Second)
	_, err := subs.Subscribe(context.Background(), "09123456789")
	require.NoError(t, err)

	clock.Advance(20 * time.Second)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(recipients) == 1 && recipients[0] == "+639123456789"
	}, time.Second, time.Millisecond)
}

func TestStartDeliversThroughWatch(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.monitor.Start(ctx)

	f.readings.SetCurrent(context.Background(), model.StationReading{
		StationID:  "burgos",
		WaterLevel: 4.2,
		RawStatus:  "Alert",
		Timestamp:  f.clock.Now(),
	})
	require.Eventually(t, func() bool {
		return f.monitor.Pending("burgos")
	}, time.Second, time.Millisecond)

	f.clock.BlockUntil(1)
	f.clock.Advance(30 * time.Second)
	got := waitAlerts(t, f.sink, 1)
	assert.Equal(t, model.SeverityAlert, got[0].Severity)
}
