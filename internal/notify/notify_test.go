package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floodwatch/internal/config"
	"floodwatch/internal/model"
	"floodwatch/internal/observability"
)

func sampleAlert() model.Alert {
	return model.Alert{
		Timestamp:    time.Date(2026, 8, 12, 6, 30, 0, 0, time.UTC),
		StationID:    "burgos",
		Severity:     model.SeverityCritical,
		PrevSeverity: model.SeverityNormal,
		WaterLevel:   4.2,
		Title:        "Flood Warning: Burgos Bridge",
		Body:         "Burgos Bridge is now at Critical (4.20 m).",
	}
}

type fakeChannel struct {
	name string
	err  error
	mu   sync.Mutex
	sent []model.Alert
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(_ context.Context, alert model.Alert) error {
	f.mu.Lock()
	f.sent = append(f.sent, alert)
	f.mu.Unlock()
	return f.err
}

type staticSubs struct {
	list []model.Subscriber
	err  error
}

func (s staticSubs) List(context.Context) ([]model.Subscriber, error) { return s.list, s.err }

func TestDispatcherFansOutToAllChannels(t *testing.T) {
	ok := &fakeChannel{name: "a"}
	bad := &fakeChannel{name: "b", err: errors.New("boom")}
	other := &fakeChannel{name: "c"}
	d := NewDispatcher([]Channel{ok, bad, other}, nil, observability.NewMetricsForTesting())

	d.Dispatch(context.Background(), sampleAlert())

	assert.Len(t, ok.sent, 1)
	assert.Len(t, bad.sent, 1)
	assert.Len(t, other.sent, 1)
}

func TestPushChannelRequestShape(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 12, 6, 30, 0, 0, time.UTC))
	ch := NewPushChannel(config.PushConfig{
		URL:     srv.URL,
		AppID:   "app-123",
		APIKey:  "key-456",
		Timeout: time.Second,
	}, clock)

	require.NoError(t, ch.Send(context.Background(), sampleAlert()))

	assert.Equal(t, "Basic key-456", auth)
	assert.Equal(t, "app-123", got["app_id"])
	assert.Equal(t, []any{"Subscribed Users"}, got["included_segments"])
	assert.Equal(t, map[string]any{"en": "Flood Warning: Burgos Bridge"}, got["headings"])
	assert.Contains(t, got["web_push_topic"], "flood-warning-burgos-")
}

func TestPushChannelNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad app id", http.StatusBadRequest)
	}))
	defer srv.Close()

	ch := NewPushChannel(config.PushConfig{URL: srv.URL, AppID: "x", Timeout: time.Second}, nil)
	err := ch.Send(context.Background(), sampleAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestSMSChannelSendsToEverySubscriber(t *testing.T) {
	var mu sync.Mutex
	var recipients []string
	var messages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req smsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		recipients = append(recipients, req.To)
		messages = append(messages, req.Message)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	subs := staticSubs{list: []model.Subscriber{
		{PhoneNumber: "+639111111111"},
		{PhoneNumber: "+639222222222"},
	}}
	names := func(id string) string { return "Burgos Bridge" }
	ch := NewSMSChannel(config.SMSConfig{RelayURL: srv.URL, Timeout: time.Second}, subs, names, nil, observability.NewMetricsForTesting())

	require.NoError(t, ch.Send(context.Background(), sampleAlert()))

	assert.ElementsMatch(t, []string{"+639111111111", "+639222222222"}, recipients)
	require.NotEmpty(t, messages)
	assert.Contains(t, messages[0], "FLOOD ALERT")
	assert.Contains(t, messages[0], "Burgos Bridge")
	assert.Contains(t, messages[0], "Critical")
	assert.Contains(t, messages[0], "4.20 m")
}

func TestSMSChannelPartialFailure(t *testing.T) {
	var mu sync.Mutex
	var attempts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req smsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		attempts = append(attempts, req.To)
		mu.Unlock()
		if req.To == "+639222222222" {
			http.Error(w, "carrier rejected", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	subs := staticSubs{list: []model.Subscriber{
		{PhoneNumber: "+639111111111"},
		{PhoneNumber: "+639222222222"},
		{PhoneNumber: "+639333333333"},
	}}
	ch := NewSMSChannel(config.SMSConfig{RelayURL: srv.URL, Timeout: time.Second}, subs, nil, nil, observability.NewMetricsForTesting())

	err := ch.Send(context.Background(), sampleAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3 sends failed")
	// the failing recipient did not stop the rest
	assert.Len(t, attempts, 3)
}

func TestSMSChannelNoSubscribers(t *testing.T) {
	ch := NewSMSChannel(config.SMSConfig{RelayURL: "http://unused", Timeout: time.Second}, staticSubs{}, nil, nil, nil)
	assert.NoError(t, ch.Send(context.Background(), sampleAlert()))
}
