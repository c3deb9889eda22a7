package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/jonboulle/clockwork"

	"floodwatch/internal/config"
	"floodwatch/internal/model"
)

// PushChannel posts web push notifications to a OneSignal-compatible API.
type PushChannel struct {
	url    string
	appID  string
	apiKey string
	client *http.Client
	clock  clockwork.Clock
}

type pushRequest struct {
	AppID            string            `json:"app_id"`
	IncludedSegments []string          `json:"included_segments"`
	Headings         map[string]string `json:"headings"`
	Contents         map[string]string `json:"contents"`
	WebPushTopic     string            `json:"web_push_topic"`
}

func NewPushChannel(cfg config.PushConfig, clock clockwork.Clock) *PushChannel {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PushChannel{
		url:    cfg.URL,
		appID:  cfg.AppID,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: cfg.Timeout},
		clock:  clock,
	}
}

func (c *PushChannel) Name() string { return "push" }

func (c *PushChannel) Send(ctx context.Context, alert model.Alert) error {
	// distinct topic per alert so the browser stacks notifications instead
	// of replacing earlier ones
	topic := fmt.Sprintf("flood-warning-%s-%d", alert.StationID, c.clock.Now().UnixMilli())
	body, err := json.Marshal(pushRequest{
		AppID:            c.appID,
		IncludedSegments: []string{"Subscribed Users"},
		Headings:         map[string]string{"en": alert.Title},
		Contents:         map[string]string{"en": alert.Body},
		WebPushTopic:     topic,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Basic "+c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push api returned %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
