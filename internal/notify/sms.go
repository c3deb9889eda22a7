package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"floodwatch/internal/config"
	"floodwatch/internal/model"
	"floodwatch/internal/observability"
)

// SubscriberSource yields the recipient list. It is consulted on every send
// so numbers added while a confirmation window was open are still notified.
type SubscriberSource interface {
	List(ctx context.Context) ([]model.Subscriber, error)
}

// SMSChannel relays one text per subscriber through an HTTP SMS gateway.
type SMSChannel struct {
	relayURL    string
	client      *http.Client
	subscribers SubscriberSource
	stationName func(string) string
	logger      *slog.Logger
	metrics     *observability.Metrics
}

type smsRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

func NewSMSChannel(cfg config.SMSConfig, subs SubscriberSource, stationName func(string) string, logger *slog.Logger, metrics *observability.Metrics) *SMSChannel {
	if stationName == nil {
		stationName = func(id string) string { return id }
	}
	return &SMSChannel{
		relayURL:    cfg.RelayURL,
		client:      &http.Client{Timeout: cfg.Timeout},
		subscribers: subs,
		stationName: stationName,
		logger:      logger,
		metrics:     metrics,
	}
}

func (c *SMSChannel) Name() string { return "sms" }

// Send texts every current subscriber. A failure for one recipient does not
// stop delivery to the rest; the summary error reports how many failed.
func (c *SMSChannel) Send(ctx context.Context, alert model.Alert) error {
	subs, err := c.subscribers.List(ctx)
	if err != nil {
		return fmt.Errorf("list subscribers: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}
	message := c.composeMessage(alert)
	failed := 0
	for _, sub := range subs {
		if err := c.sendOne(ctx, sub.PhoneNumber, message); err != nil {
			failed++
			if c.logger != nil {
				c.logger.Warn("sms send failed", "to", sub.PhoneNumber, "err", err)
			}
			if c.metrics != nil {
				c.metrics.SMSRecipients.WithLabelValues("error").Inc()
			}
			continue
		}
		if c.metrics != nil {
			c.metrics.SMSRecipients.WithLabelValues("success").Inc()
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sends failed", failed, len(subs))
	}
	return nil
}

func (c *SMSChannel) composeMessage(alert model.Alert) string {
	return fmt.Sprintf(
		"FLOOD ALERT\n\nStation: %s\nStatus: %s\nWater Level: %.2f m\nTime: %s\n\nPlease take necessary precautions.",
		c.stationName(alert.StationID),
		alert.Severity.String(),
		alert.WaterLevel,
		alert.Timestamp.Format("Jan 2, 2006 3:04 PM"),
	)
}

func (c *SMSChannel) sendOne(ctx context.Context, to, message string) error {
	body, err := json.Marshal(smsRequest{To: to, Message: message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.relayURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms relay returned %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
