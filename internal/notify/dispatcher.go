// Package notify fans confirmed status-change alerts out to the configured
// delivery channels. Channel failures are logged and counted; they never
// propagate back into the evaluation loop.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"floodwatch/internal/model"
	"floodwatch/internal/observability"
)

// Channel delivers one alert to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert model.Alert) error
}

type Dispatcher struct {
	channels []Channel
	logger   *slog.Logger
	metrics  *observability.Metrics
}

func NewDispatcher(channels []Channel, logger *slog.Logger, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{channels: channels, logger: logger, metrics: metrics}
}

// Dispatch sends the alert to every channel concurrently and waits for all of
// them. A slow or failing channel does not block the others.
func (d *Dispatcher) Dispatch(ctx context.Context, alert model.Alert) {
	if d.metrics != nil {
		d.metrics.AlertsDispatched.Inc()
	}
	var wg sync.WaitGroup
	for _, ch := range d.channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			if err := ch.Send(ctx, alert); err != nil {
				if d.logger != nil {
					d.logger.Error("channel send failed",
						"channel", ch.Name(),
						"station", alert.StationID,
						"err", err,
					)
				}
				if d.metrics != nil {
					d.metrics.ChannelSends.WithLabelValues(ch.Name(), "error").Inc()
				}
				return
			}
			if d.logger != nil {
				d.logger.Info("alert delivered",
					"channel", ch.Name(),
					"station", alert.StationID,
					"severity", alert.Severity,
				)
			}
			if d.metrics != nil {
				d.metrics.ChannelSends.WithLabelValues(ch.Name(), "success").Inc()
			}
		}(ch)
	}
	wg.Wait()
}
