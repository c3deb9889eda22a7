// Package ingest accepts station readings from the supported transports,
// parses them into a common shape, and feeds them to the readings store
// through a bounded channel.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"floodwatch/internal/config"
	"floodwatch/internal/model"
	"floodwatch/internal/observability"
	"floodwatch/internal/readings"
)

func SendNonBlocking(ctx context.Context, out chan<- model.StationReading, rd model.StationReading, logger *slog.Logger, metrics *observability.Metrics) bool {
	select {
	case out <- rd:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("reading channel full, dropping reading", "station", rd.StationID, "timestamp", rd.Timestamp)
		}
		if metrics != nil {
			metrics.ReadingsDropped.Inc()
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Pump drains the ingest channel into the readings store, discarding
// duplicates seen within the configured dedupe window.
func Pump(ctx context.Context, in <-chan model.StationReading, store *readings.Store, cfg *config.Manager, dedupe *DedupeCache, logger *slog.Logger, metrics *observability.Metrics) {
	go func() {
		for {
			select {
			case rd := <-in:
				window := cfg.Get().Ingest.DedupeWindow
				if dedupe != nil && window > 0 && dedupe.Seen(readingKey(rd), time.Now().UTC(), window) {
					if metrics != nil {
						metrics.ReadingsDeduped.Inc()
					}
					continue
				}
				if metrics != nil {
					metrics.ReadingsIngested.Inc()
				}
				store.SetCurrent(ctx, rd)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func location(cfg *config.Config) *time.Location {
	loc, err := time.LoadLocation(cfg.Ingest.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
