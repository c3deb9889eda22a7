package ingest

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"floodwatch/internal/config"
	"floodwatch/internal/model"
	"floodwatch/internal/normalize"
	"floodwatch/internal/observability"
)

func StartKafka(ctx context.Context, cfg *config.Manager, parser *Parser, out chan<- model.StationReading, logger *slog.Logger, metrics *observability.Metrics) {
	current := cfg.Get().Ingest.Kafka
	if !current.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", current.Brokers, "topic", current.Topic, "group_id", current.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  current.Brokers,
		Topic:    current.Topic,
		GroupID:  current.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("kafka read error", "err", err)
				}
				continue
			}
			fields, err := parser.ParseLine(string(m.Value))
			if err != nil || fields == nil {
				continue
			}
			rd, err := normalize.Reading(*fields, location(cfg.Get()))
			if err != nil {
				if logger != nil {
					logger.Warn("kafka reading rejected", "err", err)
				}
				continue
			}
			rd.Source = "kafka"
			SendNonBlocking(ctx, out, rd, logger, metrics)
		}
	}()
}
