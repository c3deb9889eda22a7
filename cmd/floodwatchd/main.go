package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"floodwatch/internal/alerts"
	"floodwatch/internal/api"
	"floodwatch/internal/config"
	"floodwatch/internal/engine"
	"floodwatch/internal/feedback"
	"floodwatch/internal/ingest"
	"floodwatch/internal/logging"
	"floodwatch/internal/model"
	"floodwatch/internal/notify"
	"floodwatch/internal/observability"
	"floodwatch/internal/readings"
	"floodwatch/internal/storage"
	"floodwatch/internal/subscribers"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "floodwatch.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("floodwatchd", version)
		return
	}

	manager, err := config.NewManager(config.ResolvePath(*configPath))
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "err", err)
		os.Exit(1)
	}
	cfg := manager.Get()
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	logger.Info("starting floodwatchd",
		"version", version,
		"config", manager.Path(),
		"stations", len(cfg.Stations),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("failed to open storage", "err", err)
		os.Exit(1)
	}
	if store != nil {
		if err := store.Init(ctx); err != nil {
			logger.Error("failed to init storage", "err", err)
			os.Exit(1)
		}
		logger.Info("storage enabled", "driver", cfg.Storage.Driver)
	}

	readingsStore := readings.NewStore(cfg.Evaluation.HistoryLimit, store, logger)
	alertsStore := alerts.NewStore(cfg.Alerts.StoreLimit)
	subsStore := subscribers.NewStore(cfg.Notify.SMS.CountryCode, store, clock, logger)
	feedbackStore := feedback.NewStore(0, store, clock, logger)
	if store != nil {
		if err := subsStore.LoadPersisted(ctx); err != nil {
			logger.Warn("failed to load persisted subscribers", "err", err)
		} else {
			logger.Info("subscribers loaded", "count", subsStore.Count())
		}
	}

	var channels []notify.Channel
	if cfg.Notify.Push.Enabled {
		channels = append(channels, notify.NewPushChannel(cfg.Notify.Push, clock))
		logger.Info("push channel enabled", "url", cfg.Notify.Push.URL)
	}
	if cfg.Notify.SMS.Enabled {
		channels = append(channels, notify.NewSMSChannel(cfg.Notify.SMS, subsStore, cfg.StationName, logger, metrics))
		logger.Info("sms channel enabled", "relay", cfg.Notify.SMS.RelayURL)
	}
	if len(channels) == 0 {
		logger.Warn("no notification channels enabled, alerts are log-only")
	}
	dispatcher := notify.NewDispatcher(channels, logger, metrics)

	monitor := engine.NewMonitor(cfg, readingsStore, dispatcher, alertsStore, store, clock, logger, metrics)
	monitor.Start(ctx)

	in := make(chan model.StationReading, cfg.Ingest.ChannelBuffer)
	parser := ingest.NewParser()
	ingest.Pump(ctx, in, readingsStore, manager, ingest.NewDedupeCache(), logger, metrics)
	ingest.StartREST(ctx, manager, in, logger, metrics)
	ingest.StartKafka(ctx, manager, parser, in, logger, metrics)
	ingest.StartTCPStream(ctx, manager, parser, in, logger, metrics)
	ingest.StartFileTail(ctx, manager, parser, in, logger, metrics)

	api.Start(ctx, manager, readingsStore, alertsStore, subsStore, feedbackStore, monitor, logger, metrics, version)

	go manager.Watch(3*time.Second,
		func(next *config.Config) {
			logger.Info("config reloaded", "stations", len(next.Stations))
			monitor.UpdateConfig(next)
		},
		func(err error) {
			logger.Warn("config reload failed", "err", err)
		},
		ctx.Done(),
	)

	<-ctx.Done()
	logger.Info("shutting down")
	monitor.Stop()
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Warn("storage close error", "err", err)
		}
	}
	logger.Info("shutdown complete")
}
