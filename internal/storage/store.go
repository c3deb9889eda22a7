package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"floodwatch/internal/config"
	"floodwatch/internal/model"
)

type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveReading(ctx context.Context, rd model.StationReading) error
	ListReadings(ctx context.Context, stationID string, since time.Time, limit int) ([]model.HistoryPoint, error)
	SaveAlert(ctx context.Context, alert model.Alert) error
	SaveSubscriber(ctx context.Context, sub model.Subscriber) error
	ListSubscribers(ctx context.Context) ([]model.Subscriber, error)
	SaveFeedback(ctx context.Context, fb model.Feedback) error
}

// NewStore returns nil when storage is disabled; callers guard on nil.
func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
