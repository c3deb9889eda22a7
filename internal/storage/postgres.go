package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"floodwatch/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/floodwatch?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS readings (
			id BIGSERIAL PRIMARY KEY,
			station_id TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			water_level DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL,
			lat DOUBLE PRECISION,
			lng DOUBLE PRECISION,
			source TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_readings_station_ts ON readings(station_id, ts)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			station_id TEXT NOT NULL,
			severity TEXT NOT NULL,
			prev_severity TEXT NOT NULL,
			water_level DOUBLE PRECISION NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
		`CREATE TABLE IF NOT EXISTS subscribers (
			id BIGSERIAL PRIMARY KEY,
			phone_number TEXT NOT NULL,
			subscribed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS feedback (
			id TEXT PRIMARY KEY,
			name TEXT,
			email TEXT,
			message TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) SaveReading(ctx context.Context, rd model.StationReading) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO readings (station_id, ts, water_level, status, lat, lng, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rd.StationID,
		rd.Timestamp.UTC(),
		rd.WaterLevel,
		rd.RawStatus,
		rd.Lat,
		rd.Lng,
		rd.Source,
	)
	return err
}

func (s *postgresStore) ListReadings(ctx context.Context, stationID string, since time.Time, limit int) ([]model.HistoryPoint, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, water_level FROM readings
		WHERE station_id = $1 AND ts >= $2
		ORDER BY ts DESC LIMIT $3`,
		stationID, since.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.HistoryPoint, 0, limit)
	for rows.Next() {
		var ts time.Time
		var level float64
		if err := rows.Scan(&ts, &level); err != nil {
			return nil, err
		}
		out = append(out, model.HistoryPoint{Timestamp: ts, Value: level})
	}
	return out, rows.Err()
}

func (s *postgresStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (ts, station_id, severity, prev_severity, water_level, title, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		alert.Timestamp.UTC(),
		alert.StationID,
		alert.Severity.String(),
		alert.PrevSeverity.String(),
		alert.WaterLevel,
		alert.Title,
		alert.Body,
	)
	return err
}

func (s *postgresStore) SaveSubscriber(ctx context.Context, sub model.Subscriber) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscribers (phone_number, subscribed_at) VALUES ($1, $2)`,
		sub.PhoneNumber,
		sub.SubscribedAt.UTC(),
	)
	return err
}

func (s *postgresStore) ListSubscribers(ctx context.Context) ([]model.Subscriber, error) {
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT phone_number, subscribed_at FROM subscribers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Subscriber
	for rows.Next() {
		var sub model.Subscriber
		if err := rows.Scan(&sub.PhoneNumber, &sub.SubscribedAt); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *postgresStore) SaveFeedback(ctx context.Context, fb model.Feedback) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (id, name, email, message, created_at) VALUES ($1, $2, $3, $4, $5)`,
		fb.ID,
		fb.Name,
		fb.Email,
		fb.Message,
		fb.CreatedAt.UTC(),
	)
	return err
}
