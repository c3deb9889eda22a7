package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"floodwatch/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:floodwatch.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			station_id TEXT NOT NULL,
			ts TEXT NOT NULL,
			water_level REAL NOT NULL,
			status TEXT NOT NULL,
			lat REAL,
			lng REAL,
			source TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_readings_station_ts ON readings(station_id, ts)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			station_id TEXT NOT NULL,
			severity TEXT NOT NULL,
			prev_severity TEXT NOT NULL,
			water_level REAL NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
		`CREATE TABLE IF NOT EXISTS subscribers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			phone_number TEXT NOT NULL,
			subscribed_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS feedback (
			id TEXT PRIMARY KEY,
			name TEXT,
			email TEXT,
			message TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SaveReading(ctx context.Context, rd model.StationReading) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO readings (station_id, ts, water_level, status, lat, lng, source)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rd.StationID,
		rd.Timestamp.UTC().Format(time.RFC3339Nano),
		rd.WaterLevel,
		rd.RawStatus,
		rd.Lat,
		rd.Lng,
		rd.Source,
	)
	return err
}

func (s *sqliteStore) ListReadings(ctx context.Context, stationID string, since time.Time, limit int) ([]model.HistoryPoint, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, water_level FROM readings
		WHERE station_id = ? AND ts >= ?
		ORDER BY ts DESC LIMIT ?`,
		stationID, since.UTC().Format(time.RFC3339Nano), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.HistoryPoint, 0, limit)
	for rows.Next() {
		var ts string
		var level float64
		if err := rows.Scan(&ts, &level); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			continue
		}
		out = append(out, model.HistoryPoint{Timestamp: parsed, Value: level})
	}
	return out, rows.Err()
}

func (s *sqliteStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (ts, station_id, severity, prev_severity, water_level, title, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		alert.Timestamp.UTC().Format(time.RFC3339Nano),
		alert.StationID,
		alert.Severity.String(),
		alert.PrevSeverity.String(),
		alert.WaterLevel,
		alert.Title,
		alert.Body,
	)
	return err
}

func (s *sqliteStore) SaveSubscriber(ctx context.Context, sub model.Subscriber) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscribers (phone_number, subscribed_at) VALUES (?, ?)`,
		sub.PhoneNumber,
		sub.SubscribedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) ListSubscribers(ctx context.Context) ([]model.Subscriber, error) {
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
		var phone, at string
		if err := rows.Scan(&phone, &at); err != nil {
			return nil, err
		}
		parsed, _ := time.Parse(time.RFC3339Nano, at)
		out = append(out, model.Subscriber{PhoneNumber: phone, SubscribedAt: parsed})
	}
	return out, rows.Err()
}

func (s *sqliteStore) SaveFeedback(ctx context.Context, fb model.Feedback) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (id, name, email, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		fb.ID,
		fb.Name,
		fb.Email,
		fb.Message,
		fb.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}
