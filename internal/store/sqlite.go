package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/agro-solar-web/internal/domain"
	"github.com/ashureev/agro-solar-web/internal/shared"
	_ "modernc.org/sqlite"
)

const defaultListLimit = 20

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS devices (
		device_id TEXT PRIMARY KEY,
		first_seen_at INTEGER NOT NULL,
		last_seen_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_devices_last_seen ON devices(last_seen_at);

	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		content_type TEXT NOT NULL,
		size INTEGER NOT NULL,
		prediction TEXT,
		message TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analyses_device ON analyses(device_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetDevice retrieves a device by its ID.
func (s *SQLiteStore) GetDevice(ctx context.Context, deviceID string) (*domain.Device, error) {
	query := `SELECT device_id, first_seen_at, last_seen_at FROM devices WHERE device_id = ?`

	var device domain.Device
	var firstSeen, lastSeen int64
	err := s.db.QueryRowContext(ctx, query, deviceID).Scan(&device.DeviceID, &firstSeen, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan device row: %w", err)
	}

	device.FirstSeenAt = time.Unix(firstSeen, 0)
	device.LastSeenAt = time.Unix(lastSeen, 0)
	return &device, nil
}

// UpsertDevice creates or refreshes a device record.
func (s *SQLiteStore) UpsertDevice(ctx context.Context, device *domain.Device) error {
	query := `
	INSERT INTO devices (device_id, first_seen_at, last_seen_at)
	VALUES (?, ?, ?)
	ON CONFLICT(device_id) DO UPDATE SET
		last_seen_at = excluded.last_seen_at`

	return shared.RetryOnConflict(ctx, "upsert device", func() error {
		_, err := s.db.ExecContext(ctx, query,
			device.DeviceID, device.FirstSeenAt.Unix(), device.LastSeenAt.Unix())
		if err != nil {
			return fmt.Errorf("upsert device: %w", err)
		}
		return nil
	})
}

// UpdateLastSeen updates the last_seen_at timestamp for a device.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, deviceID string, lastSeen time.Time) error {
	query := `UPDATE devices SET last_seen_at = ? WHERE device_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), deviceID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "device_id", deviceID)
	}
	return nil
}

// DeleteIdleDevices removes devices not seen within ttl and their analyses.
func (s *SQLiteStore) DeleteIdleDevices(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()

	var deleted int64
	err := shared.RetryOnConflict(ctx, "delete idle devices", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM analyses WHERE device_id IN (SELECT device_id FROM devices WHERE last_seen_at < ?)`,
			threshold); err != nil {
			return fmt.Errorf("delete idle device analyses: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM devices WHERE last_seen_at < ?`, threshold)
		if err != nil {
			return fmt.Errorf("delete idle devices: %w", err)
		}
		if deleted, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("idle devices rows affected: %w", err)
		}
		return tx.Commit()
	})
	return deleted, err
}

// InsertAnalysis records a completed analysis.
func (s *SQLiteStore) InsertAnalysis(ctx context.Context, a *domain.Analysis) error {
	query := `
	INSERT INTO analyses (id, device_id, filename, content_type, size, prediction, message, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var prediction interface{}
	if len(a.Prediction) > 0 {
		prediction = string(a.Prediction)
	}

	return shared.RetryOnConflict(ctx, "insert analysis", func() error {
		_, err := s.db.ExecContext(ctx, query,
			a.ID, a.DeviceID, a.Filename, a.ContentType, a.Size,
			prediction, a.Message, a.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("insert analysis: %w", err)
		}
		return nil
	})
}

// ListAnalyses returns a device's analyses, newest first.
func (s *SQLiteStore) ListAnalyses(ctx context.Context, deviceID string, limit int) ([]*domain.Analysis, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `
		SELECT id, device_id, filename, content_type, size, prediction, message, created_at
		FROM analyses WHERE device_id = ?
		ORDER BY created_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close analyses rows", "error", closeErr)
		}
	}()

	var out []*domain.Analysis
	for rows.Next() {
		var a domain.Analysis
		var prediction sql.NullString
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.DeviceID, &a.Filename, &a.ContentType, &a.Size,
			&prediction, &a.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan analysis row: %w", err)
		}
		if prediction.Valid {
			a.Prediction = []byte(prediction.String)
		}
		a.CreatedAt = time.Unix(0, createdAt)
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analyses: %w", err)
	}
	return out, nil
}

// PruneAnalyses removes analyses older than retention.
func (s *SQLiteStore) PruneAnalyses(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := time.Now().Add(-retention).UnixNano()
	result, err := s.db.ExecContext(ctx, `DELETE FROM analyses WHERE created_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("prune analyses: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
