// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/agro-solar-web/internal/domain"
)

// Repository defines the interface for persisting devices and analysis history.
type Repository interface {
	// GetDevice retrieves a device by ID. It returns nil, nil when unknown.
	GetDevice(ctx context.Context, deviceID string) (*domain.Device, error)

	// UpsertDevice creates a device record or refreshes its last_seen_at.
	UpsertDevice(ctx context.Context, device *domain.Device) error

	// UpdateLastSeen updates the last_seen_at timestamp for a device.
	UpdateLastSeen(ctx context.Context, deviceID string, lastSeen time.Time) error

	// DeleteIdleDevices removes devices not seen within ttl, along with their history.
	DeleteIdleDevices(ctx context.Context, ttl time.Duration) (int64, error)

	// InsertAnalysis records a completed analysis.
	InsertAnalysis(ctx context.Context, analysis *domain.Analysis) error

	// ListAnalyses returns a device's analyses, newest first.
	ListAnalyses(ctx context.Context, deviceID string, limit int) ([]*domain.Analysis, error)

	// PruneAnalyses removes analyses older than retention.
	PruneAnalyses(ctx context.Context, retention time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
