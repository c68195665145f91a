// Package worker runs the background maintenance of device contexts and history.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/agro-solar-web/internal/store"
)

// DefaultInterval is how often the sweeper runs.
const DefaultInterval = 5 * time.Minute

// Evicter drops idle device contexts.
type Evicter interface {
	Sweep(idle time.Duration) []string
}

// CleanupCallback is called for every device the sweeper evicts.
type CleanupCallback func(deviceID string)

// Config controls the sweeper.
type Config struct {
	Interval time.Duration
	// IdleTTL is how long an in-memory device context may stay unused.
	IdleTTL time.Duration
	// Retention is how long analyses and device records are kept.
	Retention time.Duration
	Logger    *slog.Logger
}

// Sweeper evicts idle device contexts and prunes stored history.
type Sweeper struct {
	registry  Evicter
	repo      store.Repository
	onCleanup CleanupCallback
	cfg       Config
	logger    *slog.Logger
}

// NewSweeper creates a sweeper. onCleanup may be nil.
func NewSweeper(registry Evicter, repo store.Repository, onCleanup CleanupCallback, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		registry:  registry,
		repo:      repo,
		onCleanup: onCleanup,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	s.logger.Info("Sweeper started", "interval", s.cfg.Interval, "idle_ttl", s.cfg.IdleTTL, "retention", s.cfg.Retention)

	for {
		select {
		case <-ticker.C:
			s.SweepOnce(ctx)
		case <-ctx.Done():
			s.logger.Info("Sweeper shutting down", "reason", ctx.Err())
			return nil
		}
	}
}

// SweepOnce performs a single maintenance pass.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	if s.cfg.IdleTTL > 0 {
		evicted := s.registry.Sweep(s.cfg.IdleTTL)
		for _, id := range evicted {
			if s.onCleanup != nil {
				s.onCleanup(id)
			}
		}
		if len(evicted) > 0 {
			s.logger.Info("Sweeper evicted idle devices", "count", len(evicted))
		}
	}

	if s.cfg.Retention <= 0 {
		return
	}

	if pruned, err := s.repo.PruneAnalyses(ctx, s.cfg.Retention); err != nil {
		s.logger.Error("Sweeper failed to prune analyses", "error", err)
	} else if pruned > 0 {
		s.logger.Info("Sweeper pruned analyses", "count", pruned)
	}

	if deleted, err := s.repo.DeleteIdleDevices(ctx, s.cfg.Retention); err != nil {
		s.logger.Error("Sweeper failed to delete idle devices", "error", err)
	} else if deleted > 0 {
		s.logger.Info("Sweeper deleted idle device records", "count", deleted)
	}
}
