// Package scheduler runs the recurring maintenance sweeps: job retention,
// orphaned file collection and translation cache expiry.
package scheduler

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/videovoice/videovoice/internal/observability"
	"github.com/videovoice/videovoice/pkg/format"
)

// Registry is the job-side surface the sweeper needs.
type Registry interface {
	CleanupExpired() int
	CleanupOrphans() int
}

// Cache is the translation-cache surface the sweeper needs.
type Cache interface {
	Sweep() (int, error)
}

// Scheduler drives the sweeps on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	registry Registry
	cache    Cache
	schedule string
	logger   *slog.Logger
}

// New builds a scheduler over the registry and cache. The schedule is a
// standard five-field cron expression.
func New(schedule string, registry Registry, cache Cache, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:     cron.New(),
		registry: registry,
		cache:    cache,
		schedule: schedule,
		logger:   observability.WithComponent(logger, "scheduler"),
	}
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start launches the cron loop in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("maintenance sweeps scheduled",
		slog.String("schedule", format.CronDescription(s.schedule)))
}

// Stop halts the cron loop and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// sweep runs one maintenance pass. Each part is independent; a failing
// cache sweep does not stop job retention.
func (s *Scheduler) sweep() {
	expired := s.registry.CleanupExpired()
	orphans := s.registry.CleanupOrphans()

	cacheRemoved := 0
	if s.cache != nil {
		n, err := s.cache.Sweep()
		if err != nil {
			s.logger.Warn("cache sweep failed", slog.String("error", err.Error()))
		}
		cacheRemoved = n
	}

	s.logger.Info("maintenance sweep complete",
		slog.Int("expired_jobs", expired),
		slog.Int("orphan_files", orphans),
		slog.Int("cache_entries", cacheRemoved))
}
