package usecase

import (
	"context"
	"log/slog"
	"time"

	"NewsDigest/internal/ports"
)

// Scheduler wires the cron-like driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	enabled  bool
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring runs.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, enabled bool, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		driver:   driver,
		pipeline: pipeline,
		enabled:  enabled,
		logger:   logger.With("component", "scheduler"),
	}
}

// Start registers the recurring job. A disabled scheduler only logs a warning.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.enabled || s.driver == nil || s.pipeline == nil {
		s.logger.Warn("scheduler disabled")
		return nil
	}

	return s.driver.Start(ctx, func(trigger time.Time) {
		s.Fire(ctx, trigger)
	})
}

// Fire runs retention cleanup and then every enabled source group in turn.
// Failures are logged; the total number of digests produced is returned.
func (s *Scheduler) Fire(ctx context.Context, trigger time.Time) int {
	s.logger.Info("scheduled run started", "trigger", trigger)

	if _, err := s.pipeline.CleanupOldArticles(ctx, 0); err != nil {
		s.logger.Error("scheduled cleanup failed", "error", err)
	}

	total := 0
	for _, id := range s.pipeline.EnabledGroupIDs() {
		results, err := s.pipeline.RunGroup(ctx, id)
		if err != nil {
			s.logger.Error("scheduled group run failed", "group", id, "error", err)
		}
		total += len(results)
	}
	s.logger.Info("scheduled run finished", "processed", total)
	return total
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
