// Package scheduler provides the periodic trigger that starts pipeline cycles
// when no operator does it by hand.
package scheduler

import (
	"context"
	"time"

	"github.com/adr-pipeline/internal/apperrors"
	"github.com/adr-pipeline/internal/logging"
	"github.com/adr-pipeline/internal/models"
)

// CycleStarter starts a pipeline run on behalf of the scheduler
type CycleStarter interface {
	StartCycle(ctx context.Context, requestedBy string) (*models.Run, error)
}

// Scheduler fires pipeline cycles on a fixed interval
type Scheduler struct {
	interval time.Duration
	starter  CycleStarter
	logger   *logging.Logger
}

// New creates a new scheduler
func New(interval time.Duration, starter CycleStarter, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Scheduler{interval: interval, starter: starter, logger: logger}
}

// Run fires a cycle every interval until the context is cancelled. A cycle
// already in progress is normal when the previous one outlasts the interval;
// the conflict is logged at debug and the tick skipped.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.WithField("interval", s.interval.String()).Info("Scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.starter.StartCycle(ctx, "scheduler"); err != nil {
				if apperrors.IsConflict(err) {
					s.logger.Debug("Skipping scheduled cycle: a run is already in progress")
					continue
				}
				s.logger.WithError(err).Error("Failed to start scheduled cycle")
			}
		}
	}
}
