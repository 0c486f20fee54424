// internal/service/scheduler.go
package service

import (
	"context"
	"time"

	"github.com/unclebandit/leadreach-backend/internal/observability"
)

// Scheduler drives campaign progression off a heartbeat ticker. Each tick
// scans for due enrollments and executes their current steps. An enrollment
// due at process start fires on the first tick; it is never skipped.
type Scheduler struct {
	enrollments *EnrollmentService
	executor    *StepExecutor
	logger      *observability.Logger
	interval    time.Duration
	stopChan    chan struct{}
}

func NewScheduler(enrollments *EnrollmentService, executor *StepExecutor, logger *observability.Logger, interval time.Duration) *Scheduler {
	return &Scheduler{
		enrollments: enrollments,
		executor:    executor,
		logger:      logger,
		interval:    interval,
		stopChan:    make(chan struct{}),
	}
}

// Start blocks, ticking every interval until the context is canceled or Stop
// is called. The first scan runs immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "interval", Value: s.interval.String()},
	), "campaign scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "campaign scheduler stopping")
			return
		case <-s.stopChan:
			s.logger.Info(ctx, "campaign scheduler stopping")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopChan)
}

func (s *Scheduler) tick(ctx context.Context) {
	due, err := s.enrollments.DueEnrollments(ctx, time.Now())
	if err != nil {
		s.logger.Error(ctx, "due enrollment scan failed", err)
		return
	}
	if len(due) == 0 {
		return
	}

	s.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "count", Value: len(due)},
	), "executing due campaign steps")

	// Steps run concurrently; the per-lead lock inside ExecuteStep keeps two
	// steps for the same lead from interleaving.
	for _, e := range due {
		e := e
		go func() {
			if err := s.executor.ExecuteStep(ctx, e); err != nil {
				s.logger.Error(observability.WithFields(ctx,
					observability.Field{Key: "enrollment_id", Value: e.ID},
				), "campaign step execution failed", err)
			}
		}()
	}
}
