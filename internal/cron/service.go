package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/logger"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/metrics"
)

const defaultInterval = time.Minute

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	// Interval is the sweep cadence. JobTimeout bounds one job and defaults to it.
	Interval   time.Duration
	JobTimeout time.Duration
}

// Service runs every registered job once per interval, under the lock.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

// CycleStats summarises one sweep cycle.
type CycleStats struct {
	Skipped   bool
	Succeeded int
	Failed    int
	Aborted   bool
}

func (c CycleStats) outcome(err error) string {
	switch {
	case err != nil:
		return "error"
	case c.Skipped:
		return "skipped"
	case c.Aborted:
		return "aborted"
	}
	return "completed"
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = &Registry{}
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	jobTimeout := params.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = interval
	}
	return &Service{
		logg:       params.Logger,
		registry:   registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   interval,
		jobTimeout: jobTimeout,
	}, nil
}

// Run sweeps immediately, then on every tick until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.logg.Info(s.logg.WithField(ctx, "jobs", s.registry.Names()), "cron schedule loaded")
	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	stats, err := s.runCycle(ctx)
	s.metrics.Cycle(stats.outcome(err))
	if err != nil {
		s.logg.Error(ctx, "scheduled run failed", err)
		return
	}
	if stats.Skipped {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"succeeded": stats.Succeeded,
		"failed":    stats.Failed,
		"aborted":   stats.Aborted,
	}), "sweep cycle complete")
}

// runCycle takes the lock, then runs jobs in order. The lock is extended
// before each job; losing it stops the cycle since another replica is now
// sweeping.
func (s *Service) runCycle(ctx context.Context) (CycleStats, error) {
	var stats CycleStats
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return stats, fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another sweeper instance holds the lock; skipping this cycle")
		stats.Skipped = true
		return stats, nil
	}
	defer func() {
		if relErr := s.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()

	for i, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			stats.Aborted = true
			return stats, nil
		}
		if i > 0 {
			if err := s.lock.Extend(ctx); err != nil {
				stats.Aborted = true
				if errors.Is(err, ErrLockLost) {
					s.logg.Warn(s.logg.WithField(ctx, "job", job.Name()), "cron lock lost; abandoning cycle")
					return stats, nil
				}
				return stats, err
			}
		}
		if s.runJob(ctx, job) {
			stats.Succeeded++
		} else {
			stats.Failed++
		}
	}
	return stats, nil
}

func (s *Service) runJob(ctx context.Context, job Job) bool {
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	runCtx, cancel := context.WithTimeout(jobCtx, s.jobTimeout)
	defer cancel()

	start := time.Now()
	err := job.Run(runCtx)
	took := time.Since(start)
	s.metrics.ObserveJob(job.Name(), took, err, time.Now())

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return false
	}
	return true
}
