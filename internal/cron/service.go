package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/inventory-sync/pkg/logger"
	"github.com/angelmondragon/inventory-sync/pkg/metrics"
)

const defaultInterval = time.Minute

var (
	ErrLockHeld = errors.New("cron: lock held by another instance")

	errLoggerRequired = errors.New("cron: logger required")
	errLockRequired   = errors.New("cron: lock required")
)

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	// Metrics may be nil.
	Metrics *metrics.CronJobMetrics
	// Interval is the tick period; it should match the most frequent job.
	Interval time.Duration
}

// Service wakes every interval, works out which jobs are due and runs them
// one after another while holding the distributed lock. A failing job never
// stops the others.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	now      func() time.Time

	lastRun map[string]time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errLoggerRequired
	case params.Lock == nil:
		return nil, errLockRequired
	}
	svc := &Service{
		logg:     params.Logger,
		registry: params.Registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: params.Interval,
		now:      time.Now,
		lastRun:  map[string]time.Time{},
	}
	if svc.registry == nil {
		svc.registry = NewRegistry()
	}
	if svc.interval <= 0 {
		svc.interval = defaultInterval
	}
	return svc, nil
}

// Run runs a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.runCycle(ctx); err != nil {
		s.logg.Error(ctx, "cron cycle failed", err)
	}
}

// RunOnce runs a single registered job under the lock, ignoring its
// schedule. A held lock returns ErrLockHeld.
func (s *Service) RunOnce(ctx context.Context, name string) error {
	job, ok := s.registry.Lookup(name)
	if !ok {
		return fmt.Errorf("cron: unknown job %q", name)
	}
	var jobErr error
	err := s.withLock(ctx, func() { jobErr = s.runJob(ctx, job, s.now()) })
	if err != nil {
		return err
	}
	return jobErr
}

func (s *Service) runCycle(ctx context.Context) error {
	tickAt := s.now()
	due := s.dueJobs(tickAt)
	if len(due) == 0 {
		return nil
	}
	err := s.withLock(ctx, func() {
		for _, job := range due {
			_ = s.runJob(ctx, job, tickAt)
		}
	})
	switch {
	case errors.Is(err, ErrLockHeld):
		s.metrics.IncSkipped(metrics.SkipLockHeld)
		s.logg.Debug(ctx, "another cron instance holds the lock; skipping this cycle")
		return nil
	case err != nil:
		s.metrics.IncSkipped(metrics.SkipLockError)
		return err
	}
	return nil
}

// withLock runs fn while holding the lock. Release failures are logged; the
// lock TTL reclaims it anyway.
func (s *Service) withLock(ctx context.Context, fn func()) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		return ErrLockHeld
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "failed to release cron lock", err)
		}
	}()
	fn()
	return nil
}

// dueJobs compares against tick times only, so time spent acquiring the
// lock or running earlier jobs never pushes a job past its next tick.
func (s *Service) dueJobs(now time.Time) []Job {
	var due []Job
	for _, job := range s.registry.Jobs() {
		if last, ran := s.lastRun[job.Name()]; ran && now.Sub(last) < jobInterval(job) {
			continue
		}
		due = append(due, job)
	}
	return due
}

// runJob records scheduledAt as the job's last run.
func (s *Service) runJob(ctx context.Context, job Job, scheduledAt time.Time) error {
	ctx = s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	s.lastRun[job.Name()] = scheduledAt
	started := s.now()

	err := job.Run(ctx)
	took := s.now().Sub(started)
	s.metrics.ObserveRun(job.Name(), took, err)

	ctx = s.logg.WithField(ctx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "job failed", err)
		return err
	}
	s.logg.Debug(ctx, "job completed")
	return nil
}
