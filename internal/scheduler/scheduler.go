package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"solar-portal/internal/observability/metrics"
)

// Job is one scheduled unit of work.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context, now time.Time) error
}

// Locker guards a job tick across instances. ok is false when another holder owns the key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithLocker runs each tick only on the instance that wins the lock.
func WithLocker(locker Locker, ttl time.Duration) Option {
	return func(s *Scheduler) {
		s.locker = locker
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithClock overrides the time passed to jobs.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithJobTimeout bounds one job run.
func WithJobTimeout(timeout time.Duration) Option {
	return func(s *Scheduler) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// Scheduler triggers jobs on cron specs in UTC.
type Scheduler struct {
	cron    *cron.Cron
	locker  Locker
	lockTTL time.Duration
	timeout time.Duration
	now     func() time.Time
	log     logrus.FieldLogger
	jobs    map[string]Job
	ctx     context.Context
}

// New constructs a Scheduler.
func New(log logrus.FieldLogger, opts ...Option) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "scheduler")
	s := &Scheduler{
		lockTTL: 5 * time.Minute,
		timeout: 10 * time.Minute,
		now:     func() time.Time { return time.Now().UTC() },
		log:     log,
		jobs:    make(map[string]Job),
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cron.PrintfLogger(log)), cron.SkipIfStillRunning(cron.PrintfLogger(log))),
	)
	return s
}

// Add registers job. A job with an empty spec is disabled.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("scheduler: job requires name and func")
	}
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("scheduler: duplicate job %s", job.Name)
	}
	s.jobs[job.Name] = job
	if job.Spec == "" {
		s.log.WithField("job", job.Name).Info("job disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(job.Spec, func() { _ = s.RunNow(s.ctx, job.Name) }); err != nil {
		return fmt.Errorf("scheduler: job %s: %w", job.Name, err)
	}
	return nil
}

// Start runs the cron loop until ctx is done and in-flight jobs finish.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
}

// RunNow executes the named job once, honoring the lock.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	job, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("scheduler: unknown job %s", name)
	}
	entry := s.log.WithField("job", name)
	if s.locker != nil {
		release, acquired, err := s.locker.TryLock(ctx, "scheduler:"+name, s.lockTTL)
		if err != nil {
			entry.WithError(err).Warn("job lock failed")
			metrics.IncJobRun(name, err)
			return err
		}
		if !acquired {
			entry.Debug("job skipped; lock held elsewhere")
			return nil
		}
		defer release()
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	err := job.Run(runCtx, s.now())
	metrics.IncJobRun(name, err)
	entry = entry.WithField("duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		entry.WithError(err).Error("job failed")
		return err
	}
	entry.Debug("job finished")
	return nil
}
