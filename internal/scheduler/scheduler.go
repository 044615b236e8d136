package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
)

// Job is one periodic task. Run must be safe to repeat: a failed run is
// retried from the start.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

type Config struct {
	Location   *time.Location
	LockTTL    time.Duration
	MaxRetries uint64
	Backoff    time.Duration
}

// Scheduler runs jobs on cron specs with second precision. Each run takes a
// Redis lease so only one instance executes a job at a time; when Redis is
// unreachable the job runs anyway and the database constraints keep it
// correct.
type Scheduler struct {
	cron   *cron.Cron
	locker Locker
	cfg    Config
	log    logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg Config, locker Locker, log logrus.FieldLogger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(cfg.Location),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log))),
		),
		locker: locker,
		cfg:    cfg,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Scheduler) Register(jobs ...Job) error {
	for _, job := range jobs {
		if _, err := s.cron.AddFunc(job.Spec, func() { _ = s.RunJob(s.ctx, job) }); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", job.Name, job.Spec, err)
		}
		s.log.WithFields(logrus.Fields{"job": job.Name, "spec": job.Spec}).Info("job scheduled")
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs until ctx ends, at
// which point their contexts are cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

// RunJob executes job once under its lease, retrying failures with
// exponential backoff. A job whose lease is held elsewhere is skipped.
func (s *Scheduler) RunJob(ctx context.Context, job Job) error {
	log := s.log.WithField("job", job.Name)

	release, err := s.obtain(ctx, job.Name)
	if errors.Is(err, ErrLockHeld) {
		log.Info("job already running elsewhere, skipped")
		return nil
	}
	if err != nil {
		log.WithError(err).Warn("job lock unavailable, running without lock")
	}
	if release != nil {
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.WithError(err).Warn("failed to release job lock")
			}
		}()
	}

	start := time.Now()
	attempts := 0
	backoff := retry.WithMaxRetries(s.cfg.MaxRetries, retry.NewExponential(s.cfg.Backoff))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		if err := job.Run(ctx); err != nil {
			log.WithField("attempt", attempts).WithError(err).Warn("job attempt failed")
			return retry.RetryableError(err)
		}
		return nil
	})

	entry := log.WithFields(logrus.Fields{
		"attempts": attempts,
		"duration": time.Since(start).String(),
	})
	if err != nil {
		entry.WithError(err).Error("job failed")
		return err
	}
	entry.Info("job finished")
	return nil
}

func (s *Scheduler) obtain(ctx context.Context, name string) (func(context.Context) error, error) {
	if s.locker == nil {
		return nil, nil
	}
	return s.locker.Obtain(ctx, "lock:job:"+name, s.cfg.LockTTL)
}
