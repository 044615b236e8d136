package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segyhp/microloan-engine/internal/app"
	"github.com/segyhp/microloan-engine/internal/config"
	"github.com/segyhp/microloan-engine/internal/scheduler"
	"github.com/segyhp/microloan-engine/pkg/logger"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "json").Fatalf("Failed to load configuration: %v", err)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	log.Info("Starting servicing scheduler...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	a, err := app.New(ctx, cfg, log)
	cancel()
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	s := scheduler.New(scheduler.Config{
		Location:   cfg.GetLocation(),
		LockTTL:    cfg.GetJobLockTTL(),
		MaxRetries: uint64(cfg.Scheduler.JobMaxRetries),
		Backoff:    5 * time.Second,
	}, scheduler.NewRedisLocker(a.Redis), log)

	jobs := scheduler.Jobs(scheduler.Specs{
		DueSoon:     cfg.Scheduler.DueSoonSpec,
		Overdue:     cfg.Scheduler.OverdueSpec,
		Credit:      cfg.Scheduler.CreditSpec,
		Reconcile:   cfg.Scheduler.ReconcileSpec,
		NotifyRetry: cfg.Scheduler.NotifyRetrySpec,
	}, scheduler.JobDeps{
		Reminders:  a.Reminders,
		Credit:     a.Credit,
		Status:     a.Status,
		Pipeline:   a.Pipeline,
		RetryBatch: cfg.Business.RetrySweepBatch,
		Log:        log,
	})

	// Schedule tasks
	if err := s.Register(jobs...); err != nil {
		log.Fatalf("Error scheduling jobs: %v", err)
	}

	s.Start()
	log.Info("Scheduler started successfully")

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down scheduler...")
	stopCtx, stop := context.WithTimeout(context.Background(), time.Minute)
	defer stop()

	if err := s.Stop(stopCtx); err != nil {
		log.WithError(err).Warn("Jobs still running at shutdown")
	}
	log.Info("Scheduler stopped")
}
