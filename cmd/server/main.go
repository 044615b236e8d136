package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segyhp/microloan-engine/internal/app"
	"github.com/segyhp/microloan-engine/internal/config"
	"github.com/segyhp/microloan-engine/internal/handler"
	"github.com/segyhp/microloan-engine/internal/service"
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

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	a, err := app.New(ctx, cfg, log)
	cancel()
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	dispatcher := service.NewDispatcher(a.Pipeline, service.DispatcherConfig{
		Workers:   cfg.Notifications.DispatchWorkers,
		QueueSize: cfg.Notifications.DispatchQueueSize,
		Attempts:  cfg.Notifications.DispatchAttempts,
		Backoff:   cfg.GetDispatchBackoff(),
	}, log)

	processor := service.NewWebhookProcessor(service.WebhookDeps{
		Store:     a.Store,
		Status:    a.Status,
		Credit:    a.Credit,
		Anomalies: a.Anomalies,
		Notifier:  dispatcher,
		Sealer:    a.Codec,
		Auth: service.CallbackAuth{
			Token:      cfg.Payments.CallbackToken,
			Secret:     cfg.Payments.WebhookSecret,
			AllowedIPs: cfg.GetAllowedIPs(),
		},
		Currency: cfg.Business.Currency,
		Clock:    a.Clock,
		Log:      log,
	})

	if cfg.Server.AdminAPIKey == "" {
		log.Warn("ADMIN_API_KEY is empty; admin and report routes are locked")
	}

	// Setup routes
	router := handler.NewRouter(handler.Routes{
		Health:   handler.NewHealthHandler(a.DB, a.Redis, cfg.GetHealthTimeout(), log),
		Webhook:  handler.NewWebhookHandler(processor, cfg.Payments.TrustForwardedFor, log),
		Admin:    handler.NewAdminHandler(a.Origination, a.Anomalies, log),
		Reports:  handler.NewReportHandler(a.Reports, log),
		AdminKey: cfg.Server.AdminAPIKey,
		Log:      log,
	})

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Infof("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	// Queued confirmations are drained after the listener stops accepting callbacks.
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("Notification queue not fully drained")
	}

	log.Info("Server exited")
}
