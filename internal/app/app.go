package app

import (
	"context"
	"fmt"

	"github.com/segyhp/microloan-engine/internal/config"
	"github.com/segyhp/microloan-engine/internal/notifier"
	"github.com/segyhp/microloan-engine/internal/repository"
	"github.com/segyhp/microloan-engine/internal/service"
	"github.com/segyhp/microloan-engine/pkg/crypto"
	"github.com/segyhp/microloan-engine/pkg/utils"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// App holds the infrastructure and services shared by the API server and
// the scheduler.
type App struct {
	Config *config.Config
	Log    logrus.FieldLogger
	DB     *sqlx.DB
	Redis  *redis.Client
	Store  repository.Store
	Clock  utils.Clock
	Codec  *crypto.FieldCodec

	Status      *service.StatusEngine
	Credit      *service.CreditEngine
	Anomalies   *service.AnomalyLog
	Pipeline    *service.Pipeline
	Reminders   *service.ReminderScheduler
	Origination *service.OriginationService
	Reports     *service.ReportService
}

func New(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*App, error) {
	db, err := initDB(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	key, err := cfg.EncryptionKey()
	if err != nil {
		db.Close()
		return nil, err
	}
	codec, err := crypto.NewFieldCodec(key)
	if err != nil {
		db.Close()
		return nil, err
	}

	rdb := initRedis(cfg)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("redis unavailable at startup; report cache and job locks degraded")
	}

	store := repository.NewStore(db)
	loc := cfg.GetLocation()
	clock := utils.SystemClock{Location: loc}

	senders := notifier.Config{
		BaseURL:    cfg.Notifications.TwilioBaseURL,
		AccountSID: cfg.Notifications.TwilioAccountSID,
		AuthToken:  cfg.Notifications.TwilioAuthToken,
		Timeout:    cfg.GetSendTimeout(),
	}
	whatsapp := notifier.NewWhatsAppSender(senders, cfg.Notifications.WhatsAppFrom, cfg.Notifications.EnableWhatsApp)
	sms := notifier.NewSMSSender(senders, cfg.Notifications.SMSFrom)
	if !whatsapp.Enabled() && !sms.Enabled() {
		log.Warn("no notification channel configured; messages will only be logged")
	}

	a := &App{
		Config: cfg,
		Log:    log,
		DB:     db,
		Redis:  rdb,
		Store:  store,
		Clock:  clock,
		Codec:  codec,
	}

	a.Status = service.NewStatusEngine(store, clock, log)
	a.Credit = service.NewCreditEngine(store, cfg.GetBaseLoanLimit(), loc, cfg.Scheduler.CreditConcurrency, clock, log)
	a.Anomalies = service.NewAnomalyLog(store, clock, log)
	a.Pipeline = service.NewPipeline(store, clock, log, whatsapp, sms)
	a.Reminders = service.NewReminderScheduler(store, a.Status, a.Pipeline, clock, cfg.Business.Currency, log)
	a.Origination = service.NewOriginationService(store, a.Credit, codec, cfg.Security.DataHashSalt, cfg.Business.DefaultPhoneRegion, clock, log)
	a.Reports = service.NewReportService(store, service.NewRedisCache(rdb), cfg.GetReportCacheTTL(), clock, log)

	return a, nil
}

func (a *App) Close() {
	if err := a.Redis.Close(); err != nil {
		a.Log.WithError(err).Warn("failed to close redis")
	}
	if err := a.DB.Close(); err != nil {
		a.Log.WithError(err).Warn("failed to close database")
	}
}

func initDB(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	return db, nil
}

func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}
