package service

import (
	"context"

	"github.com/segyhp/microloan-engine/internal/domain"
	"github.com/segyhp/microloan-engine/internal/repository"
	"github.com/segyhp/microloan-engine/pkg/utils"

	"github.com/sirupsen/logrus"
)

// AnomalyLog is the append-only audit trail for suspicious callbacks.
type AnomalyLog struct {
	store repository.Store
	clock utils.Clock
	log   logrus.FieldLogger
}

func NewAnomalyLog(store repository.Store, clock utils.Clock, log logrus.FieldLogger) *AnomalyLog {
	return &AnomalyLog{store: store, clock: clock, log: log}
}

// Record appends an anomaly. DUPLICATE_RECEIPT entries are first-write-wins
// per receipt, every other category always appends.
func (a *AnomalyLog) Record(ctx context.Context, anomaly *domain.AnomalyRecord) error {
	if anomaly.CreatedAt.IsZero() {
		anomaly.CreatedAt = a.clock.Now().UTC()
	}

	a.log.WithFields(logrus.Fields{
		"category":  anomaly.Category,
		"reference": anomaly.Reference,
		"severity":  anomaly.Severity,
	}).Warn("payment anomaly")

	repo := a.store.Anomalies()
	if anomaly.Category == domain.AnomalyDuplicateReceipt {
		return repo.CreateOnce(ctx, anomaly)
	}
	return repo.Create(ctx, anomaly)
}

// Recent returns the newest anomalies for operators.
func (a *AnomalyLog) Recent(ctx context.Context, limit int) ([]*domain.AnomalyRecord, error) {
	switch {
	case limit <= 0:
		limit = 100
	case limit > 500:
		limit = 500
	}
	return a.store.Anomalies().ListRecent(ctx, limit)
}
