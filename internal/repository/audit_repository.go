package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/segyhp/microloan-engine/internal/domain"
)

type reminderRepository struct {
	db sqlx.ExtContext
}

func (r *reminderRepository) Reserve(ctx context.Context, loanID int64, kind domain.ReminderKind, sentAt time.Time) (*domain.ReminderRecord, bool, error) {
	query := `
		INSERT INTO reminder_records (id, loan_id, kind, sent_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (loan_id, kind) DO NOTHING
	`

	record := &domain.ReminderRecord{
		ID:     uuid.New(),
		LoanID: loanID,
		Kind:   kind,
		SentAt: sentAt,
	}

	res, err := r.db.ExecContext(ctx, query, record.ID, record.LoanID, record.Kind, record.SentAt)
	if err != nil {
		return nil, false, translate(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}

	return record, true, nil
}

func (r *reminderRepository) Release(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM reminder_records WHERE id = $1`, id)
	return translate(err)
}

type anomalyRepository struct {
	db sqlx.ExtContext
}

type anomalyRow struct {
	domain.AnomalyRecord
	DetailsJSON []byte `db:"details"`
}

func (r *anomalyRepository) Create(ctx context.Context, anomaly *domain.AnomalyRecord) error {
	query := `
		INSERT INTO anomaly_records (id, category, reference, severity, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	return r.insert(ctx, query, anomaly)
}

func (r *anomalyRepository) CreateOnce(ctx context.Context, anomaly *domain.AnomalyRecord) error {
	query := `
		INSERT INTO anomaly_records (id, category, reference, severity, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (category, reference) WHERE category = 'DUPLICATE_RECEIPT' DO NOTHING
	`

	return r.insert(ctx, query, anomaly)
}

func (r *anomalyRepository) insert(ctx context.Context, query string, anomaly *domain.AnomalyRecord) error {
	if anomaly.ID == uuid.Nil {
		anomaly.ID = uuid.New()
	}

	details, err := json.Marshal(anomaly.Details)
	if err != nil {
		return fmt.Errorf("encode anomaly details: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		anomaly.ID,
		anomaly.Category,
		anomaly.Reference,
		anomaly.Severity,
		details,
		anomaly.CreatedAt,
	)

	return translate(err)
}

func (r *anomalyRepository) ListRecent(ctx context.Context, limit int) ([]*domain.AnomalyRecord, error) {
	query := `
		SELECT id, category, reference, severity, details, created_at
		FROM anomaly_records
		ORDER BY created_at DESC
		LIMIT $1
	`

	var rows []anomalyRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, limit); err != nil {
		return nil, translate(err)
	}

	anomalies := make([]*domain.AnomalyRecord, 0, len(rows))
	for _, row := range rows {
		record := row.AnomalyRecord
		if len(row.DetailsJSON) > 0 {
			if err := json.Unmarshal(row.DetailsJSON, &record.Details); err != nil {
				return nil, fmt.Errorf("decode anomaly %s details: %w", record.ID, err)
			}
		}
		anomalies = append(anomalies, &record)
	}

	return anomalies, nil
}

type notificationRepository struct {
	db sqlx.ExtContext
}

func (r *notificationRepository) Create(ctx context.Context, record *domain.NotificationRecord) error {
	query := `
		INSERT INTO notification_records (id, phone_number, channel, message, success, attempts, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Attempts == 0 {
		record.Attempts = 1
	}

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.Phone,
		record.Channel,
		record.Message,
		record.Success,
		record.Attempts,
		record.ErrorMessage,
		record.CreatedAt,
	)

	return translate(err)
}

func (r *notificationRepository) ListFailed(ctx context.Context, limit int) ([]*domain.NotificationRecord, error) {
	query := `
		SELECT n.id, n.phone_number, n.channel, n.message, n.success, n.attempts, n.error_message, n.created_at
		FROM notification_records n
		WHERE n.success = FALSE
			AND NOT EXISTS (
				SELECT 1 FROM notification_records d
				WHERE d.success = TRUE
					AND d.phone_number = n.phone_number
					AND d.message = n.message
					AND d.created_at >= n.created_at
			)
		ORDER BY n.created_at
		LIMIT $1
	`

	var records []*domain.NotificationRecord
	if err := sqlx.SelectContext(ctx, r.db, &records, query, limit); err != nil {
		return nil, translate(err)
	}

	return records, nil
}

func (r *notificationRepository) UpdateAttempt(ctx context.Context, record *domain.NotificationRecord) error {
	query := `
		UPDATE notification_records
		SET attempts = $2, success = $3, error_message = $4
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, record.ID, record.Attempts, record.Success, record.ErrorMessage)
	if err != nil {
		return translate(err)
	}

	return expectRow(res)
}

type transitionRepository struct {
	db sqlx.ExtContext
}

func (r *transitionRepository) Create(ctx context.Context, transition *domain.StatusTransition) error {
	query := `
		INSERT INTO status_transitions (id, loan_id, from_status, to_status, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if transition.ID == uuid.Nil {
		transition.ID = uuid.New()
	}

	_, err := r.db.ExecContext(ctx, query,
		transition.ID,
		transition.LoanID,
		transition.FromStatus,
		transition.ToStatus,
		transition.Actor,
		transition.CreatedAt,
	)

	return translate(err)
}
