package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/segyhp/microloan-engine/internal/domain"
	"github.com/shopspring/decimal"
)

type paymentRepository struct {
	db sqlx.ExtContext
}

func (r *paymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (id, loan_id, amount, receipt, phone, paid_at, raw_payload_encrypted)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}

	_, err := r.db.ExecContext(ctx, query,
		payment.ID,
		payment.LoanID,
		payment.Amount,
		payment.Receipt,
		payment.Phone,
		payment.PaidAt,
		payment.RawPayloadEncrypted,
	)

	return translate(err)
}

func (r *paymentRepository) ExistsByReceipt(ctx context.Context, receipt string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, r.db, &exists, `SELECT EXISTS (SELECT 1 FROM payments WHERE receipt = $1)`, receipt)
	if err != nil {
		return false, translate(err)
	}

	return exists, nil
}

func (r *paymentRepository) GetByLoanID(ctx context.Context, loanID int64) ([]*domain.Payment, error) {
	query := `
		SELECT id, loan_id, amount, receipt, phone, paid_at, raw_payload_encrypted
		FROM payments
		WHERE loan_id = $1
		ORDER BY paid_at DESC
	`

	var payments []*domain.Payment
	if err := sqlx.SelectContext(ctx, r.db, &payments, query, loanID); err != nil {
		return nil, translate(err)
	}

	return payments, nil
}

func (r *paymentRepository) GetTotalPaid(ctx context.Context, loanID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := sqlx.GetContext(ctx, r.db, &total, `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE loan_id = $1`, loanID)
	if err != nil {
		return decimal.Zero, translate(err)
	}

	return total, nil
}

func (r *paymentRepository) GetLedgerByClient(ctx context.Context, clientID int64) ([]domain.LoanLedger, error) {
	query := `
		SELECT l.id AS loan_id, l.amount, l.due_date,
			COALESCE(SUM(p.amount), 0) AS total_paid,
			MAX(p.paid_at) AS last_paid_at
		FROM loans l
		LEFT JOIN payments p ON p.loan_id = l.id
		WHERE l.client_id = $1
		GROUP BY l.id, l.amount, l.due_date
		ORDER BY l.id
	`

	var ledgers []domain.LoanLedger
	if err := sqlx.SelectContext(ctx, r.db, &ledgers, query, clientID); err != nil {
		return nil, translate(err)
	}

	return ledgers, nil
}
