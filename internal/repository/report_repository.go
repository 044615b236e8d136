package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/segyhp/microloan-engine/internal/domain"
)

type reportRepository struct {
	db sqlx.ExtContext
}

func (r *reportRepository) Collections(ctx context.Context, from, to time.Time) (domain.CollectionsSummary, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0) AS total, COUNT(*) AS payments_count
		FROM payments
		WHERE paid_at >= $1 AND paid_at < $2
	`

	var summary domain.CollectionsSummary
	if err := sqlx.GetContext(ctx, r.db, &summary, query, from, to); err != nil {
		return domain.CollectionsSummary{}, translate(err)
	}

	return summary, nil
}

func (r *reportRepository) OutstandingBalances(ctx context.Context) ([]domain.LoanBalance, error) {
	query := `
		SELECT l.id AS loan_id, l.amount, COALESCE(SUM(p.amount), 0) AS total_paid
		FROM loans l
		LEFT JOIN payments p ON p.loan_id = l.id
		WHERE l.status <> $1
		GROUP BY l.id, l.amount
		ORDER BY l.id
	`

	var balances []domain.LoanBalance
	if err := sqlx.SelectContext(ctx, r.db, &balances, query, domain.LoanStatusPaid); err != nil {
		return nil, translate(err)
	}

	return balances, nil
}

func (r *reportRepository) OverdueLoans(ctx context.Context, today time.Time) ([]*domain.OverdueLoan, error) {
	query := `
		SELECT l.id AS loan_id, l.client_id, l.amount, l.due_date, COALESCE(SUM(p.amount), 0) AS total_paid
		FROM loans l
		LEFT JOIN payments p ON p.loan_id = l.id
		WHERE l.due_date < $1 AND l.status <> $2
		GROUP BY l.id, l.client_id, l.amount, l.due_date
		ORDER BY l.due_date, l.id
	`

	var loans []*domain.OverdueLoan
	if err := sqlx.SelectContext(ctx, r.db, &loans, query, today, domain.LoanStatusPaid); err != nil {
		return nil, translate(err)
	}

	return loans, nil
}

func (r *reportRepository) LoanSummary(ctx context.Context) (domain.LoanSummary, error) {
	query := `
		SELECT COUNT(*) AS total_loans,
			COUNT(*) FILTER (WHERE status = $1) AS paid_loans,
			COUNT(*) FILTER (WHERE status = $2) AS overdue_loans
		FROM loans
	`

	var summary domain.LoanSummary
	if err := sqlx.GetContext(ctx, r.db, &summary, query, domain.LoanStatusPaid, domain.LoanStatusOverdue); err != nil {
		return domain.LoanSummary{}, translate(err)
	}

	return summary, nil
}
