package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/segyhp/microloan-engine/internal/domain"
)

type loanRepository struct {
	db sqlx.ExtContext
}

const loanColumns = `l.id, l.client_id, l.amount, l.status, l.approval_status, l.approved_by, l.approved_at, l.due_date, l.created_at`

func (r *loanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	query := `
		INSERT INTO loans (client_id, amount, status, approval_status, due_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := sqlx.GetContext(ctx, r.db, &loan.ID, query,
		loan.ClientID,
		loan.Amount,
		loan.Status,
		loan.ApprovalStatus,
		loan.DueDate,
		loan.CreatedAt,
	)

	return translate(err)
}

func (r *loanRepository) GetByID(ctx context.Context, id int64) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans l WHERE l.id = $1`

	var loan domain.Loan
	if err := sqlx.GetContext(ctx, r.db, &loan, query, id); err != nil {
		return nil, translate(err)
	}

	return &loan, nil
}

func (r *loanRepository) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans l WHERE l.id = $1 FOR UPDATE`

	var loan domain.Loan
	if err := sqlx.GetContext(ctx, r.db, &loan, query, id); err != nil {
		return nil, translate(err)
	}

	return &loan, nil
}

func (r *loanRepository) LockByClient(ctx context.Context, clientID int64) error {
	var ids []int64
	err := sqlx.SelectContext(ctx, r.db, &ids, `SELECT id FROM loans WHERE client_id = $1 ORDER BY id FOR UPDATE`, clientID)
	return translate(err)
}

func (r *loanRepository) ListAll(ctx context.Context) ([]*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans l ORDER BY l.id`

	var loans []*domain.Loan
	if err := sqlx.SelectContext(ctx, r.db, &loans, query); err != nil {
		return nil, translate(err)
	}

	return loans, nil
}

func (r *loanRepository) ListDueOn(ctx context.Context, date time.Time, status domain.LoanStatus) ([]*domain.LoanWithPhone, error) {
	query := `
		SELECT ` + loanColumns + `, c.phone_number
		FROM loans l
		JOIN clients c ON c.id = l.client_id
		WHERE l.status = $1 AND l.due_date = $2
		ORDER BY l.id
	`

	var loans []*domain.LoanWithPhone
	if err := sqlx.SelectContext(ctx, r.db, &loans, query, status, date); err != nil {
		return nil, translate(err)
	}

	return loans, nil
}

func (r *loanRepository) ListPastDueUnpaid(ctx context.Context, date time.Time) ([]*domain.LoanWithPhone, error) {
	query := `
		SELECT ` + loanColumns + `, c.phone_number
		FROM loans l
		JOIN clients c ON c.id = l.client_id
		WHERE l.due_date < $1 AND l.status <> $2
		ORDER BY l.id
	`

	var loans []*domain.LoanWithPhone
	if err := sqlx.SelectContext(ctx, r.db, &loans, query, date, domain.LoanStatusPaid); err != nil {
		return nil, translate(err)
	}

	return loans, nil
}

func (r *loanRepository) UpdateStatus(ctx context.Context, id int64, status domain.LoanStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE loans SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return translate(err)
	}

	return expectRow(res)
}

func (r *loanRepository) UpdateApproval(ctx context.Context, loan *domain.Loan) error {
	query := `
		UPDATE loans
		SET approval_status = $2, approved_by = $3, approved_at = $4
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		loan.ID,
		loan.ApprovalStatus,
		loan.ApprovedBy,
		loan.ApprovedAt,
	)
	if err != nil {
		return translate(err)
	}

	return expectRow(res)
}
