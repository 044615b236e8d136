package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

const uniqueViolation = "23505"

// PaymentReceiptConstraint is the unique constraint on payments.receipt.
const PaymentReceiptConstraint = "payments_receipt_key"

// DuplicateError is a unique violation on a named constraint. It matches
// ErrDuplicate under errors.Is.
type DuplicateError struct {
	Constraint string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDuplicate, e.Constraint)
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

// IsDuplicateOf reports whether err is a unique violation of constraint.
func IsDuplicateOf(err error, constraint string) bool {
	var dup *DuplicateError
	return errors.As(err, &dup) && dup.Constraint == constraint
}

type store struct {
	db *sqlx.DB
	q  sqlx.ExtContext
	tx *sqlx.Tx
}

// NewStore returns a Store backed by db.
func NewStore(db *sqlx.DB) Store {
	return &store{db: db, q: db}
}

func (s *store) Clients() ClientRepository             { return &clientRepository{db: s.q} }
func (s *store) Loans() LoanRepository                 { return &loanRepository{db: s.q} }
func (s *store) Payments() PaymentRepository           { return &paymentRepository{db: s.q} }
func (s *store) Reminders() ReminderRepository         { return &reminderRepository{db: s.q} }
func (s *store) Anomalies() AnomalyRepository          { return &anomalyRepository{db: s.q} }
func (s *store) Notifications() NotificationRepository { return &notificationRepository{db: s.q} }
func (s *store) Transitions() TransitionRepository     { return &transitionRepository{db: s.q} }
func (s *store) Reports() ReportRepository             { return &reportRepository{db: s.q} }

func (s *store) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&store{db: s.db, q: tx, tx: tx}); err != nil {
		return err
	}

	return tx.Commit()
}

// translate maps driver errors onto the repository sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return &DuplicateError{Constraint: pqErr.Constraint}
	}
	return err
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
