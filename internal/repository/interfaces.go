package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/microloan-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// Store groups the repositories over one connection or one transaction.
type Store interface {
	Clients() ClientRepository
	Loans() LoanRepository
	Payments() PaymentRepository
	Reminders() ReminderRepository
	Anomalies() AnomalyRepository
	Notifications() NotificationRepository
	Transitions() TransitionRepository
	Reports() ReportRepository

	// WithTx runs fn against a Store bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	// Calling WithTx on a transaction-bound Store reuses that transaction.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// ClientRepository defines the interface for client data operations
type ClientRepository interface {
	// Create inserts a client with the caller's timestamps and sets its ID.
	// Returns ErrDuplicate when the phone number or national ID hash is
	// already enrolled.
	Create(ctx context.Context, client *domain.Client) error

	GetByID(ctx context.Context, id int64) (*domain.Client, error)

	// ListIDs returns every client ID in ascending order
	ListIDs(ctx context.Context) ([]int64, error)

	// UpdateCredit stores the outputs of a credit recompute
	UpdateCredit(ctx context.Context, id int64, result domain.CreditResult, updatedAt time.Time) error
}

// LoanRepository defines the interface for loan data operations
type LoanRepository interface {
	Create(ctx context.Context, loan *domain.Loan) error

	GetByID(ctx context.Context, id int64) (*domain.Loan, error)

	// GetByIDForUpdate reads the loan and locks its row until the
	// surrounding transaction ends
	GetByIDForUpdate(ctx context.Context, id int64) (*domain.Loan, error)

	// LockByClient locks every loan row of a client, in ID order, until the
	// surrounding transaction ends
	LockByClient(ctx context.Context, clientID int64) error

	ListAll(ctx context.Context) ([]*domain.Loan, error)

	// ListDueOn returns loans with the given stored status due on date
	ListDueOn(ctx context.Context, date time.Time, status domain.LoanStatus) ([]*domain.LoanWithPhone, error)

	// ListPastDueUnpaid returns loans due before date whose stored status is not PAID
	ListPastDueUnpaid(ctx context.Context, date time.Time) ([]*domain.LoanWithPhone, error)

	UpdateStatus(ctx context.Context, id int64, status domain.LoanStatus) error

	UpdateApproval(ctx context.Context, loan *domain.Loan) error
}

// PaymentRepository defines the interface for payment data operations
type PaymentRepository interface {
	// Create inserts a payment, assigning an ID when it has none. Returns a
	// DuplicateError on PaymentReceiptConstraint when the receipt exists.
	Create(ctx context.Context, payment *domain.Payment) error

	ExistsByReceipt(ctx context.Context, receipt string) (bool, error)

	// GetByLoanID retrieves all payments for a loan, newest first
	GetByLoanID(ctx context.Context, loanID int64) ([]*domain.Payment, error)

	GetTotalPaid(ctx context.Context, loanID int64) (decimal.Decimal, error)

	// GetLedgerByClient aggregates principal, paid total and last payment
	// time for every loan of a client
	GetLedgerByClient(ctx context.Context, clientID int64) ([]domain.LoanLedger, error)
}

// ReminderRepository guards the one-reminder-per-kind rule
type ReminderRepository interface {
	// Reserve creates the (loan, kind) record. reserved is false when the
	// record already exists.
	Reserve(ctx context.Context, loanID int64, kind domain.ReminderKind, sentAt time.Time) (record *domain.ReminderRecord, reserved bool, err error)

	// Release deletes a reservation whose send failed
	Release(ctx context.Context, id uuid.UUID) error
}

type AnomalyRepository interface {
	Create(ctx context.Context, anomaly *domain.AnomalyRecord) error

	// CreateOnce inserts unless a record with the same category and
	// reference exists. The first write wins.
	CreateOnce(ctx context.Context, anomaly *domain.AnomalyRecord) error

	ListRecent(ctx context.Context, limit int) ([]*domain.AnomalyRecord, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, record *domain.NotificationRecord) error

	// ListFailed returns the oldest failed records first, skipping those
	// with a later successful record for the same phone and message
	ListFailed(ctx context.Context, limit int) ([]*domain.NotificationRecord, error)

	UpdateAttempt(ctx context.Context, record *domain.NotificationRecord) error
}

type TransitionRepository interface {
	Create(ctx context.Context, transition *domain.StatusTransition) error
}

// ReportRepository holds the read-only aggregations
type ReportRepository interface {
	Collections(ctx context.Context, from, to time.Time) (domain.CollectionsSummary, error)
	OutstandingBalances(ctx context.Context) ([]domain.LoanBalance, error)
	OverdueLoans(ctx context.Context, today time.Time) ([]*domain.OverdueLoan, error)
	LoanSummary(ctx context.Context) (domain.LoanSummary, error)
}
