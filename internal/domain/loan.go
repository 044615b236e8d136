package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LoanStatus string

const (
	LoanStatusActive  LoanStatus = "ACTIVE"
	LoanStatusOverdue LoanStatus = "OVERDUE"
	LoanStatusPaid    LoanStatus = "PAID"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// Loan represents a loan entity. Status is always derived from the ledger
// and is never accepted from callers.
type Loan struct {
	ID             int64           `json:"id" db:"id"`
	ClientID       int64           `json:"client_id" db:"client_id"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	Status         LoanStatus      `json:"status" db:"status"`
	ApprovalStatus ApprovalStatus  `json:"approval_status" db:"approval_status"`
	ApprovedBy     *string         `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt     *time.Time      `json:"approved_at,omitempty" db:"approved_at"`
	DueDate        time.Time       `json:"due_date" db:"due_date"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// LoanWithPhone is a loan joined with its client's phone, used by the
// reminder runs.
type LoanWithPhone struct {
	Loan
	Phone string `db:"phone_number"`
}

// DTOs for requests and responses

type LoanApplicationRequest struct {
	ClientID int64           `json:"client_id" validate:"required,gt=0"`
	Amount   decimal.Decimal `json:"amount" validate:"decimal_gt0"`
	DueDate  string          `json:"due_date" validate:"required,datetime=2006-01-02"`
}

type LoanDecisionAction string

const (
	DecisionApprove LoanDecisionAction = "APPROVE"
	DecisionReject  LoanDecisionAction = "REJECT"
)

type LoanDecisionRequest struct {
	Action   LoanDecisionAction `json:"action" validate:"required,oneof=APPROVE REJECT"`
	Approver string             `json:"-" validate:"required"`
}

type LoanDecisionResponse struct {
	LoanID         int64          `json:"loan_id"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	ApprovedBy     string         `json:"approved_by"`
	ApprovedAt     time.Time      `json:"approved_at"`
}
