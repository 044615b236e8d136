package domain

import (
	"time"

	"github.com/google/uuid"
)

// StatusTransition is written by the reconciliation sweep whenever a
// stored loan status no longer matches the ledger.
type StatusTransition struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	LoanID     int64      `json:"loan_id" db:"loan_id"`
	FromStatus LoanStatus `json:"from" db:"from_status"`
	ToStatus   LoanStatus `json:"to" db:"to_status"`
	Actor      string     `json:"actor" db:"actor"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}
