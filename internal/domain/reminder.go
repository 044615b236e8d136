package domain

import (
	"time"

	"github.com/google/uuid"
)

type ReminderKind string

const (
	ReminderDueSoon ReminderKind = "DUE_SOON"
	ReminderOverdue ReminderKind = "OVERDUE"
)

// ReminderRecord marks that a reminder of Kind was sent for a loan. At most
// one exists per (LoanID, Kind).
type ReminderRecord struct {
	ID     uuid.UUID    `json:"id" db:"id"`
	LoanID int64        `json:"loan_id" db:"loan_id"`
	Kind   ReminderKind `json:"kind" db:"kind"`
	SentAt time.Time    `json:"sent_at" db:"sent_at"`
}
