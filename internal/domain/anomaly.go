package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AnomalyCategory string

const (
	AnomalyInvalidAmount     AnomalyCategory = "INVALID_AMOUNT"
	AnomalyNonPositiveAmount AnomalyCategory = "NON_POSITIVE_AMOUNT"
	AnomalyOverpayment       AnomalyCategory = "OVERPAYMENT_ATTEMPT"
	AnomalyDuplicateReceipt  AnomalyCategory = "DUPLICATE_RECEIPT"
)

type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// AnomalyRecord is an append-only audit entry for a suspicious callback.
// Reference is an opaque key ("loan:<id>" or a receipt number).
type AnomalyRecord struct {
	ID        uuid.UUID         `json:"id" db:"id"`
	Category  AnomalyCategory   `json:"category" db:"category"`
	Reference string            `json:"reference" db:"reference"`
	Severity  Severity          `json:"severity" db:"severity"`
	Details   map[string]string `json:"details" db:"-"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

// LoanReference is the anomaly reference used for loan-scoped findings.
func LoanReference(loanID int64) string {
	return fmt.Sprintf("loan:%d", loanID)
}
