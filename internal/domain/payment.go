package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment is an admitted repayment. Receipt is the provider's receipt
// number and is unique across all loans.
type Payment struct {
	ID                  uuid.UUID       `json:"id" db:"id"`
	LoanID              int64           `json:"loan_id" db:"loan_id"`
	Amount              decimal.Decimal `json:"amount" db:"amount"`
	Receipt             string          `json:"receipt" db:"receipt"`
	Phone               string          `json:"phone" db:"phone"`
	PaidAt              time.Time       `json:"paid_at" db:"paid_at"`
	RawPayloadEncrypted string          `json:"-" db:"raw_payload_encrypted"`
}

