package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Client is a borrower. CreditScore and MaxLoanLimit are outputs of the
// credit engine and are never taken from request input.
type Client struct {
	ID                int64           `json:"id" db:"id"`
	Name              string          `json:"name" db:"name"`
	PhoneNumber       string          `json:"phone_number" db:"phone_number"`
	IDNumberEncrypted string          `json:"-" db:"id_number_encrypted"`
	IDNumberHash      string          `json:"-" db:"id_number_hash"`
	CreditScore       int             `json:"credit_score" db:"credit_score"`
	MaxLoanLimit      decimal.Decimal `json:"max_loan_limit" db:"max_loan_limit"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

type EnrollClientRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Phone    string `json:"phone_number" validate:"required,max=20"`
	IDNumber string `json:"id_number" validate:"required,alphanum,min=5,max=20"`
}

// CreditResult is the output of a credit recompute.
type CreditResult struct {
	Score int             `json:"credit_score"`
	Limit decimal.Decimal `json:"max_loan_limit"`
}
