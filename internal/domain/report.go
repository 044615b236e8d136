package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DailyCollectionsReport struct {
	Date             string          `json:"date"`
	TotalCollections decimal.Decimal `json:"total_collections"`
	PaymentsCount    int             `json:"payments_count"`
}

type OutstandingReport struct {
	OutstandingLoansCount int             `json:"outstanding_loans_count"`
	OutstandingTotal      decimal.Decimal `json:"outstanding_total"`
}

type OverdueLoan struct {
	LoanID    int64           `json:"loan_id" db:"loan_id"`
	ClientID  int64           `json:"client_id" db:"client_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	TotalPaid decimal.Decimal `json:"total_paid" db:"total_paid"`
	Balance   decimal.Decimal `json:"balance" db:"-"`
	DueDate   time.Time       `json:"due_date" db:"due_date"`
}

type OverdueReport struct {
	OverdueCount int            `json:"overdue_count"`
	Results      []*OverdueLoan `json:"results"`
}

type CollectionsSummary struct {
	Total         decimal.Decimal `json:"total" db:"total"`
	PaymentsCount int             `json:"payments_count" db:"payments_count"`
}

type LoanSummary struct {
	TotalLoans   int `json:"total_loans" db:"total_loans"`
	PaidLoans    int `json:"paid_loans" db:"paid_loans"`
	OverdueLoans int `json:"overdue_loans" db:"overdue_loans"`
}

type MonthlyPerformanceReport struct {
	MonthStart  string             `json:"month_start"`
	AsOf        string             `json:"as_of"`
	Collections CollectionsSummary `json:"collections"`
	Loans       LoanSummary        `json:"loans"`
}

// LoanBalance is a non-PAID loan with its paid total, read by the
// outstanding report.
type LoanBalance struct {
	LoanID    int64           `db:"loan_id"`
	Amount    decimal.Decimal `db:"amount"`
	TotalPaid decimal.Decimal `db:"total_paid"`
}
