package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CurrencyPlaces is the precision every stored amount is rounded to.
const CurrencyPlaces = 2

// Balance returns the outstanding amount of a loan. It is never negative.
func Balance(principal, totalPaid decimal.Decimal) decimal.Decimal {
	remaining := principal.Sub(totalPaid)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// RoundCurrency rounds half away from zero to two places, which is
// half-up for the non-negative amounts the ledger holds.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPlaces)
}

// DeriveStatus applies the loan status rules. Full repayment wins over the
// due date, so a loan settled late is PAID rather than OVERDUE.
func DeriveStatus(principal, totalPaid decimal.Decimal, dueDate, today time.Time) LoanStatus {
	if totalPaid.GreaterThanOrEqual(principal) {
		return LoanStatusPaid
	}
	if DateOf(dueDate).Before(DateOf(today)) {
		return LoanStatusOverdue
	}
	return LoanStatusActive
}

// DateOf truncates t to its calendar date in t's own location and returns
// it as midnight UTC, the representation used for DATE columns.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// LoanLedger is the per-loan aggregate the credit engine reads.
type LoanLedger struct {
	LoanID     int64           `db:"loan_id"`
	Principal  decimal.Decimal `db:"amount"`
	DueDate    time.Time       `db:"due_date"`
	TotalPaid  decimal.Decimal `db:"total_paid"`
	LastPaidAt *time.Time      `db:"last_paid_at"`
}

func (l LoanLedger) IsPaid() bool {
	return l.TotalPaid.GreaterThanOrEqual(l.Principal)
}

// PaidOnTime reports whether the last payment landed on or before the due
// date, with the payment instant read as a calendar date in loc.
func (l LoanLedger) PaidOnTime(loc *time.Location) bool {
	if l.LastPaidAt == nil {
		return false
	}
	if loc == nil {
		loc = time.UTC
	}
	return !DateOf(l.LastPaidAt.In(loc)).After(DateOf(l.DueDate))
}
