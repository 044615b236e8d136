package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/microloan-engine/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPayment(loanID int64, receipt string, amount int64) *domain.Payment {
	return &domain.Payment{
		LoanID:  loanID,
		Amount:  decimal.NewFromInt(amount),
		Receipt: receipt,
		Phone:   "254700000001",
		PaidAt:  storedAt,
	}
}

func TestPaymentRepository_CreateAssignsDistinctIDs(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db)
	ctx := context.Background()

	client := seedClient(t, db, "+254700000001")
	first := seedLoan(t, db, client.ID)
	second := seedLoan(t, db, client.ID)

	payments := []*domain.Payment{
		newPayment(first.ID, "QGH1", 200),
		newPayment(first.ID, "QGH2", 300),
		newPayment(second.ID, "QGH3", 400),
	}
	for _, p := range payments {
		require.NoError(t, s.Payments().Create(ctx, p))
		assert.NotEqual(t, uuid.Nil, p.ID)
	}

	assert.NotEqual(t, payments[0].ID, payments[1].ID)
	assert.NotEqual(t, payments[1].ID, payments[2].ID)

	total, err := s.Payments().GetTotalPaid(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(500).Equal(total), "got %s", total)
}

func TestPaymentRepository_DuplicateReceiptNamesConstraint(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db)
	ctx := context.Background()

	loan := seedLoan(t, db, seedClient(t, db, "+254700000001").ID)
	require.NoError(t, s.Payments().Create(ctx, newPayment(loan.ID, "QGH1", 200)))

	err := s.Payments().Create(ctx, newPayment(loan.ID, "QGH1", 200))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.True(t, IsDuplicateOf(err, PaymentReceiptConstraint))

	reused := newPayment(loan.ID, "QGH2", 200)
	reused.ID = uuid.New()
	require.NoError(t, s.Payments().Create(ctx, reused))

	again := newPayment(loan.ID, "QGH3", 200)
	again.ID = reused.ID
	err = s.Payments().Create(ctx, again)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.False(t, IsDuplicateOf(err, PaymentReceiptConstraint), "primary key clash is not a receipt replay")
}

func TestPaymentRepository_AcceptsLongCallbackFields(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db)
	ctx := context.Background()

	loan := seedLoan(t, db, seedClient(t, db, "+254700000001").ID)
	p := newPayment(loan.ID, strings.Repeat("R", 120), 200)
	p.Phone = strings.Repeat("7", 40)
	require.NoError(t, s.Payments().Create(ctx, p))

	exists, err := s.Payments().ExistsByReceipt(ctx, p.Receipt)
	require.NoError(t, err)
	assert.True(t, exists)

	anomaly := &domain.AnomalyRecord{
		Category:  domain.AnomalyDuplicateReceipt,
		Reference: p.Receipt,
		Severity:  domain.SeverityMedium,
		CreatedAt: storedAt,
	}
	require.NoError(t, s.Anomalies().CreateOnce(ctx, anomaly))

	record := &domain.NotificationRecord{
		Phone:     p.Phone,
		Channel:   domain.ChannelSMS,
		Message:   "Payment received",
		Success:   true,
		CreatedAt: storedAt,
	}
	assert.NoError(t, s.Notifications().Create(ctx, record))
}

func TestPaymentRepository_LedgerByClient(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db)
	ctx := context.Background()

	client := seedClient(t, db, "+254700000001")
	paid := seedLoan(t, db, client.ID)
	open := seedLoan(t, db, client.ID)

	late := newPayment(paid.ID, "QGH1", 600)
	late.PaidAt = storedAt.Add(48 * time.Hour)
	require.NoError(t, s.Payments().Create(ctx, newPayment(paid.ID, "QGH0", 400)))
	require.NoError(t, s.Payments().Create(ctx, late))

	ledgers, err := s.Payments().GetLedgerByClient(ctx, client.ID)
	require.NoError(t, err)
	require.Len(t, ledgers, 2)

	assert.Equal(t, paid.ID, ledgers[0].LoanID)
	assert.True(t, decimal.NewFromInt(1000).Equal(ledgers[0].TotalPaid))
	require.NotNil(t, ledgers[0].LastPaidAt)
	assert.True(t, late.PaidAt.Equal(*ledgers[0].LastPaidAt))

	assert.Equal(t, open.ID, ledgers[1].LoanID)
	assert.True(t, ledgers[1].TotalPaid.IsZero())
	assert.Nil(t, ledgers[1].LastPaidAt)
}
