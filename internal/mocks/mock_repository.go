package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/microloan-engine/internal/domain"
	"github.com/segyhp/microloan-engine/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockStore hands out the mock repositories. WithTx runs fn against the
// same store unless an error is stubbed with On("WithTx").
type MockStore struct {
	mock.Mock
	ClientRepo       *MockClientRepository
	LoanRepo         *MockLoanRepository
	PaymentRepo      *MockPaymentRepository
	ReminderRepo     *MockReminderRepository
	AnomalyRepo      *MockAnomalyRepository
	NotificationRepo *MockNotificationRepository
	TransitionRepo   *MockTransitionRepository
	ReportRepo       *MockReportRepository
	StubTx           bool
}

func NewMockStore() *MockStore {
	return &MockStore{
		ClientRepo:       new(MockClientRepository),
		LoanRepo:         new(MockLoanRepository),
		PaymentRepo:      new(MockPaymentRepository),
		ReminderRepo:     new(MockReminderRepository),
		AnomalyRepo:      new(MockAnomalyRepository),
		NotificationRepo: new(MockNotificationRepository),
		TransitionRepo:   new(MockTransitionRepository),
		ReportRepo:       new(MockReportRepository),
	}
}

func (m *MockStore) Clients() repository.ClientRepository             { return m.ClientRepo }
func (m *MockStore) Loans() repository.LoanRepository                 { return m.LoanRepo }
func (m *MockStore) Payments() repository.PaymentRepository           { return m.PaymentRepo }
func (m *MockStore) Reminders() repository.ReminderRepository         { return m.ReminderRepo }
func (m *MockStore) Anomalies() repository.AnomalyRepository          { return m.AnomalyRepo }
func (m *MockStore) Notifications() repository.NotificationRepository { return m.NotificationRepo }
func (m *MockStore) Transitions() repository.TransitionRepository     { return m.TransitionRepo }
func (m *MockStore) Reports() repository.ReportRepository             { return m.ReportRepo }

func (m *MockStore) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if m.StubTx {
		args := m.Called(ctx)
		return args.Error(0)
	}
	return fn(m)
}

// AssertExpectations checks every repository mock.
func (m *MockStore) AssertExpectations(t mock.TestingT) bool {
	ok := m.ClientRepo.AssertExpectations(t)
	ok = m.LoanRepo.AssertExpectations(t) && ok
	ok = m.PaymentRepo.AssertExpectations(t) && ok
	ok = m.ReminderRepo.AssertExpectations(t) && ok
	ok = m.AnomalyRepo.AssertExpectations(t) && ok
	ok = m.NotificationRepo.AssertExpectations(t) && ok
	ok = m.TransitionRepo.AssertExpectations(t) && ok
	ok = m.ReportRepo.AssertExpectations(t) && ok
	return ok
}

type MockClientRepository struct {
	mock.Mock
}

func (m *MockClientRepository) Create(ctx context.Context, client *domain.Client) error {
	args := m.Called(ctx, client)
	return args.Error(0)
}

func (m *MockClientRepository) GetByID(ctx context.Context, id int64) (*domain.Client, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Client), args.Error(1)
}

func (m *MockClientRepository) ListIDs(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockClientRepository) UpdateCredit(ctx context.Context, id int64, result domain.CreditResult, updatedAt time.Time) error {
	args := m.Called(ctx, id, result, updatedAt)
	return args.Error(0)
}

type MockLoanRepository struct {
	mock.Mock
}

func (m *MockLoanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	args := m.Called(ctx, loan)
	return args.Error(0)
}

func (m *MockLoanRepository) GetByID(ctx context.Context, id int64) (*domain.Loan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockLoanRepository) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Loan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockLoanRepository) LockByClient(ctx context.Context, clientID int64) error {
	args := m.Called(ctx, clientID)
	return args.Error(0)
}

func (m *MockLoanRepository) ListAll(ctx context.Context) ([]*domain.Loan, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Loan), args.Error(1)
}

func (m *MockLoanRepository) ListDueOn(ctx context.Context, date time.Time, status domain.LoanStatus) ([]*domain.LoanWithPhone, error) {
	args := m.Called(ctx, date, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.LoanWithPhone), args.Error(1)
}

func (m *MockLoanRepository) ListPastDueUnpaid(ctx context.Context, date time.Time) ([]*domain.LoanWithPhone, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.LoanWithPhone), args.Error(1)
}

func (m *MockLoanRepository) UpdateStatus(ctx context.Context, id int64, status domain.LoanStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockLoanRepository) UpdateApproval(ctx context.Context, loan *domain.Loan) error {
	args := m.Called(ctx, loan)
	return args.Error(0)
}

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *MockPaymentRepository) ExistsByReceipt(ctx context.Context, receipt string) (bool, error) {
	args := m.Called(ctx, receipt)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRepository) GetByLoanID(ctx context.Context, loanID int64) ([]*domain.Payment, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Payment), args.Error(1)
}

func (m *MockPaymentRepository) GetTotalPaid(ctx context.Context, loanID int64) (decimal.Decimal, error) {
	args := m.Called(ctx, loanID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockPaymentRepository) GetLedgerByClient(ctx context.Context, clientID int64) ([]domain.LoanLedger, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LoanLedger), args.Error(1)
}

type MockReminderRepository struct {
	mock.Mock
}

func (m *MockReminderRepository) Reserve(ctx context.Context, loanID int64, kind domain.ReminderKind, sentAt time.Time) (*domain.ReminderRecord, bool, error) {
	args := m.Called(ctx, loanID, kind, sentAt)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.ReminderRecord), args.Bool(1), args.Error(2)
}

func (m *MockReminderRepository) Release(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockAnomalyRepository struct {
	mock.Mock
}

func (m *MockAnomalyRepository) Create(ctx context.Context, anomaly *domain.AnomalyRecord) error {
	args := m.Called(ctx, anomaly)
	return args.Error(0)
}

func (m *MockAnomalyRepository) CreateOnce(ctx context.Context, anomaly *domain.AnomalyRecord) error {
	args := m.Called(ctx, anomaly)
	return args.Error(0)
}

func (m *MockAnomalyRepository) ListRecent(ctx context.Context, limit int) ([]*domain.AnomalyRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.AnomalyRecord), args.Error(1)
}

type MockNotificationRepository struct {
	mock.Mock
}

func (m *MockNotificationRepository) Create(ctx context.Context, record *domain.NotificationRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockNotificationRepository) ListFailed(ctx context.Context, limit int) ([]*domain.NotificationRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.NotificationRecord), args.Error(1)
}

func (m *MockNotificationRepository) UpdateAttempt(ctx context.Context, record *domain.NotificationRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

type MockTransitionRepository struct {
	mock.Mock
}

func (m *MockTransitionRepository) Create(ctx context.Context, transition *domain.StatusTransition) error {
	args := m.Called(ctx, transition)
	return args.Error(0)
}

type MockReportRepository struct {
	mock.Mock
}

func (m *MockReportRepository) Collections(ctx context.Context, from, to time.Time) (domain.CollectionsSummary, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).(domain.CollectionsSummary), args.Error(1)
}

func (m *MockReportRepository) OutstandingBalances(ctx context.Context) ([]domain.LoanBalance, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LoanBalance), args.Error(1)
}

func (m *MockReportRepository) OverdueLoans(ctx context.Context, today time.Time) ([]*domain.OverdueLoan, error) {
	args := m.Called(ctx, today)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.OverdueLoan), args.Error(1)
}

func (m *MockReportRepository) LoanSummary(ctx context.Context) (domain.LoanSummary, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.LoanSummary), args.Error(1)
}
