package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/segyhp/microloan-engine/internal/domain"
	"github.com/segyhp/microloan-engine/internal/service"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
)

type MockCallbackProcessor struct {
	mock.Mock
}

func (m *MockCallbackProcessor) Authenticate(token string, body []byte, signature, remoteIP string) error {
	args := m.Called(token, body, signature, remoteIP)
	return args.Error(0)
}

func (m *MockCallbackProcessor) Process(ctx context.Context, loanID int64, body []byte) (service.Outcome, error) {
	args := m.Called(ctx, loanID, body)
	return args.Get(0).(service.Outcome), args.Error(1)
}

type MockOriginator struct {
	mock.Mock
}

func (m *MockOriginator) EnrollClient(ctx context.Context, request *domain.EnrollClientRequest) (*domain.Client, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Client), args.Error(1)
}

func (m *MockOriginator) ApplyForLoan(ctx context.Context, request *domain.LoanApplicationRequest) (*domain.Loan, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockOriginator) DecideLoan(ctx context.Context, loanID int64, request *domain.LoanDecisionRequest) (*domain.LoanDecisionResponse, error) {
	args := m.Called(ctx, loanID, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoanDecisionResponse), args.Error(1)
}

type MockAnomalyReader struct {
	mock.Mock
}

func (m *MockAnomalyReader) Recent(ctx context.Context, limit int) ([]*domain.AnomalyRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.AnomalyRecord), args.Error(1)
}

type MockReporter struct {
	mock.Mock
}

func (m *MockReporter) DailyCollections(ctx context.Context) (*domain.DailyCollectionsReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DailyCollectionsReport), args.Error(1)
}

func (m *MockReporter) Outstanding(ctx context.Context) (*domain.OutstandingReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OutstandingReport), args.Error(1)
}

func (m *MockReporter) Overdue(ctx context.Context) (*domain.OverdueReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OverdueReport), args.Error(1)
}

func (m *MockReporter) MonthlyPerformance(ctx context.Context) (*domain.MonthlyPerformanceReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MonthlyPerformanceReport), args.Error(1)
}

type fakeDB struct{ err error }

func (f fakeDB) PingContext(ctx context.Context) error { return f.err }

type fakeRedis struct{ err error }

func (f fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", f.err)
}

const testAdminKey = "admin-key"

type testServer struct {
	router     *mux.Router
	processor  *MockCallbackProcessor
	originator *MockOriginator
	anomalies  *MockAnomalyReader
	reporter   *MockReporter
	hook       *test.Hook
}

func newTestServer(t *testing.T, trustForwardedFor bool, db fakeDB, cache fakeRedis) *testServer {
	t.Helper()

	log, hook := test.NewNullLogger()
	s := &testServer{
		processor:  new(MockCallbackProcessor),
		originator: new(MockOriginator),
		anomalies:  new(MockAnomalyReader),
		reporter:   new(MockReporter),
		hook:       hook,
	}
	s.router = NewRouter(Routes{
		Health:   NewHealthHandler(db, cache, time.Second, log),
		Webhook:  NewWebhookHandler(s.processor, trustForwardedFor, log),
		Admin:    NewAdminHandler(s.originator, s.anomalies, log),
		Reports:  NewReportHandler(s.reporter, log),
		AdminKey: testAdminKey,
		Log:      log,
	})

	t.Cleanup(func() {
		s.processor.AssertExpectations(t)
		s.originator.AssertExpectations(t)
		s.anomalies.AssertExpectations(t)
		s.reporter.AssertExpectations(t)
	})
	return s
}

func (s *testServer) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}
