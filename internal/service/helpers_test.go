package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segyhp/microloan-engine/internal/domain"
	"github.com/segyhp/microloan-engine/internal/mocks"
	"github.com/segyhp/microloan-engine/pkg/utils"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// 10 June 2024, 10:00 in Nairobi.
var testNow = time.Date(2024, 6, 10, 7, 0, 0, 0, time.UTC)

var nairobi = time.FixedZone("EAT", 3*60*60)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fakeNotifier struct {
	mu    sync.Mutex
	items []Notification
}

func (f *fakeNotifier) Enqueue(ctx context.Context, n Notification) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, n)
	return true
}

func (f *fakeNotifier) Items() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notification(nil), f.items...)
}

type plainSealer struct{}

func (plainSealer) Encrypt(plaintext []byte) (string, error) {
	return "sealed:" + string(plaintext), nil
}

type harness struct {
	store     *mocks.MemoryStore
	clock     *utils.FixedClock
	log       *logrus.Logger
	hook      *test.Hook
	status    *StatusEngine
	credit    *CreditEngine
	anomalies *AnomalyLog
	notifier  *fakeNotifier
	webhook   *WebhookProcessor
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	log, hook := test.NewNullLogger()
	store := mocks.NewMemoryStore()
	clock := utils.NewFixedClock(testNow.In(nairobi))

	h := &harness{
		store:    store,
		clock:    clock,
		log:      log,
		hook:     hook,
		notifier: &fakeNotifier{},
	}
	h.status = NewStatusEngine(store, clock, log)
	h.credit = NewCreditEngine(store, dec("5000.00"), nairobi, 2, clock, log)
	h.anomalies = NewAnomalyLog(store, clock, log)
	h.webhook = NewWebhookProcessor(WebhookDeps{
		Store:     store,
		Status:    h.status,
		Credit:    h.credit,
		Anomalies: h.anomalies,
		Notifier:  h.notifier,
		Sealer:    plainSealer{},
		Auth:      CallbackAuth{Token: "tok"},
		Currency:  "KES",
		Clock:     clock,
		Log:       log,
	})
	return h
}

// seedLoan creates a client with one approved loan.
func (h *harness) seedLoan(amount string, due time.Time) *domain.Loan {
	client := h.store.SeedClient(domain.Client{Name: "Wanjiru", MaxLoanLimit: dec("5000.00")})
	return h.store.SeedLoan(domain.Loan{
		ClientID: client.ID,
		Amount:   dec(amount),
		Status:   domain.LoanStatusActive,
		DueDate:  due,
	})
}

// callbackBody renders an STK callback; nil values are omitted.
func callbackBody(resultCode interface{}, amount, receipt, phone interface{}) []byte {
	var items []map[string]interface{}
	add := func(name string, value interface{}) {
		if value != nil {
			items = append(items, map[string]interface{}{"Name": name, "Value": value})
		}
	}
	add(domain.ItemAmount, amount)
	add(domain.ItemReceipt, receipt)
	add(domain.ItemPhoneNumber, phone)

	body, _ := json.Marshal(map[string]interface{}{
		"Body": map[string]interface{}{
			"stkCallback": map[string]interface{}{
				"MerchantRequestID": "29115-34620561-1",
				"CheckoutRequestID": "ws_CO_191220191020363925",
				"ResultCode":        resultCode,
				"ResultDesc":        "The service request is processed successfully.",
				"CallbackMetadata":  map[string]interface{}{"Item": items},
			},
		},
	})
	return body
}
