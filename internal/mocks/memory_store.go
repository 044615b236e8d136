package mocks

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/microloan-engine/internal/domain"
	"github.com/segyhp/microloan-engine/internal/repository"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-memory repository.Store with the same uniqueness
// rules as the schema. Transactions hold one store-wide lock and restore a
// snapshot on error, which is stricter than row locks but keeps the
// admission path serialized the same way.
type MemoryStore struct {
	shared *memShared
	inTx   bool
}

type memShared struct {
	mu       sync.Mutex
	state    *memState
	failures map[string]error
}

type reminderKey struct {
	loanID int64
	kind   domain.ReminderKind
}

type memState struct {
	nextClientID  int64
	nextLoanID    int64
	clients       map[int64]domain.Client
	loans         map[int64]domain.Loan
	payments      []domain.Payment
	reminders     map[reminderKey]domain.ReminderRecord
	anomalies     []domain.AnomalyRecord
	notifications []domain.NotificationRecord
	transitions   []domain.StatusTransition
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{shared: &memShared{
		state: &memState{
			clients:   map[int64]domain.Client{},
			loans:     map[int64]domain.Loan{},
			reminders: map[reminderKey]domain.ReminderRecord{},
		},
		failures: map[string]error{},
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		nextClientID:  s.nextClientID,
		nextLoanID:    s.nextLoanID,
		clients:       make(map[int64]domain.Client, len(s.clients)),
		loans:         make(map[int64]domain.Loan, len(s.loans)),
		payments:      slices.Clone(s.payments),
		reminders:     make(map[reminderKey]domain.ReminderRecord, len(s.reminders)),
		anomalies:     slices.Clone(s.anomalies),
		notifications: slices.Clone(s.notifications),
		transitions:   slices.Clone(s.transitions),
	}
	for k, v := range s.clients {
		c.clients[k] = v
	}
	for k, v := range s.loans {
		c.loans[k] = v
	}
	for k, v := range s.reminders {
		c.reminders[k] = v
	}
	return c
}

func (s *MemoryStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.shared.mu.Lock()
	return s.shared.mu.Unlock
}

func (s *MemoryStore) state() *memState {
	return s.shared.state
}

// FailOn makes the named operation, e.g. "Notifications.Create", return err
// until cleared with a nil err.
func (s *MemoryStore) FailOn(op string, err error) {
	defer s.lock()()
	if err == nil {
		delete(s.shared.failures, op)
		return
	}
	s.shared.failures[op] = err
}

func (s *MemoryStore) failure(op string) error {
	return s.shared.failures[op]
}

func (s *MemoryStore) Clients() repository.ClientRepository             { return memClients{s} }
func (s *MemoryStore) Loans() repository.LoanRepository                 { return memLoans{s} }
func (s *MemoryStore) Payments() repository.PaymentRepository           { return memPayments{s} }
func (s *MemoryStore) Reminders() repository.ReminderRepository         { return memReminders{s} }
func (s *MemoryStore) Anomalies() repository.AnomalyRepository          { return memAnomalies{s} }
func (s *MemoryStore) Notifications() repository.NotificationRepository { return memNotifications{s} }
func (s *MemoryStore) Transitions() repository.TransitionRepository     { return memTransitions{s} }
func (s *MemoryStore) Reports() repository.ReportRepository             { return memReports{s} }

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()

	snapshot := s.shared.state.clone()
	if err := fn(&MemoryStore{shared: s.shared, inTx: true}); err != nil {
		s.shared.state = snapshot
		return err
	}
	return nil
}

// Seeding and inspection helpers for tests.

func (s *MemoryStore) SeedClient(client domain.Client) *domain.Client {
	defer s.lock()()
	st := s.state()
	if client.ID == 0 {
		st.nextClientID++
		client.ID = st.nextClientID
	} else if client.ID > st.nextClientID {
		st.nextClientID = client.ID
	}
	if client.PhoneNumber == "" {
		client.PhoneNumber = fmt.Sprintf("+25470000%04d", client.ID)
	}
	if client.IDNumberHash == "" {
		client.IDNumberHash = fmt.Sprintf("hash-%d", client.ID)
	}
	st.clients[client.ID] = client
	return &client
}

func (s *MemoryStore) SeedLoan(loan domain.Loan) *domain.Loan {
	defer s.lock()()
	st := s.state()
	if loan.ID == 0 {
		st.nextLoanID++
		loan.ID = st.nextLoanID
	} else if loan.ID > st.nextLoanID {
		st.nextLoanID = loan.ID
	}
	if loan.Status == "" {
		loan.Status = domain.LoanStatusActive
	}
	if loan.ApprovalStatus == "" {
		loan.ApprovalStatus = domain.ApprovalApproved
	}
	st.loans[loan.ID] = loan
	return &loan
}

func (s *MemoryStore) SeedPayment(payment domain.Payment) {
	defer s.lock()()
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	s.state().payments = append(s.state().payments, payment)
}

func (s *MemoryStore) SeedNotification(record domain.NotificationRecord) *domain.NotificationRecord {
	defer s.lock()()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	s.state().notifications = append(s.state().notifications, record)
	return &record
}

func (s *MemoryStore) Loan(id int64) domain.Loan {
	defer s.lock()()
	return s.state().loans[id]
}

func (s *MemoryStore) Client(id int64) domain.Client {
	defer s.lock()()
	return s.state().clients[id]
}

func (s *MemoryStore) AllPayments() []domain.Payment {
	defer s.lock()()
	return slices.Clone(s.state().payments)
}

func (s *MemoryStore) AllAnomalies() []domain.AnomalyRecord {
	defer s.lock()()
	return slices.Clone(s.state().anomalies)
}

func (s *MemoryStore) AllNotifications() []domain.NotificationRecord {
	defer s.lock()()
	return slices.Clone(s.state().notifications)
}

func (s *MemoryStore) AllTransitions() []domain.StatusTransition {
	defer s.lock()()
	return slices.Clone(s.state().transitions)
}

func (s *MemoryStore) AllReminders() []domain.ReminderRecord {
	defer s.lock()()
	out := make([]domain.ReminderRecord, 0, len(s.state().reminders))
	for _, r := range s.state().reminders {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LoanID < out[j].LoanID })
	return out
}

func duplicate(constraint string) error {
	return &repository.DuplicateError{Constraint: constraint}
}

type memClients struct{ s *MemoryStore }

func (r memClients) Create(ctx context.Context, client *domain.Client) error {
	defer r.s.lock()()
	if err := r.s.failure("Clients.Create"); err != nil {
		return err
	}
	st := r.s.state()
	for _, c := range st.clients {
		if c.PhoneNumber == client.PhoneNumber {
			return duplicate("clients_phone_number_key")
		}
		if c.IDNumberHash == client.IDNumberHash {
			return duplicate("clients_id_number_hash_key")
		}
	}
	st.nextClientID++
	client.ID = st.nextClientID
	st.clients[client.ID] = *client
	return nil
}

func (r memClients) GetByID(ctx context.Context, id int64) (*domain.Client, error) {
	defer r.s.lock()()
	c, ok := r.s.state().clients[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r memClients) ListIDs(ctx context.Context) ([]int64, error) {
	defer r.s.lock()()
	if err := r.s.failure("Clients.ListIDs"); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(r.s.state().clients))
	for id := range r.s.state().clients {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (r memClients) UpdateCredit(ctx context.Context, id int64, result domain.CreditResult, updatedAt time.Time) error {
	defer r.s.lock()()
	if err := r.s.failure("Clients.UpdateCredit"); err != nil {
		return err
	}
	c, ok := r.s.state().clients[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.CreditScore = result.Score
	c.MaxLoanLimit = result.Limit
	c.UpdatedAt = updatedAt
	r.s.state().clients[id] = c
	return nil
}

type memLoans struct{ s *MemoryStore }

func (r memLoans) Create(ctx context.Context, loan *domain.Loan) error {
	defer r.s.lock()()
	st := r.s.state()
	st.nextLoanID++
	loan.ID = st.nextLoanID
	st.loans[loan.ID] = *loan
	return nil
}

func (r memLoans) GetByID(ctx context.Context, id int64) (*domain.Loan, error) {
	defer r.s.lock()()
	l, ok := r.s.state().loans[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &l, nil
}

func (r memLoans) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Loan, error) {
	defer r.s.lock()()
	if err := r.s.failure("Loans.GetByIDForUpdate"); err != nil {
		return nil, err
	}
	l, ok := r.s.state().loans[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &l, nil
}

// LockByClient only checks for an injected failure; transactions already
// run one at a time.
func (r memLoans) LockByClient(ctx context.Context, clientID int64) error {
	defer r.s.lock()()
	return r.s.failure("Loans.LockByClient")
}

func (r memLoans) sorted() []domain.Loan {
	loans := make([]domain.Loan, 0, len(r.s.state().loans))
	for _, l := range r.s.state().loans {
		loans = append(loans, l)
	}
	sort.Slice(loans, func(i, j int) bool { return loans[i].ID < loans[j].ID })
	return loans
}

func (r memLoans) ListAll(ctx context.Context) ([]*domain.Loan, error) {
	defer r.s.lock()()
	var out []*domain.Loan
	for _, l := range r.sorted() {
		out = append(out, &l)
	}
	return out, nil
}

func (r memLoans) withPhone(l domain.Loan) *domain.LoanWithPhone {
	return &domain.LoanWithPhone{Loan: l, Phone: r.s.state().clients[l.ClientID].PhoneNumber}
}

func (r memLoans) ListDueOn(ctx context.Context, date time.Time, status domain.LoanStatus) ([]*domain.LoanWithPhone, error) {
	defer r.s.lock()()
	var out []*domain.LoanWithPhone
	for _, l := range r.sorted() {
		if domain.DateOf(l.DueDate).Equal(domain.DateOf(date)) && l.Status == status {
			out = append(out, r.withPhone(l))
		}
	}
	return out, nil
}

func (r memLoans) ListPastDueUnpaid(ctx context.Context, date time.Time) ([]*domain.LoanWithPhone, error) {
	defer r.s.lock()()
	var out []*domain.LoanWithPhone
	for _, l := range r.sorted() {
		if domain.DateOf(l.DueDate).Before(domain.DateOf(date)) && l.Status != domain.LoanStatusPaid {
			out = append(out, r.withPhone(l))
		}
	}
	return out, nil
}

func (r memLoans) UpdateStatus(ctx context.Context, id int64, status domain.LoanStatus) error {
	defer r.s.lock()()
	l, ok := r.s.state().loans[id]
	if !ok {
		return repository.ErrNotFound
	}
	l.Status = status
	r.s.state().loans[id] = l
	return nil
}

func (r memLoans) UpdateApproval(ctx context.Context, loan *domain.Loan) error {
	defer r.s.lock()()
	l, ok := r.s.state().loans[loan.ID]
	if !ok {
		return repository.ErrNotFound
	}
	l.ApprovalStatus = loan.ApprovalStatus
	l.ApprovedBy = loan.ApprovedBy
	l.ApprovedAt = loan.ApprovedAt
	r.s.state().loans[loan.ID] = l
	return nil
}

type memPayments struct{ s *MemoryStore }

func (r memPayments) Create(ctx context.Context, payment *domain.Payment) error {
	defer r.s.lock()()
	if err := r.s.failure("Payments.Create"); err != nil {
		return err
	}
	for _, p := range r.s.state().payments {
		if p.ID == payment.ID {
			return duplicate("payments_pkey")
		}
		if p.Receipt == payment.Receipt {
			return duplicate(repository.PaymentReceiptConstraint)
		}
	}
	r.s.state().payments = append(r.s.state().payments, *payment)
	return nil
}

func (r memPayments) ExistsByReceipt(ctx context.Context, receipt string) (bool, error) {
	defer r.s.lock()()
	return slices.ContainsFunc(r.s.state().payments, func(p domain.Payment) bool {
		return p.Receipt == receipt
	}), nil
}

func (r memPayments) GetByLoanID(ctx context.Context, loanID int64) ([]*domain.Payment, error) {
	defer r.s.lock()()
	var out []*domain.Payment
	for _, p := range r.s.state().payments {
		if p.LoanID == loanID {
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaidAt.After(out[j].PaidAt) })
	return out, nil
}

func (r memPayments) totalPaid(loanID int64) (decimal.Decimal, *time.Time) {
	total := decimal.Zero
	var last *time.Time
	for _, p := range r.s.state().payments {
		if p.LoanID != loanID {
			continue
		}
		total = total.Add(p.Amount)
		if last == nil || p.PaidAt.After(*last) {
			at := p.PaidAt
			last = &at
		}
	}
	return total, last
}

func (r memPayments) GetTotalPaid(ctx context.Context, loanID int64) (decimal.Decimal, error) {
	defer r.s.lock()()
	total, _ := r.totalPaid(loanID)
	return total, nil
}

func (r memPayments) GetLedgerByClient(ctx context.Context, clientID int64) ([]domain.LoanLedger, error) {
	defer r.s.lock()()
	var out []domain.LoanLedger
	for _, l := range (memLoans{r.s}).sorted() {
		if l.ClientID != clientID {
			continue
		}
		total, last := r.totalPaid(l.ID)
		out = append(out, domain.LoanLedger{
			LoanID:     l.ID,
			Principal:  l.Amount,
			DueDate:    l.DueDate,
			TotalPaid:  total,
			LastPaidAt: last,
		})
	}
	return out, nil
}

type memReminders struct{ s *MemoryStore }

func (r memReminders) Reserve(ctx context.Context, loanID int64, kind domain.ReminderKind, sentAt time.Time) (*domain.ReminderRecord, bool, error) {
	defer r.s.lock()()
	key := reminderKey{loanID: loanID, kind: kind}
	if _, exists := r.s.state().reminders[key]; exists {
		return nil, false, nil
	}
	record := domain.ReminderRecord{ID: uuid.New(), LoanID: loanID, Kind: kind, SentAt: sentAt}
	r.s.state().reminders[key] = record
	return &record, true, nil
}

func (r memReminders) Release(ctx context.Context, id uuid.UUID) error {
	defer r.s.lock()()
	for k, v := range r.s.state().reminders {
		if v.ID == id {
			delete(r.s.state().reminders, k)
		}
	}
	return nil
}

type memAnomalies struct{ s *MemoryStore }

func (r memAnomalies) Create(ctx context.Context, anomaly *domain.AnomalyRecord) error {
	defer r.s.lock()()
	if err := r.s.failure("Anomalies.Create"); err != nil {
		return err
	}
	if anomaly.ID == uuid.Nil {
		anomaly.ID = uuid.New()
	}
	r.s.state().anomalies = append(r.s.state().anomalies, *anomaly)
	return nil
}

func (r memAnomalies) CreateOnce(ctx context.Context, anomaly *domain.AnomalyRecord) error {
	defer r.s.lock()()
	exists := slices.ContainsFunc(r.s.state().anomalies, func(a domain.AnomalyRecord) bool {
		return a.Category == anomaly.Category && a.Reference == anomaly.Reference
	})
	if exists {
		return nil
	}
	if anomaly.ID == uuid.Nil {
		anomaly.ID = uuid.New()
	}
	r.s.state().anomalies = append(r.s.state().anomalies, *anomaly)
	return nil
}

func (r memAnomalies) ListRecent(ctx context.Context, limit int) ([]*domain.AnomalyRecord, error) {
	defer r.s.lock()()
	all := r.s.state().anomalies
	var out []*domain.AnomalyRecord
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		a := all[i]
		out = append(out, &a)
	}
	return out, nil
}

type memNotifications struct{ s *MemoryStore }

func (r memNotifications) Create(ctx context.Context, record *domain.NotificationRecord) error {
	defer r.s.lock()()
	if err := r.s.failure("Notifications.Create"); err != nil {
		return err
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Attempts == 0 {
		record.Attempts = 1
	}
	r.s.state().notifications = append(r.s.state().notifications, *record)
	return nil
}

func (r memNotifications) ListFailed(ctx context.Context, limit int) ([]*domain.NotificationRecord, error) {
	defer r.s.lock()()
	failed := slices.Clone(r.s.state().notifications)
	sort.SliceStable(failed, func(i, j int) bool { return failed[i].CreatedAt.Before(failed[j].CreatedAt) })

	var out []*domain.NotificationRecord
	for _, n := range failed {
		if len(out) == limit {
			break
		}
		if !n.Success && !r.deliveredSince(n) {
			out = append(out, &n)
		}
	}
	return out, nil
}

func (r memNotifications) deliveredSince(failed domain.NotificationRecord) bool {
	return slices.ContainsFunc(r.s.state().notifications, func(n domain.NotificationRecord) bool {
		return n.Success && n.Phone == failed.Phone && n.Message == failed.Message && !n.CreatedAt.Before(failed.CreatedAt)
	})
}

func (r memNotifications) UpdateAttempt(ctx context.Context, record *domain.NotificationRecord) error {
	defer r.s.lock()()
	for i, n := range r.s.state().notifications {
		if n.ID == record.ID {
			n.Attempts = record.Attempts
			n.Success = record.Success
			n.ErrorMessage = record.ErrorMessage
			r.s.state().notifications[i] = n
			return nil
		}
	}
	return repository.ErrNotFound
}

type memTransitions struct{ s *MemoryStore }

func (r memTransitions) Create(ctx context.Context, transition *domain.StatusTransition) error {
	defer r.s.lock()()
	if err := r.s.failure("Transitions.Create"); err != nil {
		return err
	}
	if transition.ID == uuid.Nil {
		transition.ID = uuid.New()
	}
	r.s.state().transitions = append(r.s.state().transitions, *transition)
	return nil
}

type memReports struct{ s *MemoryStore }

func (r memReports) Collections(ctx context.Context, from, to time.Time) (domain.CollectionsSummary, error) {
	defer r.s.lock()()
	summary := domain.CollectionsSummary{Total: decimal.Zero}
	for _, p := range r.s.state().payments {
		if !p.PaidAt.Before(from) && p.PaidAt.Before(to) {
			summary.Total = summary.Total.Add(p.Amount)
			summary.PaymentsCount++
		}
	}
	return summary, nil
}

func (r memReports) OutstandingBalances(ctx context.Context) ([]domain.LoanBalance, error) {
	defer r.s.lock()()
	var out []domain.LoanBalance
	for _, l := range (memLoans{r.s}).sorted() {
		if l.Status == domain.LoanStatusPaid {
			continue
		}
		total, _ := (memPayments{r.s}).totalPaid(l.ID)
		out = append(out, domain.LoanBalance{LoanID: l.ID, Amount: l.Amount, TotalPaid: total})
	}
	return out, nil
}

func (r memReports) OverdueLoans(ctx context.Context, today time.Time) ([]*domain.OverdueLoan, error) {
	defer r.s.lock()()
	var out []*domain.OverdueLoan
	for _, l := range (memLoans{r.s}).sorted() {
		if !domain.DateOf(l.DueDate).Before(domain.DateOf(today)) || l.Status == domain.LoanStatusPaid {
			continue
		}
		total, _ := (memPayments{r.s}).totalPaid(l.ID)
		out = append(out, &domain.OverdueLoan{
			LoanID:    l.ID,
			ClientID:  l.ClientID,
			Amount:    l.Amount,
			TotalPaid: total,
			DueDate:   l.DueDate,
		})
	}
	return out, nil
}

func (r memReports) LoanSummary(ctx context.Context) (domain.LoanSummary, error) {
	defer r.s.lock()()
	var summary domain.LoanSummary
	for _, l := range r.s.state().loans {
		summary.TotalLoans++
		switch l.Status {
		case domain.LoanStatusPaid:
			summary.PaidLoans++
		case domain.LoanStatusOverdue:
			summary.OverdueLoans++
		}
	}
	return summary, nil
}
