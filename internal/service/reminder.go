package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/segyhp/microloan-engine/internal/domain"
	"github.com/segyhp/microloan-engine/internal/repository"
	"github.com/segyhp/microloan-engine/pkg/utils"

	"github.com/sirupsen/logrus"
)

// ErrReminderNotDelivered marks a reminder whose reservation was released
// so that a later run can try again.
var ErrReminderNotDelivered = errors.New("reminder not delivered")

// FallbackSender is the part of the pipeline the reminder runs need.
type FallbackSender interface {
	SendWithFallback(ctx context.Context, phone, message string) bool
}

type ReminderResult struct {
	Candidates  int `json:"candidates"`
	Sent        int `json:"sent"`
	AlreadySent int `json:"already_sent"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
}

// ReminderScheduler sends at most one reminder of each kind per loan.
type ReminderScheduler struct {
	store    repository.Store
	status   *StatusEngine
	sender   FallbackSender
	clock    utils.Clock
	currency string
	log      logrus.FieldLogger
}

func NewReminderScheduler(store repository.Store, status *StatusEngine, sender FallbackSender, clock utils.Clock, currency string, log logrus.FieldLogger) *ReminderScheduler {
	return &ReminderScheduler{
		store:    store,
		status:   status,
		sender:   sender,
		clock:    clock,
		currency: currency,
		log:      log,
	}
}

// RunDueSoon reminds ACTIVE loans due tomorrow.
func (r *ReminderScheduler) RunDueSoon(ctx context.Context) (ReminderResult, error) {
	tomorrow := utils.Tomorrow(r.clock)
	candidates, err := r.store.Loans().ListDueOn(ctx, tomorrow, domain.LoanStatusActive)
	if err != nil {
		return ReminderResult{}, fmt.Errorf("list due-soon loans: %w", err)
	}

	return r.run(ctx, candidates, domain.ReminderDueSoon, domain.LoanStatusActive, func(loan *domain.Loan) string {
		return fmt.Sprintf("Reminder: Loan #%d of %s %s is due tomorrow (%s). Please pay to avoid penalties.",
			loan.ID, r.currency, loan.Amount.StringFixed(domain.CurrencyPlaces), utils.FormatDate(loan.DueDate))
	})
}

// RunOverdue reminds unpaid loans past their due date.
func (r *ReminderScheduler) RunOverdue(ctx context.Context) (ReminderResult, error) {
	today := utils.Today(r.clock)
	candidates, err := r.store.Loans().ListPastDueUnpaid(ctx, today)
	if err != nil {
		return ReminderResult{}, fmt.Errorf("list overdue loans: %w", err)
	}

	return r.run(ctx, candidates, domain.ReminderOverdue, domain.LoanStatusOverdue, func(loan *domain.Loan) string {
		return fmt.Sprintf("Overdue alert: Loan #%d of %s %s was due on %s. Please clear payment immediately.",
			loan.ID, r.currency, loan.Amount.StringFixed(domain.CurrencyPlaces), utils.FormatDate(loan.DueDate))
	})
}

func (r *ReminderScheduler) run(
	ctx context.Context,
	candidates []*domain.LoanWithPhone,
	kind domain.ReminderKind,
	want domain.LoanStatus,
	message func(*domain.Loan) string,
) (ReminderResult, error) {
	result := ReminderResult{Candidates: len(candidates)}
	log := r.log.WithField("kind", kind)

	var errs []error
	for _, candidate := range candidates {
		loan, _, err := r.status.RefreshByID(ctx, candidate.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("refresh loan %d: %w", candidate.ID, err))
			continue
		}
		if loan.Status != want {
			result.Skipped++
			continue
		}

		record, reserved, err := r.store.Reminders().Reserve(ctx, loan.ID, kind, r.clock.Now().UTC())
		if err != nil {
			errs = append(errs, fmt.Errorf("reserve reminder for loan %d: %w", loan.ID, err))
			continue
		}
		if !reserved {
			result.AlreadySent++
			continue
		}

		if r.sender.SendWithFallback(ctx, candidate.Phone, message(loan)) {
			result.Sent++
			continue
		}

		result.Failed++
		if err := r.store.Reminders().Release(ctx, record.ID); err != nil {
			log.WithField("loan_id", loan.ID).WithError(err).Error("failed to release reminder reservation")
		}
		errs = append(errs, fmt.Errorf("%w: loan %d", ErrReminderNotDelivered, loan.ID))
	}

	log.WithFields(logrus.Fields{
		"candidates":   result.Candidates,
		"sent":         result.Sent,
		"already_sent": result.AlreadySent,
		"skipped":      result.Skipped,
		"failed":       result.Failed,
	}).Info("reminder run finished")

	return result, errors.Join(errs...)
}
