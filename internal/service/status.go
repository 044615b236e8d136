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

// SystemActor is recorded on transitions made by scheduled work.
const SystemActor = "system"

// StatusEngine keeps each loan's stored status equal to the status derived
// from its ledger.
type StatusEngine struct {
	store repository.Store
	clock utils.Clock
	log   logrus.FieldLogger
}

func NewStatusEngine(store repository.Store, clock utils.Clock, log logrus.FieldLogger) *StatusEngine {
	return &StatusEngine{
		store: store,
		clock: clock,
		log:   log,
	}
}

// Refresh recomputes the loan's status from the ledger visible to tx and
// writes it only when it differs from the stored value. loan.Status is
// updated in place.
func (e *StatusEngine) Refresh(ctx context.Context, tx repository.Store, loan *domain.Loan) (domain.LoanStatus, bool, error) {
	totalPaid, err := tx.Payments().GetTotalPaid(ctx, loan.ID)
	if err != nil {
		return loan.Status, false, fmt.Errorf("total paid for loan %d: %w", loan.ID, err)
	}

	status := domain.DeriveStatus(loan.Amount, totalPaid, loan.DueDate, utils.Today(e.clock))
	if status == loan.Status {
		return status, false, nil
	}

	if err := tx.Loans().UpdateStatus(ctx, loan.ID, status); err != nil {
		return loan.Status, false, fmt.Errorf("update status of loan %d: %w", loan.ID, err)
	}

	loan.Status = status
	return status, true, nil
}

// RefreshByID locks and refreshes a single loan in its own transaction.
func (e *StatusEngine) RefreshByID(ctx context.Context, loanID int64) (*domain.Loan, bool, error) {
	var (
		loan    *domain.Loan
		changed bool
	)

	err := e.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		loan, err = tx.Loans().GetByIDForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		_, changed, err = e.Refresh(ctx, tx, loan)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	return loan, changed, nil
}

type ReconcileResult struct {
	Checked int `json:"checked"`
	Changed int `json:"changed"`
}

// Reconcile refreshes every loan and records a transition for each status
// that moved. One failing loan does not stop the sweep.
func (e *StatusEngine) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var result ReconcileResult

	loans, err := e.store.Loans().ListAll(ctx)
	if err != nil {
		return result, fmt.Errorf("list loans: %w", err)
	}

	var errs []error
	for _, listed := range loans {
		result.Checked++

		moved := false
		err := e.store.WithTx(ctx, func(tx repository.Store) error {
			loan, err := tx.Loans().GetByIDForUpdate(ctx, listed.ID)
			if err != nil {
				return err
			}

			previous := loan.Status
			status, changed, err := e.Refresh(ctx, tx, loan)
			if err != nil || !changed {
				return err
			}

			moved = true
			return tx.Transitions().Create(ctx, &domain.StatusTransition{
				LoanID:     loan.ID,
				FromStatus: previous,
				ToStatus:   status,
				Actor:      SystemActor,
				CreatedAt:  e.clock.Now().UTC(),
			})
		})
		switch {
		case err == nil:
			if moved {
				result.Changed++
			}
		case !errors.Is(err, repository.ErrNotFound):
			errs = append(errs, fmt.Errorf("reconcile loan %d: %w", listed.ID, err))
		}
	}

	e.log.WithFields(logrus.Fields{
		"checked": result.Checked,
		"changed": result.Changed,
		"failed":  len(errs),
	}).Info("status reconciliation finished")

	return result, errors.Join(errs...)
}
