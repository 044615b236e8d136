package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segyhp/microloan-engine/internal/domain"
	"github.com/segyhp/microloan-engine/internal/repository"
	"github.com/segyhp/microloan-engine/pkg/utils"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
)

const (
	MinCreditScore = 0
	MaxCreditScore = 100
)

var (
	completionWeight = decimal.NewFromInt(40)
	timelinessWeight = decimal.NewFromInt(40)
	repaymentWeight  = decimal.NewFromInt(20)
	hundred          = decimal.NewFromInt(100)
)

// ComputeCredit scores a client from the ledgers of all their loans. It
// reads nothing but its arguments, so the per-payment and nightly paths
// agree for the same ledger state.
func ComputeCredit(ledgers []domain.LoanLedger, baseLimit decimal.Decimal, loc *time.Location) domain.CreditResult {
	if len(ledgers) == 0 {
		return domain.CreditResult{Score: MinCreditScore, Limit: domain.RoundCurrency(baseLimit)}
	}

	var (
		paidCount      int64
		onTimeCount    int64
		totalPaid      = decimal.Zero
		totalPrincipal = decimal.Zero
	)
	for _, l := range ledgers {
		totalPaid = totalPaid.Add(l.TotalPaid)
		totalPrincipal = totalPrincipal.Add(l.Principal)
		if !l.IsPaid() {
			continue
		}
		paidCount++
		if l.PaidOnTime(loc) {
			onTimeCount++
		}
	}

	completion := decimal.NewFromInt(paidCount).Div(decimal.NewFromInt(int64(len(ledgers))))

	timeliness := decimal.Zero
	if paidCount > 0 {
		timeliness = decimal.NewFromInt(onTimeCount).Div(decimal.NewFromInt(paidCount))
	}

	repayment := decimal.Zero
	if totalPrincipal.IsPositive() {
		repayment = decimal.Min(decimal.NewFromInt(1), totalPaid.Div(totalPrincipal))
	}

	raw := completion.Mul(completionWeight).
		Add(timeliness.Mul(timelinessWeight)).
		Add(repayment.Mul(repaymentWeight))

	score := int(raw.Round(0).IntPart())
	if score < MinCreditScore {
		score = MinCreditScore
	}
	if score > MaxCreditScore {
		score = MaxCreditScore
	}

	multiplier := decimal.NewFromInt(1).Add(decimal.NewFromInt(int64(score)).Div(hundred))
	return domain.CreditResult{
		Score: score,
		Limit: domain.RoundCurrency(baseLimit.Mul(multiplier)),
	}
}

// CreditEngine persists credit results for clients.
type CreditEngine struct {
	store       repository.Store
	baseLimit   decimal.Decimal
	location    *time.Location
	concurrency int
	clock       utils.Clock
	log         logrus.FieldLogger
}

func NewCreditEngine(store repository.Store, baseLimit decimal.Decimal, location *time.Location, concurrency int, clock utils.Clock, log logrus.FieldLogger) *CreditEngine {
	if concurrency <= 0 {
		concurrency = 1
	}
	if location == nil {
		location = time.UTC
	}
	return &CreditEngine{
		store:       store,
		baseLimit:   baseLimit,
		location:    location,
		concurrency: concurrency,
		clock:       clock,
		log:         log,
	}
}

// BaseLimit is the limit of a client without history.
func (e *CreditEngine) BaseLimit() decimal.Decimal {
	return domain.RoundCurrency(e.baseLimit)
}

// Recompute scores one client against the ledger visible to tx and stores
// the result.
func (e *CreditEngine) Recompute(ctx context.Context, tx repository.Store, clientID int64) (domain.CreditResult, error) {
	ledgers, err := tx.Payments().GetLedgerByClient(ctx, clientID)
	if err != nil {
		return domain.CreditResult{}, fmt.Errorf("ledger for client %d: %w", clientID, err)
	}

	result := ComputeCredit(ledgers, e.baseLimit, e.location)
	if err := tx.Clients().UpdateCredit(ctx, clientID, result, e.clock.Now().UTC()); err != nil {
		return domain.CreditResult{}, fmt.Errorf("store credit for client %d: %w", clientID, err)
	}

	return result, nil
}

type SweepResult struct {
	Total   int `json:"total"`
	Updated int `json:"updated"`
}

// RecomputeAll runs Recompute for every client on a bounded pool. Each
// client is scored in its own transaction holding the client's loan rows,
// so a payment admitted meanwhile is either seen or waited for. Failures
// are collected and returned together once every client has been tried.
func (e *CreditEngine) RecomputeAll(ctx context.Context) (SweepResult, error) {
	ids, err := e.store.Clients().ListIDs(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list clients: %w", err)
	}

	var updated atomic.Int64
	p := pool.New().WithMaxGoroutines(e.concurrency).WithContext(ctx)
	for _, id := range ids {
		p.Go(func(ctx context.Context) error {
			err := e.store.WithTx(ctx, func(tx repository.Store) error {
				if err := tx.Loans().LockByClient(ctx, id); err != nil {
					return fmt.Errorf("lock loans of client %d: %w", id, err)
				}
				_, err := e.Recompute(ctx, tx, id)
				return err
			})
			if err != nil {
				return err
			}
			updated.Add(1)
			return nil
		})
	}
	err = p.Wait()

	result := SweepResult{Total: len(ids), Updated: int(updated.Load())}
	e.log.WithFields(logrus.Fields{
		"total":   result.Total,
		"updated": result.Updated,
	}).Info("credit sweep finished")

	return result, err
}
