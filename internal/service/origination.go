package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segyhp/microloan-engine/internal/domain"
	"github.com/segyhp/microloan-engine/internal/repository"
	"github.com/segyhp/microloan-engine/pkg/crypto"
	customError "github.com/segyhp/microloan-engine/pkg/errors"
	"github.com/segyhp/microloan-engine/pkg/utils"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// OriginationService enrolls clients and runs the loan approval workflow.
// It never writes credit outputs other than the initial base limit.
type OriginationService struct {
	store    repository.Store
	credit   *CreditEngine
	sealer   PayloadSealer
	hashSalt string
	region   string
	clock    utils.Clock
	log      logrus.FieldLogger
}

func NewOriginationService(
	store repository.Store,
	credit *CreditEngine,
	sealer PayloadSealer,
	hashSalt string,
	region string,
	clock utils.Clock,
	log logrus.FieldLogger,
) *OriginationService {
	return &OriginationService{
		store:    store,
		credit:   credit,
		sealer:   sealer,
		hashSalt: hashSalt,
		region:   region,
		clock:    clock,
		log:      log,
	}
}

// EnrollClient creates a client with score 0 and the base limit. The
// national ID is stored encrypted alongside a salted hash used for dedup.
func (s *OriginationService) EnrollClient(ctx context.Context, request *domain.EnrollClientRequest) (*domain.Client, error) {
	phone, err := utils.NormalizePhone(request.Phone, s.region)
	if err != nil {
		return nil, customError.WrapInvalidPhone(request.Phone)
	}

	idNumber := strings.TrimSpace(request.IDNumber)
	encrypted, err := s.sealer.Encrypt([]byte(idNumber))
	if err != nil {
		return nil, fmt.Errorf("encrypt id number: %w", err)
	}

	client := &domain.Client{
		Name:              strings.TrimSpace(request.Name),
		PhoneNumber:       phone,
		IDNumberEncrypted: encrypted,
		IDNumberHash:      crypto.HashValue(s.hashSalt, idNumber),
		CreditScore:       MinCreditScore,
		MaxLoanLimit:      s.credit.BaseLimit(),
	}
	client.CreatedAt = s.clock.Now().UTC()
	client.UpdatedAt = client.CreatedAt

	if err := s.store.Clients().Create(ctx, client); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, customError.WrapClientAlreadyExists()
		}
		return nil, customError.WrapDatabaseError(err)
	}

	s.log.WithField("client_id", client.ID).Info("client enrolled")
	return client, nil
}

// ApplyForLoan creates a PENDING loan for the client. The amount may not
// exceed the client's current limit.
func (s *OriginationService) ApplyForLoan(ctx context.Context, request *domain.LoanApplicationRequest) (*domain.Loan, error) {
	if !request.Amount.Equal(domain.RoundCurrency(request.Amount)) {
		return nil, customError.WrapInvalidRequest(domain.ErrAmountPrecision)
	}

	dueDate, err := time.Parse("2006-01-02", request.DueDate)
	if err != nil {
		return nil, customError.WrapInvalidRequest(err)
	}

	today := utils.Today(s.clock)
	if dueDate.Before(today) {
		return nil, customError.WrapInvalidRequest(errors.New("due date is in the past"))
	}

	client, err := s.store.Clients().GetByID(ctx, request.ClientID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapClientNotFound(request.ClientID)
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	if request.Amount.GreaterThan(client.MaxLoanLimit) {
		return nil, customError.WrapLoanLimitExceeded(
			request.Amount.StringFixed(domain.CurrencyPlaces),
			client.MaxLoanLimit.StringFixed(domain.CurrencyPlaces),
		)
	}

	loan := &domain.Loan{
		ClientID:       client.ID,
		Amount:         request.Amount,
		Status:         domain.DeriveStatus(request.Amount, decimal.Zero, dueDate, today),
		ApprovalStatus: domain.ApprovalPending,
		DueDate:        dueDate,
		CreatedAt:      s.clock.Now().UTC(),
	}

	if err := s.store.Loans().Create(ctx, loan); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	s.log.WithFields(logrus.Fields{
		"loan_id":   loan.ID,
		"client_id": client.ID,
	}).Info("loan application created")

	return loan, nil
}

// DecideLoan approves or rejects a PENDING loan. Approval is refused when
// the amount exceeds the client's limit at decision time.
func (s *OriginationService) DecideLoan(ctx context.Context, loanID int64, request *domain.LoanDecisionRequest) (*domain.LoanDecisionResponse, error) {
	var loan *domain.Loan

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		loan, err = tx.Loans().GetByIDForUpdate(ctx, loanID)
		if errors.Is(err, repository.ErrNotFound) {
			return customError.WrapLoanNotFound(loanID)
		}
		if err != nil {
			return customError.WrapDatabaseError(err)
		}

		if loan.ApprovalStatus != domain.ApprovalPending {
			return customError.WrapLoanAlreadyDecided(loanID, string(loan.ApprovalStatus))
		}

		decision := domain.ApprovalRejected
		if request.Action == domain.DecisionApprove {
			client, err := tx.Clients().GetByID(ctx, loan.ClientID)
			if err != nil {
				return customError.WrapDatabaseError(err)
			}
			if loan.Amount.GreaterThan(client.MaxLoanLimit) {
				return customError.WrapLoanLimitExceeded(
					loan.Amount.StringFixed(domain.CurrencyPlaces),
					client.MaxLoanLimit.StringFixed(domain.CurrencyPlaces),
				)
			}
			decision = domain.ApprovalApproved
		}

		approver := request.Approver
		decidedAt := s.clock.Now().UTC()
		loan.ApprovalStatus = decision
		loan.ApprovedBy = &approver
		loan.ApprovedAt = &decidedAt

		if err := tx.Loans().UpdateApproval(ctx, loan); err != nil {
			return customError.WrapDatabaseError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"loan_id":  loan.ID,
		"decision": loan.ApprovalStatus,
		"approver": request.Approver,
	}).Info("loan decided")

	return &domain.LoanDecisionResponse{
		LoanID:         loan.ID,
		ApprovalStatus: loan.ApprovalStatus,
		ApprovedBy:     *loan.ApprovedBy,
		ApprovedAt:     *loan.ApprovedAt,
	}, nil
}
