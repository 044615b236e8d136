package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"

	"github.com/segyhp/microloan-engine/internal/domain"
	"github.com/segyhp/microloan-engine/internal/repository"
	"github.com/segyhp/microloan-engine/pkg/crypto"
	"github.com/segyhp/microloan-engine/pkg/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrUnauthorizedCallback = errors.New("unauthorized callback")

// Outcome is what happened to an authenticated callback. It is logged and
// returned to callers but never shown to the provider.
type Outcome string

const (
	OutcomeAdmitted       Outcome = "ADMITTED"
	OutcomeMalformed      Outcome = "MALFORMED"
	OutcomeProviderFailed Outcome = "PROVIDER_FAILED"
	OutcomeUnknownLoan    Outcome = "UNKNOWN_LOAN"
	OutcomeMissingFields  Outcome = "MISSING_FIELDS"
	OutcomeInvalidAmount  Outcome = "INVALID_AMOUNT"
	OutcomeNonPositive    Outcome = "NON_POSITIVE_AMOUNT"
	OutcomeOverpayment    Outcome = "OVERPAYMENT"
	OutcomeDuplicate      Outcome = "DUPLICATE_RECEIPT"
	OutcomeRaceLost       Outcome = "RACE_LOST"
)

// PayloadSealer encrypts the raw callback before it is stored.
type PayloadSealer interface {
	Encrypt(plaintext []byte) (string, error)
}

type CallbackAuth struct {
	Token      string
	Secret     string
	AllowedIPs []string
}

// WebhookProcessor turns authenticated payment callbacks into at most one
// ledger entry per receipt.
type WebhookProcessor struct {
	store     repository.Store
	status    *StatusEngine
	credit    *CreditEngine
	anomalies *AnomalyLog
	notifier  Notifier
	sealer    PayloadSealer
	auth      CallbackAuth
	currency  string
	clock     utils.Clock
	log       logrus.FieldLogger
}

type WebhookDeps struct {
	Store     repository.Store
	Status    *StatusEngine
	Credit    *CreditEngine
	Anomalies *AnomalyLog
	Notifier  Notifier
	Sealer    PayloadSealer
	Auth      CallbackAuth
	Currency  string
	Clock     utils.Clock
	Log       logrus.FieldLogger
}

func NewWebhookProcessor(deps WebhookDeps) *WebhookProcessor {
	return &WebhookProcessor{
		store:     deps.Store,
		status:    deps.Status,
		credit:    deps.Credit,
		anomalies: deps.Anomalies,
		notifier:  deps.Notifier,
		sealer:    deps.Sealer,
		auth:      deps.Auth,
		currency:  deps.Currency,
		clock:     deps.Clock,
		log:       deps.Log,
	}
}

// Authenticate checks the path token, the body signature when a secret is
// configured, and the source address when an allow-list is configured.
func (p *WebhookProcessor) Authenticate(token string, body []byte, signature, remoteIP string) error {
	if p.auth.Token == "" || !crypto.ConstantTimeEqual(token, p.auth.Token) {
		return fmt.Errorf("%w: token mismatch", ErrUnauthorizedCallback)
	}

	if p.auth.Secret != "" && !crypto.VerifyHMAC(p.auth.Secret, body, signature) {
		return fmt.Errorf("%w: bad signature", ErrUnauthorizedCallback)
	}

	if len(p.auth.AllowedIPs) > 0 && !ipAllowed(p.auth.AllowedIPs, remoteIP) {
		return fmt.Errorf("%w: source %s not allowed", ErrUnauthorizedCallback, remoteIP)
	}

	return nil
}

func ipAllowed(allowed []string, remote string) bool {
	ip := net.ParseIP(remote)
	if ip == nil {
		return false
	}
	return slices.ContainsFunc(allowed, func(entry string) bool {
		if _, network, err := net.ParseCIDR(entry); err == nil {
			return network.Contains(ip)
		}
		other := net.ParseIP(entry)
		return other != nil && other.Equal(ip)
	})
}

// Process runs an authenticated callback body through validation and
// admission. Checks that read the ledger run in one transaction holding
// the loan row lock, so two callbacks for the same loan cannot both pass
// the balance check. The returned error is only set for infrastructure
// failures; rejected callbacks are reported through the Outcome.
func (p *WebhookProcessor) Process(ctx context.Context, loanID int64, body []byte) (Outcome, error) {
	envelope, err := domain.ParseCallback(body)
	if err != nil {
		p.log.WithField("loan_id", loanID).WithError(err).Warn("malformed payment callback")
		return OutcomeMalformed, nil
	}

	callback := envelope.Body.STKCallback
	if !callback.Succeeded() {
		return OutcomeProviderFailed, nil
	}

	md := callback.Metadata()

	var (
		outcome Outcome
		anomaly *domain.AnomalyRecord
		payment *domain.Payment
	)

	err = p.store.WithTx(ctx, func(tx repository.Store) error {
		loan, err := tx.Loans().GetByIDForUpdate(ctx, loanID)
		if errors.Is(err, repository.ErrNotFound) {
			outcome = OutcomeUnknownLoan
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock loan: %w", err)
		}

		amountText, hasAmount := md.Value(domain.ItemAmount)
		receipt, hasReceipt := md.Value(domain.ItemReceipt)
		if !hasAmount || !hasReceipt || receipt == "" {
			outcome = OutcomeMissingFields
			return nil
		}

		amount, err := domain.ParseAmount(amountText)
		if err != nil {
			outcome = OutcomeInvalidAmount
			anomaly = newAnomaly(domain.AnomalyInvalidAmount, domain.LoanReference(loan.ID), domain.SeverityHigh, map[string]string{
				"amount":  amountText,
				"receipt": receipt,
			})
			return nil
		}

		if !amount.IsPositive() {
			outcome = OutcomeNonPositive
			anomaly = newAnomaly(domain.AnomalyNonPositiveAmount, domain.LoanReference(loan.ID), domain.SeverityHigh, map[string]string{
				"amount":  amount.String(),
				"receipt": receipt,
			})
			return nil
		}

		totalPaid, err := tx.Payments().GetTotalPaid(ctx, loan.ID)
		if err != nil {
			return fmt.Errorf("total paid: %w", err)
		}
		balance := domain.Balance(loan.Amount, totalPaid)
		if amount.GreaterThan(balance) {
			outcome = OutcomeOverpayment
			anomaly = newAnomaly(domain.AnomalyOverpayment, domain.LoanReference(loan.ID), domain.SeverityHigh, map[string]string{
				"amount":  amount.String(),
				"balance": balance.StringFixed(domain.CurrencyPlaces),
				"receipt": receipt,
			})
			return nil
		}

		exists, err := tx.Payments().ExistsByReceipt(ctx, receipt)
		if err != nil {
			return fmt.Errorf("receipt lookup: %w", err)
		}
		if exists {
			outcome = OutcomeDuplicate
			anomaly = newAnomaly(domain.AnomalyDuplicateReceipt, receipt, domain.SeverityMedium, map[string]string{
				"loan_id": fmt.Sprintf("%d", loan.ID),
			})
			return nil
		}

		phone, hasPhone := md.Value(domain.ItemPhoneNumber)
		if !hasPhone || phone == "" {
			client, err := tx.Clients().GetByID(ctx, loan.ClientID)
			if err != nil {
				return fmt.Errorf("client phone: %w", err)
			}
			phone = client.PhoneNumber
		}

		sealed, err := p.sealer.Encrypt(body)
		if err != nil {
			return fmt.Errorf("encrypt payload: %w", err)
		}

		payment = &domain.Payment{
			ID:                  uuid.New(),
			LoanID:              loan.ID,
			Amount:              amount,
			Receipt:             receipt,
			Phone:               phone,
			PaidAt:              p.clock.Now().UTC(),
			RawPayloadEncrypted: sealed,
		}
		if err := tx.Payments().Create(ctx, payment); err != nil {
			return err
		}

		if _, _, err := p.status.Refresh(ctx, tx, loan); err != nil {
			return err
		}
		if _, err := p.credit.Recompute(ctx, tx, loan.ClientID); err != nil {
			return err
		}

		outcome = OutcomeAdmitted
		return nil
	})

	if repository.IsDuplicateOf(err, repository.PaymentReceiptConstraint) {
		// A concurrent callback with the same receipt committed first.
		outcome, err, payment = OutcomeRaceLost, nil, nil
	}
	if err != nil {
		return "", err
	}

	if anomaly != nil {
		if recErr := p.anomalies.Record(ctx, anomaly); recErr != nil {
			p.log.WithFields(logrus.Fields{
				"category":  anomaly.Category,
				"reference": anomaly.Reference,
			}).WithError(recErr).Error("failed to record anomaly")
		}
	}

	if payment != nil {
		p.notifier.Enqueue(context.WithoutCancel(ctx), Notification{
			Phone:     payment.Phone,
			Message:   p.confirmationMessage(payment),
			Reference: payment.Receipt,
		})
	}

	p.log.WithFields(logrus.Fields{
		"loan_id": loanID,
		"outcome": outcome,
	}).Info("payment callback processed")

	return outcome, nil
}

func (p *WebhookProcessor) confirmationMessage(payment *domain.Payment) string {
	return fmt.Sprintf("Payment received: %s %s for Loan #%d. Receipt: %s.",
		p.currency, payment.Amount.StringFixed(domain.CurrencyPlaces), payment.LoanID, payment.Receipt)
}

func newAnomaly(category domain.AnomalyCategory, reference string, severity domain.Severity, details map[string]string) *domain.AnomalyRecord {
	return &domain.AnomalyRecord{
		Category:  category,
		Reference: reference,
		Severity:  severity,
		Details:   details,
	}
}
