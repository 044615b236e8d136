package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/segyhp/microloan-engine/internal/domain"
	"github.com/segyhp/microloan-engine/pkg/crypto"
	customError "github.com/segyhp/microloan-engine/pkg/errors"
	"github.com/segyhp/microloan-engine/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	APIKeyHeader   = "X-API-Key"
	ApproverHeader = "X-Approver"
)

type Originator interface {
	EnrollClient(ctx context.Context, request *domain.EnrollClientRequest) (*domain.Client, error)
	ApplyForLoan(ctx context.Context, request *domain.LoanApplicationRequest) (*domain.Loan, error)
	DecideLoan(ctx context.Context, loanID int64, request *domain.LoanDecisionRequest) (*domain.LoanDecisionResponse, error)
}

type AnomalyReader interface {
	Recent(ctx context.Context, limit int) ([]*domain.AnomalyRecord, error)
}

// AdminHandler serves the operator API: enrollment, loan applications,
// approval decisions and the anomaly feed.
type AdminHandler struct {
	origination Originator
	anomalies   AnomalyReader
	validator   *validator.Validate
	log         logrus.FieldLogger
}

func NewAdminHandler(origination Originator, anomalies AnomalyReader, log logrus.FieldLogger) *AdminHandler {
	return &AdminHandler{
		origination: origination,
		anomalies:   anomalies,
		validator:   NewValidator(),
		log:         log,
	}
}

// RequireAPIKey guards the operator routes. An empty configured key
// locks them entirely.
func RequireAPIKey(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" || !crypto.ConstantTimeEqual(r.Header.Get(APIKeyHeader), apiKey) {
				response.BusinessError(w, customError.WrapUnauthorized())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *AdminHandler) EnrollClient(w http.ResponseWriter, r *http.Request) {
	var req domain.EnrollClientRequest
	if !h.decode(w, r, &req) {
		return
	}

	client, err := h.origination.EnrollClient(r.Context(), &req)
	if err != nil {
		h.fail(w, "enroll client", err)
		return
	}

	response.Created(w, client)
}

func (h *AdminHandler) ApplyForLoan(w http.ResponseWriter, r *http.Request) {
	var req domain.LoanApplicationRequest
	if !h.decode(w, r, &req) {
		return
	}

	loan, err := h.origination.ApplyForLoan(r.Context(), &req)
	if err != nil {
		h.fail(w, "apply for loan", err)
		return
	}

	response.Created(w, loan)
}

func (h *AdminHandler) DecideLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := strconv.ParseInt(mux.Vars(r)["loanId"], 10, 64)
	if err != nil || loanID <= 0 {
		response.BadRequest(w, "Invalid loan ID", err)
		return
	}

	var req domain.LoanDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return
	}
	req.Action = domain.LoanDecisionAction(strings.ToUpper(string(req.Action)))
	req.Approver = strings.TrimSpace(r.Header.Get(ApproverHeader))

	if err := h.validator.Struct(req); err != nil {
		response.BadRequest(w, "Validation failed", err)
		return
	}

	decision, err := h.origination.DecideLoan(r.Context(), loanID, &req)
	if err != nil {
		h.fail(w, "decide loan", err)
		return
	}

	response.Success(w, decision)
}

func (h *AdminHandler) RecentAnomalies(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(w, "Invalid limit", err)
			return
		}
		limit = n
	}

	anomalies, err := h.anomalies.Recent(r.Context(), limit)
	if err != nil {
		h.fail(w, "list anomalies", customError.WrapDatabaseError(err))
		return
	}
	if anomalies == nil {
		anomalies = []*domain.AnomalyRecord{}
	}

	response.Success(w, anomalies)
}

func (h *AdminHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		response.BadRequest(w, "Validation failed", err)
		return false
	}
	return true
}

func (h *AdminHandler) fail(w http.ResponseWriter, operation string, err error) {
	if code := customError.CodeOf(err); code == "" || code == customError.ErrCodeDatabaseError {
		h.log.WithField("operation", operation).WithError(err).Error("admin request failed")
	}
	response.BusinessError(w, err)
}
