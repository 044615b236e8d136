package handler

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/segyhp/microloan-engine/internal/domain"
	"github.com/segyhp/microloan-engine/internal/service"
	"github.com/segyhp/microloan-engine/pkg/response"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	SignatureHeader = "X-Callback-Signature"
	maxCallbackBody = 1 << 20
)

type CallbackProcessor interface {
	Authenticate(token string, body []byte, signature, remoteIP string) error
	Process(ctx context.Context, loanID int64, body []byte) (service.Outcome, error)
}

// WebhookHandler receives payment callbacks. Once a caller is
// authenticated it always gets the same acknowledgement, whatever
// happened to the payment.
type WebhookHandler struct {
	processor         CallbackProcessor
	trustForwardedFor bool
	log               logrus.FieldLogger
}

func NewWebhookHandler(processor CallbackProcessor, trustForwardedFor bool, log logrus.FieldLogger) *WebhookHandler {
	return &WebhookHandler{
		processor:         processor,
		trustForwardedFor: trustForwardedFor,
		log:               log,
	}
}

func (h *WebhookHandler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBody))
	if err != nil {
		h.log.WithError(err).Warn("failed to read callback body")
		body = nil
	}

	remoteIP := h.remoteIP(r)
	if err := h.processor.Authenticate(vars["token"], body, r.Header.Get(SignatureHeader), remoteIP); err != nil {
		h.log.WithFields(logrus.Fields{
			"remote_ip": remoteIP,
			"reason":    err.Error(),
		}).Warn("rejected payment callback")
		response.Forbidden(w)
		return
	}

	loanID, err := strconv.ParseInt(vars["loanId"], 10, 64)
	if err != nil || loanID <= 0 {
		h.log.WithField("loan_id", vars["loanId"]).Warn("payment callback for unparsable loan id")
		response.Raw(w, http.StatusOK, domain.AcceptedAck)
		return
	}

	outcome, err := h.processor.Process(r.Context(), loanID, body)
	if err != nil {
		entry := h.log.WithFields(logrus.Fields{"loan_id": loanID, "outcome": outcome}).WithError(err)
		if errors.Is(err, context.Canceled) {
			entry.Warn("payment callback interrupted")
		} else {
			entry.Error("payment callback failed")
		}
	}

	response.Raw(w, http.StatusOK, domain.AcceptedAck)
}

// remoteIP is the connection's peer address, or the first hop of
// X-Forwarded-For when the service runs behind a trusted proxy.
func (h *WebhookHandler) remoteIP(r *http.Request) string {
	if h.trustForwardedFor {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			return strings.TrimSpace(first)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
