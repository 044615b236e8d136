package handler

import (
	"context"
	"net/http"

	"github.com/segyhp/microloan-engine/internal/domain"
	"github.com/segyhp/microloan-engine/pkg/response"

	"github.com/sirupsen/logrus"
)

type Reporter interface {
	DailyCollections(ctx context.Context) (*domain.DailyCollectionsReport, error)
	Outstanding(ctx context.Context) (*domain.OutstandingReport, error)
	Overdue(ctx context.Context) (*domain.OverdueReport, error)
	MonthlyPerformance(ctx context.Context) (*domain.MonthlyPerformanceReport, error)
}

type ReportHandler struct {
	reports Reporter
	log     logrus.FieldLogger
}

func NewReportHandler(reports Reporter, log logrus.FieldLogger) *ReportHandler {
	return &ReportHandler{reports: reports, log: log}
}

func (h *ReportHandler) DailyCollections(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.DailyCollections(r.Context())
	h.write(w, "daily collections", report, err)
}

func (h *ReportHandler) Outstanding(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.Outstanding(r.Context())
	h.write(w, "outstanding", report, err)
}

func (h *ReportHandler) Overdue(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.Overdue(r.Context())
	h.write(w, "overdue", report, err)
}

func (h *ReportHandler) MonthlyPerformance(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.MonthlyPerformance(r.Context())
	h.write(w, "monthly performance", report, err)
}

func (h *ReportHandler) write(w http.ResponseWriter, name string, report interface{}, err error) {
	if err != nil {
		h.log.WithField("report", name).WithError(err).Error("report failed")
		response.BusinessError(w, err)
		return
	}
	response.Success(w, report)
}
