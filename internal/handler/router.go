package handler

import (
	"net/http"

	"github.com/segyhp/microloan-engine/pkg/response"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Routes struct {
	Health   *HealthHandler
	Webhook  *WebhookHandler
	Admin    *AdminHandler
	Reports  *ReportHandler
	AdminKey string
	Log      logrus.FieldLogger
}

func NewRouter(routes Routes) *mux.Router {
	router := mux.NewRouter()
	router.Use(response.RecoveryMiddleware(routes.Log), response.LoggingMiddleware(routes.Log))

	// Health check
	router.HandleFunc("/health", routes.Health.Health).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", routes.Health.Ready).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	// The provider authenticates with the path token, not the API key.
	api.HandleFunc("/payments/callback/{token}/{loanId}", routes.Webhook.PaymentCallback).Methods(http.MethodPost)

	admin := api.NewRoute().Subrouter()
	admin.Use(RequireAPIKey(routes.AdminKey))

	admin.HandleFunc("/clients", routes.Admin.EnrollClient).Methods(http.MethodPost)
	admin.HandleFunc("/loans", routes.Admin.ApplyForLoan).Methods(http.MethodPost)
	admin.HandleFunc("/loans/{loanId}/decision", routes.Admin.DecideLoan).Methods(http.MethodPost)
	admin.HandleFunc("/anomalies", routes.Admin.RecentAnomalies).Methods(http.MethodGet)

	admin.HandleFunc("/reports/daily", routes.Reports.DailyCollections).Methods(http.MethodGet)
	admin.HandleFunc("/reports/outstanding", routes.Reports.Outstanding).Methods(http.MethodGet)
	admin.HandleFunc("/reports/overdue", routes.Reports.Overdue).Methods(http.MethodGet)
	admin.HandleFunc("/reports/monthly", routes.Reports.MonthlyPerformance).Methods(http.MethodGet)

	return router
}
