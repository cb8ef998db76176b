package ledger_http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"ledger/internal/processing"
)

// NewRouter builds the full HTTP surface with the standard middleware stack.
func NewRouter(s LedgerService, p *processing.Group, metricsHandler http.Handler, allowedOrigins []string, l *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Location"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", metricsHandler)
	RegisterRoutes(r, s, p, l)
	return r
}

func RegisterRoutes(r chi.Router, s LedgerService, p *processing.Group, l *zap.Logger) {
	handler := NewLedgerHandler(s, l.With(zap.String("component", "LedgerHTTPHandler")))
	ops := NewOpsHandler(p, l.With(zap.String("component", "OpsHTTPHandler")))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Ledger service is healthy!"))
	})

	r.Route("/accounts", func(r chi.Router) {
		r.Post("/", handler.CreateAccountHandler)
		r.Get("/", handler.ListAccountsHandler)
		r.Get("/{id}", handler.GetAccountHandler)
	})

	r.Route("/payments", func(r chi.Router) {
		r.Post("/", handler.CreatePaymentHandler)
		r.Get("/", handler.ListPaymentsHandler)
		r.Get("/{id}", handler.GetPaymentHandler)
	})

	r.Route("/scheduled-payments", func(r chi.Router) {
		r.Post("/", handler.CreateScheduledPaymentHandler)
		r.Get("/{id}", handler.GetScheduledPaymentHandler)
		r.Delete("/{id}", handler.CancelScheduledPaymentHandler)
	})

	r.Route("/demo", func(r chi.Router) {
		r.Get("/set-based-validation/consistency-at-aggregate-threshold", handler.DemoAggregateThresholdHandler)
		r.Get("/set-based-validation/consistency-at-multiple-aggregate-threshold", handler.DemoMultipleAggregateThresholdHandler)
		r.Get("/trigger-account-snapshot", handler.DemoSnapshotHandler)
	})

	r.Route("/_ops", func(r chi.Router) {
		r.Get("/tep", ops.StatusHandler)
		r.Post("/restart-all", ops.RestartAllHandler)
		r.Post("/{processorName}/restart", ops.RestartHandler)
	})
}
