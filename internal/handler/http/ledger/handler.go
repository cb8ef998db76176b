package ledger_http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ledger/internal/app/ledger"
	"ledger/internal/domain"
	"ledger/internal/processing"
)

// LedgerService is the part of the application service the HTTP layer uses.
type LedgerService interface {
	CreateAccount(ctx context.Context, email string) (*domain.AccountView, error)
	GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.AccountView, error)
	ListAccounts(ctx context.Context) ([]domain.AccountView, error)
	MakePayment(ctx context.Context, source, destination uuid.UUID, amount int64) (uuid.UUID, error)
	MakeScheduledPayment(ctx context.Context, source, destination uuid.UUID, amount int64, settlementInstant time.Time) (uuid.UUID, error)
	CancelScheduledPayment(ctx context.Context, paymentID uuid.UUID) error
	GetPayment(ctx context.Context, paymentID uuid.UUID) (*domain.PaymentView, error)
	ListPayments(ctx context.Context) ([]domain.PaymentView, error)
	GetScheduledPayment(ctx context.Context, paymentID uuid.UUID) (*domain.PaymentView, error)
	DemoConsistencyAtAggregateThreshold(ctx context.Context) (*ledger.BatchResult, error)
	DemoConsistencyAtMultipleAggregateThreshold(ctx context.Context) (*ledger.BatchResult, error)
	DemoTriggerAccountSnapshot(ctx context.Context) (*ledger.SnapshotReport, error)
}

type LedgerHandler struct {
	service LedgerService
	logger  *zap.Logger
}

func NewLedgerHandler(s LedgerService, l *zap.Logger) *LedgerHandler {
	return &LedgerHandler{service: s, logger: l}
}

type CreateAccountRequest struct {
	EmailAddress string `json:"emailAddress"`
}

type AccountResponse struct {
	ID           uuid.UUID `json:"id"`
	EmailAddress string    `json:"emailAddress"`
}

type CreatePaymentRequest struct {
	SourceBankAccountID      uuid.UUID `json:"sourceBankAccountId"`
	DestinationBankAccountID uuid.UUID `json:"destinationBankAccountId"`
	Amount                   int64     `json:"amount"`
}

type CreateScheduledPaymentRequest struct {
	CreatePaymentRequest
	SettlementInitiationTime time.Time `json:"settlementInitiationTime"`
}

type IDResponse struct {
	ID uuid.UUID `json:"id"`
}

func (h *LedgerHandler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body for CreateAccount", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	account, err := h.service.CreateAccount(r.Context(), req.EmailAddress)
	if err != nil {
		h.writeError(w, "Failed to create account", err)
		return
	}

	w.Header().Set("Location", "/accounts/"+account.AccountID.String())
	h.writeJSON(w, http.StatusCreated, AccountResponse{ID: account.AccountID, EmailAddress: account.EmailAddress})
}

func (h *LedgerHandler) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ListAccounts(r.Context())
	if err != nil {
		h.writeError(w, "Failed to list accounts", err)
		return
	}
	h.writeJSON(w, http.StatusOK, views)
}

func (h *LedgerHandler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	view, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		h.writeError(w, "Failed to get account", err, zap.String("account_id", id.String()))
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *LedgerHandler) CreatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body for CreatePayment", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	id, err := h.service.MakePayment(r.Context(), req.SourceBankAccountID, req.DestinationBankAccountID, req.Amount)
	if err != nil {
		h.writeError(w, "Failed to create payment", err)
		return
	}

	w.Header().Set("Location", "/payments/"+id.String())
	h.writeJSON(w, http.StatusCreated, IDResponse{ID: id})
}

func (h *LedgerHandler) ListPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ListPayments(r.Context())
	if err != nil {
		h.writeError(w, "Failed to list payments", err)
		return
	}
	h.writeJSON(w, http.StatusOK, views)
}

func (h *LedgerHandler) GetPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	view, err := h.service.GetPayment(r.Context(), id)
	if err != nil {
		h.writeError(w, "Failed to get payment", err, zap.String("payment_id", id.String()))
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *LedgerHandler) CreateScheduledPaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduledPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body for CreateScheduledPayment", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	id, err := h.service.MakeScheduledPayment(r.Context(),
		req.SourceBankAccountID, req.DestinationBankAccountID, req.Amount, req.SettlementInitiationTime)
	if err != nil {
		h.writeError(w, "Failed to create scheduled payment", err)
		return
	}

	w.Header().Set("Location", "/scheduled-payments/"+id.String())
	h.writeJSON(w, http.StatusCreated, IDResponse{ID: id})
}

func (h *LedgerHandler) GetScheduledPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	view, err := h.service.GetScheduledPayment(r.Context(), id)
	if err != nil {
		h.writeError(w, "Failed to get scheduled payment", err, zap.String("payment_id", id.String()))
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *LedgerHandler) CancelScheduledPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.CancelScheduledPayment(r.Context(), id); err != nil {
		h.writeError(w, "Failed to cancel scheduled payment", err, zap.String("payment_id", id.String()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LedgerHandler) DemoAggregateThresholdHandler(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.DemoConsistencyAtAggregateThreshold(r.Context())
	if err != nil {
		h.writeError(w, "Demo failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *LedgerHandler) DemoMultipleAggregateThresholdHandler(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.DemoConsistencyAtMultipleAggregateThreshold(r.Context())
	if err != nil {
		h.writeError(w, "Demo failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *LedgerHandler) DemoSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.DemoTriggerAccountSnapshot(r.Context())
	if err != nil {
		h.writeError(w, "Demo failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// OpsHandler exposes the tracking processors.
type OpsHandler struct {
	processors *processing.Group
	logger     *zap.Logger
}

func NewOpsHandler(p *processing.Group, l *zap.Logger) *OpsHandler {
	return &OpsHandler{processors: p, logger: l}
}

type RestartResponse struct {
	Restarted []string `json:"restarted"`
}

func (h *OpsHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, h.processors.Statuses())
}

func (h *OpsHandler) RestartHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "processorName")
	p, err := h.processors.Get(name)
	if err != nil {
		writeError(w, h.logger, "Failed to restart processor", err, zap.String("processor", name))
		return
	}
	if err := p.Reset(r.Context()); err != nil {
		writeError(w, h.logger, "Failed to restart processor", err, zap.String("processor", name))
		return
	}
	h.logger.Info("Processor restarted", zap.String("processor", name))
	writeJSON(w, h.logger, http.StatusOK, RestartResponse{Restarted: []string{name}})
}

func (h *OpsHandler) RestartAllHandler(w http.ResponseWriter, r *http.Request) {
	names, err := h.processors.ResetAll(r.Context())
	if err != nil {
		writeError(w, h.logger, "Failed to restart processors", err, zap.Strings("restarted", names))
		return
	}
	h.logger.Info("Processors restarted", zap.Strings("restarted", names))
	writeJSON(w, h.logger, http.StatusOK, RestartResponse{Restarted: names})
}

func (h *LedgerHandler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		h.logger.Warn("Invalid id format", zap.String("id", raw), zap.Error(err))
		http.Error(w, "Invalid id format", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *LedgerHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	writeJSON(w, h.logger, status, body)
}

func (h *LedgerHandler) writeError(w http.ResponseWriter, msg string, err error, fields ...zap.Field) {
	writeError(w, h.logger, msg, err, fields...)
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to write JSON response", zap.Error(err))
	}
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrPaymentNotFound),
		errors.Is(err, processing.ErrUnknownProcessor):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrStateConflict),
		errors.Is(err, domain.ErrAccountAlreadyExists),
		errors.Is(err, domain.ErrPaymentAlreadyExists),
		errors.Is(err, domain.ErrEmailAddressInUse),
		errors.Is(err, processing.ErrNotResettable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, msg string, err error, fields ...zap.Field) {
	status := statusFor(err)
	fields = append(fields, zap.Error(err))
	if status == http.StatusInternalServerError {
		logger.Error(msg, fields...)
		http.Error(w, "Internal server error", status)
		return
	}
	logger.Warn(msg, fields...)
	http.Error(w, err.Error(), status)
}
