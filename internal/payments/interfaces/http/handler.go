package http

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solar-portal/internal/audit"
	"solar-portal/internal/auth"
	paymentapp "solar-portal/internal/payments/application"
	payments "solar-portal/internal/payments/domain"
	"solar-portal/internal/platform/httpx"
)

// Handler provides payment HTTP endpoints.
type Handler struct {
	service *paymentapp.Service
	audit   audit.Logger
	log     logrus.FieldLogger
}

// NewHandler constructs a handler.
func NewHandler(service *paymentapp.Service, auditLogger audit.Logger, log logrus.FieldLogger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("payments handler: nil service")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{service: service, audit: auditLogger, log: log.WithField("component", "payments_http")}, nil
}

// Register mounts the payment routes. signed wraps the provider webhook.
func (h *Handler) Register(r *mux.Router, signed func(http.Handler) http.Handler) {
	api := r.PathPrefix("/api/v1/payments").Subrouter()
	api.HandleFunc("/intents", h.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/{intentID}", h.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/{intentID}/confirm", h.handleConfirm).Methods(http.MethodPost)

	var webhook http.Handler = http.HandlerFunc(h.handleWebhook)
	if signed != nil {
		webhook = signed(webhook)
	}
	r.Handle("/webhooks/payments", webhook).Methods(http.MethodPost)
}

type intentRequest struct {
	ProviderIntentID string          `json:"provider_intent_id"`
	ApplicationID    string          `json:"application_id,omitempty"`
	InvoiceID        string          `json:"invoice_id,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Type             string          `json:"type,omitempty"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.RequirePrincipal(w, r)
	if !ok {
		return
	}
	var req intentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	t, err := h.service.RegisterIntent(r.Context(), p, payments.Intent{
		ProviderIntentID: req.ProviderIntentID,
		ApplicationID:    req.ApplicationID,
		InvoiceID:        req.InvoiceID,
		Amount:           req.Amount,
		Type:             req.Type,
	})
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	audit.Record(r.Context(), h.audit, h.log, audit.FromRequest(r, string(auth.ActionRegisterPayment), "payment", t.ProviderIntentID, req))
	httpx.WriteJSON(w, http.StatusCreated, t)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.RequirePrincipal(w, r)
	if !ok {
		return
	}
	t, err := h.service.GetByIntent(r.Context(), p, mux.Vars(r)["intentID"])
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}

type confirmRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.RequireAction(w, r, auth.ActionConfirmPayment); !ok {
		return
	}
	var req confirmRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	intentID := mux.Vars(r)["intentID"]
	res, err := h.service.ConfirmPayment(r.Context(), intentID, req.Status)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	audit.Record(r.Context(), h.audit, h.log, audit.FromRequest(r, string(auth.ActionConfirmPayment), "payment", intentID, req))
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var event paymentapp.Event
	if err := httpx.DecodeJSON(r, &event); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	t, err := h.service.HandleEvent(r.Context(), event)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}
