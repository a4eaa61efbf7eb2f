package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solar-portal/internal/audit"
	"solar-portal/internal/auth"
	billingapp "solar-portal/internal/billing/application"
	billing "solar-portal/internal/billing/domain"
	"solar-portal/internal/billing/interfaces"
	"solar-portal/internal/observability/metrics"
	"solar-portal/internal/platform/apperr"
	"solar-portal/internal/platform/httpx"
)

// Handler provides billing and invoice HTTP endpoints.
type Handler struct {
	service *billingapp.Service
	audit   audit.Logger
	log     logrus.FieldLogger
}

// NewHandler constructs a handler.
func NewHandler(service *billingapp.Service, auditLogger audit.Logger, log logrus.FieldLogger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("billing handler: nil service")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{service: service, audit: auditLogger, log: log.WithField("component", "billing_http")}, nil
}

// Register mounts the billing routes. signed wraps the meter ingest route.
func (h *Handler) Register(r *mux.Router, signed func(http.Handler) http.Handler) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/billing/monthly", h.handleGenerate).Methods(http.MethodPost)
	api.HandleFunc("/billing/usage", h.handleUsage).Methods(http.MethodGet)
	api.HandleFunc("/billing/report.xlsx", h.handleReport).Methods(http.MethodGet)
	api.HandleFunc("/invoices", h.handleList).Methods(http.MethodGet)
	api.HandleFunc("/invoices/{invoiceID}", h.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/invoices/{invoiceID}/export.{format:pdf|xlsx}", h.handleExport).Methods(http.MethodGet)

	var ingest http.Handler = http.HandlerFunc(h.handleIngest)
	if signed != nil {
		ingest = signed(ingest)
	}
	r.Handle("/ingest/meter-readings", ingest).Methods(http.MethodPost)
}

type generateRequest struct {
	Month            int              `json:"month"`
	Year             int              `json:"year"`
	RatePerKWh       *decimal.Decimal `json:"rate_per_kwh,omitempty"`
	CreditRatePerKWh *decimal.Decimal `json:"credit_rate_per_kwh,omitempty"`
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.RequireAction(w, r, auth.ActionRunBilling); !ok {
		return
	}
	var req generateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	period, err := billing.NewPeriod(req.Year, req.Month)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	override := billing.RateOverride{RatePerKWh: req.RatePerKWh, CreditRatePerKWh: req.CreditRatePerKWh}
	report, err := h.service.GenerateMonthlyBills(r.Context(), period, override)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	audit.Record(r.Context(), h.audit, h.log, audit.FromRequest(r, string(auth.ActionRunBilling), "billing_period", period.String(), map[string]int{
		"created": len(report.Created),
		"skipped": len(report.Skipped),
		"failed":  len(report.Failed),
	}))
	httpx.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.RequirePrincipal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	period, err := periodQuery(r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	override, err := rateOverrideQuery(r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	usage, err := h.service.AggregateMonth(r.Context(), p, q.Get("application_id"), period, override)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, usage)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.RequirePrincipal(w, r)
	if !ok {
		return
	}
	period, err := periodQuery(r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	bills, err := h.service.MonthlyReport(r.Context(), p, period)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	start := time.Now()
	data, err := interfaces.BuildMonthlyReportXLSX(period, bills)
	metrics.ObserveExport("report_xlsx", metrics.Result(err), time.Since(start))
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	writeFile(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "billing-"+period.String()+".xlsx", data)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.RequirePrincipal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := billing.InvoiceFilter{
		ApplicationID: q.Get("application_id"),
		Type:          billing.InvoiceType(q.Get("type")),
		Status:        billing.InvoiceStatus(q.Get("status")),
	}
	if q.Get("year") != "" || q.Get("month") != "" {
		period, err := periodQuery(r)
		if err != nil {
			httpx.WriteError(w, h.log, err)
			return
		}
		filter.Period = &period
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httpx.WriteError(w, h.log, apperr.New(apperr.Validation, "limit must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}
	invoices, err := h.service.ListInvoices(r.Context(), p, filter)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, invoices)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.RequirePrincipal(w, r)
	if !ok {
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), p, mux.Vars(r)["invoiceID"])
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, inv)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.RequirePrincipal(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	inv, err := h.service.GetInvoice(r.Context(), p, vars["invoiceID"])
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}

	format := vars["format"]
	start := time.Now()
	var (
		data        []byte
		contentType string
	)
	switch format {
	case "pdf":
		data, err = interfaces.BuildInvoicePDF(inv)
		contentType = "application/pdf"
	default:
		data, err = interfaces.BuildInvoiceXLSX(inv)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	metrics.ObserveExport("invoice_"+format, metrics.Result(err), time.Since(start))
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	writeFile(w, contentType, "invoice-"+inv.ID+"."+format, data)
}

type readingRequest struct {
	ApplicationID string          `json:"application_id"`
	ReadingDate   time.Time       `json:"reading_date"`
	KWhGenerated  decimal.Decimal `json:"kwh_generated"`
	KWhExported   decimal.Decimal `json:"kwh_exported"`
	KWhImported   decimal.Decimal `json:"kwh_imported"`
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req readingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	reading, err := h.service.RecordReading(r.Context(), billingapp.ReadingInput{
		ApplicationID: req.ApplicationID,
		ReadingDate:   req.ReadingDate,
		KWhGenerated:  req.KWhGenerated,
		KWhExported:   req.KWhExported,
		KWhImported:   req.KWhImported,
	})
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, reading)
}

func periodQuery(r *http.Request) (billing.Period, error) {
	q := r.URL.Query()
	year, err := strconv.Atoi(strings.TrimSpace(q.Get("year")))
	if err != nil {
		return billing.Period{}, billing.ErrInvalidPeriod
	}
	month, err := strconv.Atoi(strings.TrimSpace(q.Get("month")))
	if err != nil {
		return billing.Period{}, billing.ErrInvalidPeriod
	}
	return billing.NewPeriod(year, month)
}

func rateOverrideQuery(r *http.Request) (billing.RateOverride, error) {
	var override billing.RateOverride
	q := r.URL.Query()
	for key, dst := range map[string]**decimal.Decimal{
		"rate_per_kwh":        &override.RatePerKWh,
		"credit_rate_per_kwh": &override.CreditRatePerKWh,
	} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		value, err := decimal.NewFromString(raw)
		if err != nil {
			return billing.RateOverride{}, apperr.Wrap(apperr.Validation, key+" must be a number", err)
		}
		*dst = &value
	}
	return override, nil
}

func writeFile(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
