package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solar-portal/internal/audit"
	"solar-portal/internal/auth"
	biddingapp "solar-portal/internal/bidding/application"
	bidding "solar-portal/internal/bidding/domain"
	"solar-portal/internal/platform/httpx"
)

// Handler provides bid session HTTP endpoints.
type Handler struct {
	service *biddingapp.Service
	audit   audit.Logger
	limiter *auth.RateLimiter
	log     logrus.FieldLogger
}

// NewHandler constructs a handler. A nil limiter disables submission throttling.
func NewHandler(service *biddingapp.Service, auditLogger audit.Logger, limiter *auth.RateLimiter, log logrus.FieldLogger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("bidding handler: nil service")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{service: service, audit: auditLogger, limiter: limiter, log: log.WithField("component", "bidding_http")}, nil
}

// Register mounts the bidding routes.
func (h *Handler) Register(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/applications/{applicationID}/bid-session", h.handleOpen).Methods(http.MethodPut)
	api.HandleFunc("/applications/{applicationID}/bid-session", h.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/applications/{applicationID}/bids", h.handleListBids).Methods(http.MethodGet)
	api.Handle("/applications/{applicationID}/bids", h.limiter.Wrap(http.HandlerFunc(h.handleSubmit))).Methods(http.MethodPost)
	api.HandleFunc("/bids/{bidID}/select", h.handleSelect).Methods(http.MethodPost)
	api.HandleFunc("/bids/{bidID}", h.handleUpdateStatus).Methods(http.MethodPatch)
	api.HandleFunc("/bid-sessions/sweep", h.handleSweep).Methods(http.MethodPost)
}

type sessionResponse struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	Status        string    `json:"status"`
	StartedAt     time.Time `json:"started_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func toSession(s *bidding.Session) sessionResponse {
	return sessionResponse{
		ID:            s.ID,
		ApplicationID: s.ApplicationID,
		Status:        string(s.Status),
		StartedAt:     s.StartedAt,
		ExpiresAt:     s.ExpiresAt,
	}
}

type bidResponse struct {
	ID             string          `json:"id"`
	ApplicationID  string          `json:"application_id"`
	SessionID      string          `json:"session_id"`
	InstallerID    string          `json:"installer_id"`
	OrganizationID string          `json:"organization_id"`
	PackageID      string          `json:"package_id,omitempty"`
	Price          decimal.Decimal `json:"price"`
	Proposal       string          `json:"proposal"`
	Warranty       string          `json:"warranty"`
	EstimatedDays  int             `json:"estimated_days"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func toBid(b *bidding.Bid) bidResponse {
	return bidResponse{
		ID:             b.ID,
		ApplicationID:  b.ApplicationID,
		SessionID:      b.SessionID,
		InstallerID:    b.InstallerID,
		OrganizationID: b.OrganizationID,
		PackageID:      b.PackageID,
		Price:          b.Price,
		Proposal:       b.Proposal,
		Warranty:       b.Warranty,
		EstimatedDays:  b.EstimatedDays,
		Status:         string(b.Status),
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}
}

type openRequest struct {
	DurationHours *float64 `json:"duration_hours,omitempty"`
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.RequirePrincipal(w, r)
	if !ok {
		return
	}
	req := openRequest{}
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, h.log, err)
			return
		}
	}
	duration := bidding.DefaultSessionDuration
	if req.DurationHours != nil {
		hours := *req.DurationHours
		if !(hours > 0 && hours <= bidding.MaxSessionDuration.Hours()) {
			httpx.WriteError(w, h.log, bidding.ErrInvalidDuration)
			return
		}
		duration = time.Duration(hours * float64(time.Hour))
	}
	applicationID := mux.Vars(r)["applicationID"]
	session, err := h.service.OpenOrExtendSession(r.Context(), p, applicationID, duration)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	audit.Record(r.Context(), h.audit, h.log, audit.FromRequest(r, string(auth.ActionOpenSession), "bid_session", session.ID, map[string]any{
		"application_id": applicationID,
		"expires_at":     session.ExpiresAt,
	}))
	httpx.WriteJSON(w, http.StatusOK, toSession(session))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.RequirePrincipal(w, r)
	if !ok {
		return
	}
	session, err := h.service.GetSession(r.Context(), p, mux.Vars(r)["applicationID"])
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toSession(session))
}

func (h *Handler) handleListBids(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.RequirePrincipal(w, r)
	if !ok {
		return
	}
	bids, err := h.service.ListBids(r.Context(), p, mux.Vars(r)["applicationID"])
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	out := make([]bidResponse, 0, len(bids))
	for i := range bids {
		out = append(out, toBid(&bids[i]))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

type submitRequest struct {
	OrganizationID string          `json:"organization_id,omitempty"`
	PackageID      string          `json:"package_id,omitempty"`
	Price          decimal.Decimal `json:"price"`
	Proposal       string          `json:"proposal"`
	Warranty       string          `json:"warranty"`
	EstimatedDays  int             `json:"estimated_days"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.RequirePrincipal(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	orgID := req.OrganizationID
	if orgID == "" {
		orgID = p.OrganizationID
	}
	bid, err := h.service.SubmitBid(r.Context(), p, mux.Vars(r)["applicationID"], orgID, bidding.BidFields{
		PackageID:     req.PackageID,
		Price:         req.Price,
		Proposal:      req.Proposal,
		Warranty:      req.Warranty,
		EstimatedDays: req.EstimatedDays,
	})
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	audit.Record(r.Context(), h.audit, h.log, audit.FromRequest(r, string(auth.ActionSubmitBid), "bid", bid.ID, req))
	httpx.WriteJSON(w, http.StatusCreated, toBid(bid))
}

type selectionResponse struct {
	Session  sessionResponse `json:"session"`
	Accepted bidResponse     `json:"accepted"`
	Rejected int64           `json:"rejected"`
}

func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.RequirePrincipal(w, r)
	if !ok {
		return
	}
	bidID := mux.Vars(r)["bidID"]
	sel, err := h.service.SelectBid(r.Context(), p, bidID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	audit.Record(r.Context(), h.audit, h.log, audit.FromRequest(r, string(auth.ActionSelectBid), "bid", bidID, map[string]any{
		"session_id": sel.Session.ID,
		"rejected":   sel.Rejected,
	}))
	httpx.WriteJSON(w, http.StatusOK, selectionResponse{
		Session:  toSession(sel.Session),
		Accepted: toBid(sel.Accepted),
		Rejected: sel.Rejected,
	})
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.RequirePrincipal(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	bidID := mux.Vars(r)["bidID"]
	bid, err := h.service.UpdateBidStatus(r.Context(), p, bidID, bidding.BidStatus(req.Status))
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	audit.Record(r.Context(), h.audit, h.log, audit.FromRequest(r, string(auth.ActionUpdateBid), "bid", bidID, req))
	httpx.WriteJSON(w, http.StatusOK, toBid(bid))
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.RequireAction(w, r, auth.ActionRunSweep); !ok {
		return
	}
	report, err := h.service.SweepExpiredSessions(r.Context(), time.Time{})
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	audit.Record(r.Context(), h.audit, h.log, audit.FromRequest(r, string(auth.ActionRunSweep), "bid_session", "*", report))
	httpx.WriteJSON(w, http.StatusOK, report)
}
