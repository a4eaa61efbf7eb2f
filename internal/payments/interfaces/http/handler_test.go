package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"solar-portal/internal/auth"
	bidding "solar-portal/internal/bidding/domain"
	paymentapp "solar-portal/internal/payments/application"
	payments "solar-portal/internal/payments/domain"
	"solar-portal/internal/storage/memory"
)

var secret = []byte("webhook-secret")

func newTestRouter(t *testing.T) (*mux.Router, *memory.DB) {
	t.Helper()
	db := memory.New()
	db.PutApplication(bidding.Application{ID: "app-1", CustomerID: "cust-1", Status: bidding.ApplicationInstallerSelected})
	svc, err := paymentapp.NewService(db.Payments(), nil, nil)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	h, err := NewHandler(svc, nil, nil)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	r := mux.NewRouter()
	h.Register(r, auth.NewSignatureMiddleware(secret, time.Minute).Wrap)
	return r, db
}

func do(r *mux.Router, req *http.Request, p *auth.Principal) *httptest.ResponseRecorder {
	if p != nil {
		req = req.WithContext(auth.WithPrincipal(req.Context(), *p))
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestRegisterAndWebhookSettlement(t *testing.T) {
	r, db := newTestRouter(t)
	customer := &auth.Principal{ID: "cust-1", Role: auth.RoleCustomer}

	body := `{"provider_intent_id":"pi_1","application_id":"app-1","amount":"1500.00","type":"installation"}`
	resp := do(r, httptest.NewRequest(http.MethodPost, "/api/v1/payments/intents", strings.NewReader(body)), customer)
	if resp.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", resp.Code, resp.Body.String())
	}
	resp = do(r, httptest.NewRequest(http.MethodPost, "/api/v1/payments/intents", strings.NewReader(body)), customer)
	if resp.Code != http.StatusConflict {
		t.Fatalf("duplicate intent must conflict, got %d", resp.Code)
	}

	event := `{"intent_id":"pi_1","status":"succeeded"}`
	for i := 0; i < 2; i++ {
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(event))
		req.Header.Set(auth.HeaderTimestamp, ts)
		req.Header.Set(auth.HeaderSignature, auth.Sign(secret, ts, []byte(event)))
		resp = do(r, req, nil)
		if resp.Code != http.StatusOK {
			t.Fatalf("webhook %d: %d %s", i, resp.Code, resp.Body.String())
		}
	}
	var tx payments.Transaction
	if err := json.Unmarshal(resp.Body.Bytes(), &tx); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tx.Status != payments.StatusSucceeded || tx.InvoiceID == "" {
		t.Fatalf("unexpected transaction %+v", tx)
	}
	if len(db.Invoices()) != 1 {
		t.Fatalf("expected one invoice, got %d", len(db.Invoices()))
	}
}

func TestManualConfirmRequiresOfficer(t *testing.T) {
	r, _ := newTestRouter(t)
	customer := &auth.Principal{ID: "cust-1", Role: auth.RoleCustomer}
	officer := &auth.Principal{ID: "off-1", Role: auth.RoleOfficer}

	body := `{"provider_intent_id":"pi_1","amount":"10"}`
	if resp := do(r, httptest.NewRequest(http.MethodPost, "/api/v1/payments/intents", strings.NewReader(body)), customer); resp.Code != http.StatusCreated {
		t.Fatalf("register: %d", resp.Code)
	}

	confirm := `{"status":"verified"}`
	resp := do(r, httptest.NewRequest(http.MethodPost, "/api/v1/payments/pi_1/confirm", strings.NewReader(confirm)), customer)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("customer confirm must be forbidden, got %d", resp.Code)
	}
	resp = do(r, httptest.NewRequest(http.MethodPost, "/api/v1/payments/pi_1/confirm", strings.NewReader(confirm)), officer)
	if resp.Code != http.StatusOK {
		t.Fatalf("officer confirm: %d %s", resp.Code, resp.Body.String())
	}
	resp = do(r, httptest.NewRequest(http.MethodPost, "/api/v1/payments/pi_404/confirm", strings.NewReader(confirm)), officer)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("unknown intent must be 404, got %d", resp.Code)
	}
}

func TestWebhookRejectsUnsigned(t *testing.T) {
	r, _ := newTestRouter(t)
	resp := do(r, httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(`{}`)), nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}
