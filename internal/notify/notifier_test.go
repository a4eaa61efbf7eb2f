package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestWebhookNotifierPayload(t *testing.T) {
	payloadCh := make(chan webhookPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		payloadCh <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier, err := NewWebhookNotifier(server.URL, nil)
	if err != nil {
		t.Fatalf("new webhook notifier: %v", err)
	}
	err = notifier.NotifyPaymentApproved(context.Background(), PaymentApproved{
		InvoiceID:  "inv-1",
		CustomerID: "cust-1",
		Amount:     decimal.RequireFromString("20800"),
		Status:     "succeeded",
		PaidAt:     time.Date(2024, 4, 2, 9, 30, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case payload := <-payloadCh:
		if payload.MsgType != "text" {
			t.Fatalf("unexpected msgtype %q", payload.MsgType)
		}
		for _, want := range []string{"[Payment approved]", "Invoice: inv-1", "Amount: 20800.00", "2024-04-02 09:30 UTC"} {
			if !strings.Contains(payload.Text.Content, want) {
				t.Fatalf("content missing %q:\n%s", want, payload.Text.Content)
			}
		}
		if strings.Contains(payload.Text.Content, "Application:") {
			t.Fatalf("empty application should be omitted:\n%s", payload.Text.Content)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for webhook")
	}
}

func TestWebhookNotifierNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	notifier, err := NewWebhookNotifier(server.URL, nil)
	if err != nil {
		t.Fatalf("new webhook notifier: %v", err)
	}
	if err := notifier.NotifySessionExpired(context.Background(), SessionExpired{SessionID: "s-1"}); err == nil {
		t.Fatalf("expected error on 502")
	}
}

func TestTemplatesOverride(t *testing.T) {
	tpl, err := NewTemplates(map[Kind]string{KindBidSelected: "winner {{.OrganizationID}}"})
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	out, err := tpl.Render(KindBidSelected, BidSelected{OrganizationID: "org-7"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "winner org-7" {
		t.Fatalf("unexpected render %q", out)
	}
	if _, err := NewTemplates(map[Kind]string{KindBidSelected: "{{.Broken"}); err == nil {
		t.Fatalf("expected parse error")
	}
}

type countingNotifier struct {
	calls int
	err   error
}

func (c *countingNotifier) NotifyPaymentApproved(context.Context, PaymentApproved) error {
	c.calls++
	return c.err
}

func (c *countingNotifier) NotifySessionExpired(context.Context, SessionExpired) error {
	c.calls++
	return c.err
}

func (c *countingNotifier) NotifyBidSelected(context.Context, BidSelected) error {
	c.calls++
	return c.err
}

func TestMultiNotifierAttemptsAll(t *testing.T) {
	failing := &countingNotifier{err: errors.New("down")}
	ok := &countingNotifier{}
	multi := NewMultiNotifier(failing, nil, ok)

	err := multi.NotifyBidSelected(context.Background(), BidSelected{BidID: "bid-1"})
	if err == nil {
		t.Fatalf("expected joined error")
	}
	if failing.calls != 1 || ok.calls != 1 {
		t.Fatalf("expected both notifiers called, got %d and %d", failing.calls, ok.calls)
	}
}
