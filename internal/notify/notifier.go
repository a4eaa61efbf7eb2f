package notify

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies a notification type.
type Kind string

const (
	KindPaymentApproved Kind = "payment_approved"
	KindSessionExpired  Kind = "session_expired"
	KindBidSelected     Kind = "bid_selected"
)

// PaymentApproved is sent after a payment settled its invoice for the first time.
type PaymentApproved struct {
	PaymentID        string          `json:"payment_id"`
	ProviderIntentID string          `json:"provider_intent_id"`
	InvoiceID        string          `json:"invoice_id"`
	CustomerID       string          `json:"customer_id"`
	ApplicationID    string          `json:"application_id,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Status           string          `json:"status"`
	PaidAt           time.Time       `json:"paid_at"`
}

// SessionExpired is sent when the sweeper expires a bid session.
type SessionExpired struct {
	SessionID     string    `json:"session_id"`
	ApplicationID string    `json:"application_id"`
	CustomerID    string    `json:"customer_id"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// BidSelected is sent when a customer or officer accepts a bid.
type BidSelected struct {
	SessionID      string          `json:"session_id"`
	ApplicationID  string          `json:"application_id"`
	CustomerID     string          `json:"customer_id"`
	BidID          string          `json:"bid_id"`
	OrganizationID string          `json:"organization_id"`
	Price          decimal.Decimal `json:"price"`
	RejectedBids   int64           `json:"rejected_bids"`
}

// Notifier delivers notifications. Callers treat delivery as best-effort.
type Notifier interface {
	NotifyPaymentApproved(ctx context.Context, msg PaymentApproved) error
	NotifySessionExpired(ctx context.Context, msg SessionExpired) error
	NotifyBidSelected(ctx context.Context, msg BidSelected) error
}
