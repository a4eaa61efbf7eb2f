package payments

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the provider-reported state of a payment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusVerified  Status = "verified"
	StatusFailed    Status = "failed"
)

// ReportedStatusVerified is the provider status that marks a payment verified.
const ReportedStatusVerified = "verified"

// Transaction is a payment-provider event correlated by ProviderIntentID.
type Transaction struct {
	ID               string          `json:"id"`
	ProviderIntentID string          `json:"provider_intent_id"`
	CustomerID       string          `json:"customer_id"`
	ApplicationID    string          `json:"application_id,omitempty"`
	InvoiceID        string          `json:"invoice_id,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Type             string          `json:"type"`
	Status           Status          `json:"status"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	ConfirmedAt      *time.Time      `json:"confirmed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Intent is what a customer registers before paying with the provider.
type Intent struct {
	ProviderIntentID string
	ApplicationID    string
	InvoiceID        string
	Amount           decimal.Decimal
	Type             string
}

// Validate checks an intent before anything is written.
func (i Intent) Validate() error {
	if strings.TrimSpace(i.ProviderIntentID) == "" {
		return ErrEmptyIntentID
	}
	if !i.Amount.Round(2).IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// NewTransaction builds a pending transaction for customerID.
func NewTransaction(id, customerID string, intent Intent, now time.Time) (*Transaction, error) {
	if customerID == "" {
		return nil, ErrEmptyCustomer
	}
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	now = now.UTC()
	return &Transaction{
		ID:               id,
		ProviderIntentID: strings.TrimSpace(intent.ProviderIntentID),
		CustomerID:       customerID,
		ApplicationID:    intent.ApplicationID,
		InvoiceID:        intent.InvoiceID,
		Amount:           intent.Amount.Round(2),
		Type:             intent.Type,
		Status:           StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// Settled reports whether the provider already confirmed the payment.
func (t *Transaction) Settled() bool {
	return t.Status == StatusSucceeded || t.Status == StatusVerified
}

// Settle applies a provider confirmation. verified is never downgraded.
// It reports whether the stored state changed.
func (t *Transaction) Settle(reported string, now time.Time) bool {
	next := StatusSucceeded
	if strings.EqualFold(strings.TrimSpace(reported), ReportedStatusVerified) {
		next = StatusVerified
	}
	if t.Status == StatusVerified || t.Status == next {
		return false
	}
	now = now.UTC()
	t.Status = next
	t.FailureReason = ""
	if t.ConfirmedAt == nil {
		t.ConfirmedAt = &now
	}
	t.UpdatedAt = now
	return true
}

// Fail records a provider failure for a payment that has not settled.
func (t *Transaction) Fail(reason string, now time.Time) bool {
	if t.Status != StatusPending {
		return false
	}
	t.Status = StatusFailed
	t.FailureReason = strings.TrimSpace(reason)
	t.UpdatedAt = now.UTC()
	return true
}
