package payments

import (
	"context"
	"time"

	billing "solar-portal/internal/billing/domain"
)

// Store opens units of work against payment state.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the payment gateway inside one unit of work. Getters return nil, nil when absent.
type Tx interface {
	// GetByIntent reads a transaction, locking the row when forUpdate is set.
	GetByIntent(ctx context.Context, providerIntentID string, forUpdate bool) (*Transaction, error)
	Insert(ctx context.Context, t *Transaction) error
	UpdateStatus(ctx context.Context, t *Transaction) error
	// LinkInvoice sets the invoice of a transaction that has none and reports whether it did.
	LinkInvoice(ctx context.Context, transactionID, invoiceID string, now time.Time) (bool, error)

	GetApplication(ctx context.Context, id string) (*billing.ApplicationRef, error)
	GetInvoice(ctx context.Context, id string, forUpdate bool) (*billing.Invoice, error)
	InsertInvoice(ctx context.Context, inv *billing.Invoice) error
	// MarkInvoicePaid moves a pending or overdue invoice to paid and reports whether it did.
	MarkInvoicePaid(ctx context.Context, invoiceID string, paidAt time.Time) (bool, error)
}
