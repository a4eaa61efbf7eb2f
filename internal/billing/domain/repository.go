package billing

import (
	"context"
	"time"
)

// ApplicationRef is the application data billing depends on.
type ApplicationRef struct {
	ID                      string
	CustomerID              string
	InstallerOrganizationID string
}

// Candidate is an application with readings in a billing period.
type Candidate struct {
	ApplicationID string
	CustomerID    string
	HasBill       bool
}

// InvoiceFilter narrows ListInvoices. Empty fields do not filter.
type InvoiceFilter struct {
	CustomerID    string
	InstallerID   string
	ApplicationID string
	Type          InvoiceType
	Status        InvoiceStatus
	Period        *Period
	Limit         int
}

// Store opens units of work against billing state.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the billing gateway inside one unit of work. Getters return nil, nil when absent.
type Tx interface {
	GetApplication(ctx context.Context, id string) (*ApplicationRef, error)
	InsertReading(ctx context.Context, reading *MeterReading) error
	SumReadings(ctx context.Context, applicationID string, period Period) (ReadingTotals, error)
	// BillingCandidates lists applications with at least one reading in period.
	BillingCandidates(ctx context.Context, period Period) ([]Candidate, error)
	// InsertMonthlyBill inserts inv unless a bill exists for its application and period.
	InsertMonthlyBill(ctx context.Context, inv *Invoice) (bool, error)
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)
	// MarkOverdue moves pending invoices due before now to overdue.
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
}
