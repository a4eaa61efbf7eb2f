package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceType classifies an invoice.
type InvoiceType string

const (
	InvoiceAuthorityFee InvoiceType = "authority_fee"
	InvoiceInstallation InvoiceType = "installation"
	InvoiceMonthlyBill  InvoiceType = "monthly_bill"
)

// ParseInvoiceType maps a free-form payment type onto an invoice type.
// Anything other than installation or monthly_bill is an authority fee.
func ParseInvoiceType(value string) InvoiceType {
	switch InvoiceType(value) {
	case InvoiceInstallation:
		return InvoiceInstallation
	case InvoiceMonthlyBill:
		return InvoiceMonthlyBill
	default:
		return InvoiceAuthorityFee
	}
}

// InvoiceStatus is the settlement state of an invoice.
type InvoiceStatus string

const (
	InvoicePending InvoiceStatus = "pending"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceOverdue InvoiceStatus = "overdue"
)

// LineItem is one row of an invoice.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// Invoice is a billable obligation. PaidAt is set iff Status is paid.
type Invoice struct {
	ID            string          `json:"id"`
	ApplicationID string          `json:"application_id,omitempty"`
	CustomerID    string          `json:"customer_id"`
	InstallerID   string          `json:"installer_id,omitempty"`
	Type          InvoiceType     `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Status        InvoiceStatus   `json:"status"`
	DueDate       time.Time       `json:"due_date"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	LineItems     []LineItem      `json:"line_items"`
	Description   string          `json:"description"`
	BillingPeriod *Period         `json:"billing_period,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Payable reports whether the invoice may still be settled.
func (i *Invoice) Payable() bool {
	return i.Status == InvoicePending || i.Status == InvoiceOverdue
}

// MarkPaid settles a pending or overdue invoice. It reports false when already paid.
func (i *Invoice) MarkPaid(now time.Time) bool {
	if !i.Payable() {
		return false
	}
	paidAt := now.UTC()
	i.Status = InvoicePaid
	i.PaidAt = &paidAt
	i.UpdatedAt = paidAt
	return true
}

// MarkOverdue moves a pending invoice with an amount owed past its due date to overdue.
func (i *Invoice) MarkOverdue(now time.Time) bool {
	if i.Status != InvoicePending || !i.Amount.IsPositive() || !i.DueDate.Before(now) {
		return false
	}
	i.Status = InvoiceOverdue
	i.UpdatedAt = now.UTC()
	return true
}

// NewMonthlyBill materializes usage as a monthly_bill invoice.
// Credit is reported as a negative line item and never reduces another invoice.
// Every bill starts pending; a zero bill never turns overdue.
func NewMonthlyBill(id, customerID string, usage Usage, dueDay int, now time.Time) *Invoice {
	now = now.UTC()
	period := usage.Period
	items := make([]LineItem, 0, 2)
	switch {
	case usage.AmountDue.IsPositive():
		items = append(items, LineItem{
			Description: fmt.Sprintf("Net energy import %s kWh", usage.NetKWh.String()),
			Quantity:    usage.NetKWh,
			UnitPrice:   usage.Rates.RatePerKWh,
			Amount:      usage.AmountDue,
		})
	case usage.Credit.IsPositive():
		exported := usage.NetKWh.Abs()
		items = append(items, LineItem{
			Description: fmt.Sprintf("Net export credit %s kWh", exported.String()),
			Quantity:    exported,
			UnitPrice:   usage.Rates.CreditRatePerKWh.Neg(),
			Amount:      usage.Credit.Neg(),
		})
	default:
		items = append(items, LineItem{
			Description: "No net energy import",
			Quantity:    decimal.Zero,
			UnitPrice:   usage.Rates.RatePerKWh,
			Amount:      decimal.Zero,
		})
	}
	items = append(items, LineItem{
		Description: fmt.Sprintf("Generated %s kWh (informational)", usage.KWhGenerated.String()),
		Quantity:    usage.KWhGenerated,
		UnitPrice:   decimal.Zero,
		Amount:      decimal.Zero,
	})

	inv := &Invoice{
		ID:            id,
		ApplicationID: usage.ApplicationID,
		CustomerID:    customerID,
		Type:          InvoiceMonthlyBill,
		Amount:        usage.AmountDue,
		Status:        InvoicePending,
		DueDate:       period.DueDate(dueDay),
		LineItems:     items,
		Description:   "Monthly bill " + period.String(),
		BillingPeriod: &period,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return inv
}

// NewPaymentInvoice builds the invoice created when a payment arrives without one.
func NewPaymentInvoice(id, applicationID, customerID, paymentType string, amount decimal.Decimal, reference string, now time.Time) *Invoice {
	now = now.UTC()
	kind := ParseInvoiceType(paymentType)
	return &Invoice{
		ID:            id,
		ApplicationID: applicationID,
		CustomerID:    customerID,
		Type:          kind,
		Amount:        amount,
		Status:        InvoicePending,
		DueDate:       now,
		LineItems: []LineItem{{
			Description: string(kind) + " payment " + reference,
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   amount,
			Amount:      amount,
		}},
		Description: "Invoice for payment " + reference,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
