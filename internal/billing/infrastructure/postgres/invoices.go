package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	billing "solar-portal/internal/billing/domain"
	"solar-portal/internal/platform/database"
)

// InvoiceColumns is the select list understood by ScanInvoice.
const InvoiceColumns = `id, application_id, customer_id, installer_id, type, amount, status, due_date, paid_at,
	line_items, description, billing_year, billing_month, created_at, updated_at`

// Querier is the subset of *sql.Tx used by the invoice helpers.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// InsertInvoice writes inv. suffix is appended to the statement (e.g. an ON CONFLICT clause).
func InsertInvoice(ctx context.Context, q Querier, inv *billing.Invoice, suffix string) (sql.Result, error) {
	if inv == nil {
		return nil, errors.New("invoice store: nil invoice")
	}
	items, err := json.Marshal(lineItems(inv.LineItems))
	if err != nil {
		return nil, fmt.Errorf("invoice store: line items: %w", err)
	}
	var year, month sql.NullInt32
	if inv.BillingPeriod != nil {
		year = sql.NullInt32{Int32: int32(inv.BillingPeriod.Year), Valid: true}
		month = sql.NullInt32{Int32: int32(inv.BillingPeriod.Month), Valid: true}
	}
	res, err := q.ExecContext(ctx, `
INSERT INTO invoices (`+InvoiceColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`+suffix,
		inv.ID, database.NullString(inv.ApplicationID), inv.CustomerID, database.NullString(inv.InstallerID),
		string(inv.Type), inv.Amount, string(inv.Status), inv.DueDate.UTC(), database.NullTime(inv.PaidAt),
		string(items), inv.Description, year, month, inv.CreatedAt.UTC(), inv.UpdatedAt.UTC())
	if err != nil {
		return nil, database.Classify(err)
	}
	return res, nil
}

// GetInvoice reads one invoice, optionally locking it.
func GetInvoice(ctx context.Context, q Querier, id string, forUpdate bool) (*billing.Invoice, error) {
	query := `
SELECT ` + InvoiceColumns + `
FROM invoices
WHERE id = $1`
	if forUpdate {
		query += "\nFOR UPDATE"
	}
	inv, err := ScanInvoice(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Classify(err)
	}
	return inv, nil
}

// GetApplicationRef reads the billing view of an application.
func GetApplicationRef(ctx context.Context, q Querier, id string) (*billing.ApplicationRef, error) {
	var (
		ref   billing.ApplicationRef
		orgID sql.NullString
	)
	err := q.QueryRowContext(ctx, `
SELECT id, customer_id, installer_organization_id
FROM applications
WHERE id = $1`, id).Scan(&ref.ID, &ref.CustomerID, &orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Classify(err)
	}
	ref.InstallerOrganizationID = orgID.String
	return &ref, nil
}

// ScanInvoice scans one row selected with InvoiceColumns.
func ScanInvoice(row database.RowScanner) (*billing.Invoice, error) {
	var (
		inv         billing.Invoice
		appID       sql.NullString
		installerID sql.NullString
		invType     string
		status      string
		paidAt      sql.NullTime
		items       []byte
		year, month sql.NullInt32
	)
	if err := row.Scan(&inv.ID, &appID, &inv.CustomerID, &installerID, &invType, &inv.Amount, &status,
		&inv.DueDate, &paidAt, &items, &inv.Description, &year, &month, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return nil, err
	}
	inv.ApplicationID = appID.String
	inv.InstallerID = installerID.String
	inv.Type = billing.InvoiceType(invType)
	inv.Status = billing.InvoiceStatus(status)
	inv.DueDate = inv.DueDate.UTC()
	inv.PaidAt = database.UTCPtr(paidAt)
	inv.CreatedAt = inv.CreatedAt.UTC()
	inv.UpdatedAt = inv.UpdatedAt.UTC()
	if year.Valid && month.Valid {
		inv.BillingPeriod = &billing.Period{Year: int(year.Int32), Month: int(month.Int32)}
	}
	inv.LineItems = []billing.LineItem{}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &inv.LineItems); err != nil {
			return nil, fmt.Errorf("invoice store: decode line items of %s: %w", inv.ID, err)
		}
	}
	return &inv, nil
}

func lineItems(items []billing.LineItem) []billing.LineItem {
	if items == nil {
		return []billing.LineItem{}
	}
	return items
}
