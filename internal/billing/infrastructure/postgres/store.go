package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	billing "solar-portal/internal/billing/domain"
	"solar-portal/internal/platform/database"
)

// Store persists meter readings and invoices.
type Store struct {
	db *sql.DB
}

// NewStore constructs a store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// WithinTx runs fn in one database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx billing.Tx) error) error {
	if s == nil || s.db == nil {
		return errors.New("billing store: nil db")
	}
	return database.WithinTx(ctx, s.db, func(sqlTx *sql.Tx) error {
		return fn(ctx, &Tx{tx: sqlTx})
	})
}

// Tx implements billing.Tx on a live transaction.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) GetApplication(ctx context.Context, id string) (*billing.ApplicationRef, error) {
	return GetApplicationRef(ctx, t.tx, id)
}

func (t *Tx) InsertReading(ctx context.Context, r *billing.MeterReading) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO meter_readings (id, application_id, reading_date, kwh_generated, kwh_exported, kwh_imported, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.ApplicationID, r.ReadingDate.UTC(), r.KWhGenerated, r.KWhExported, r.KWhImported, r.CreatedAt.UTC())
	return database.Classify(err)
}

func (t *Tx) SumReadings(ctx context.Context, applicationID string, period billing.Period) (billing.ReadingTotals, error) {
	var totals billing.ReadingTotals
	err := t.tx.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(kwh_generated), 0), COALESCE(SUM(kwh_exported), 0), COALESCE(SUM(kwh_imported), 0)
FROM meter_readings
WHERE application_id = $1 AND reading_date >= $2 AND reading_date < $3`,
		applicationID, period.Start(), period.End()).
		Scan(&totals.Count, &totals.KWhGenerated, &totals.KWhExported, &totals.KWhImported)
	if err != nil {
		return billing.ReadingTotals{}, database.Classify(err)
	}
	return totals, nil
}

func (t *Tx) BillingCandidates(ctx context.Context, period billing.Period) ([]billing.Candidate, error) {
	rows, err := t.tx.QueryContext(ctx, `
SELECT a.id, a.customer_id, EXISTS (
	SELECT 1 FROM invoices i
	WHERE i.application_id = a.id AND i.type = 'monthly_bill'
		AND i.billing_year = $3 AND i.billing_month = $4
)
FROM applications a
WHERE a.id IN (
	SELECT DISTINCT application_id FROM meter_readings
	WHERE reading_date >= $1 AND reading_date < $2
)
ORDER BY a.id`, period.Start(), period.End(), period.Year, period.Month)
	if err != nil {
		return nil, database.Classify(err)
	}
	defer rows.Close()
	out := []billing.Candidate{}
	for rows.Next() {
		var c billing.Candidate
		if err := rows.Scan(&c.ApplicationID, &c.CustomerID, &c.HasBill); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify(err)
	}
	return out, nil
}

func (t *Tx) InsertMonthlyBill(ctx context.Context, inv *billing.Invoice) (bool, error) {
	if inv == nil || inv.BillingPeriod == nil {
		return false, billing.ErrInvalidPeriod
	}
	res, err := InsertInvoice(ctx, t.tx, inv, `
ON CONFLICT (application_id, billing_year, billing_month) WHERE type = 'monthly_bill' DO NOTHING`)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *Tx) GetInvoice(ctx context.Context, id string) (*billing.Invoice, error) {
	return GetInvoice(ctx, t.tx, id, false)
}

func (t *Tx) ListInvoices(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	query := `
SELECT ` + InvoiceColumns + `
FROM invoices
WHERE TRUE`
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		query += fmt.Sprintf(" AND %s $%d", clause, len(args))
	}
	if filter.CustomerID != "" {
		add("customer_id =", filter.CustomerID)
	}
	if filter.InstallerID != "" {
		add("installer_id =", filter.InstallerID)
	}
	if filter.ApplicationID != "" {
		add("application_id =", filter.ApplicationID)
	}
	if filter.Type != "" {
		add("type =", string(filter.Type))
	}
	if filter.Status != "" {
		add("status =", string(filter.Status))
	}
	if filter.Period != nil {
		add("billing_year =", filter.Period.Year)
		add("billing_month =", filter.Period.Month)
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, database.Classify(err)
	}
	defer rows.Close()
	out := []billing.Invoice{}
	for rows.Next() {
		inv, err := ScanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify(err)
	}
	return out, nil
}

func (t *Tx) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
UPDATE invoices SET status = 'overdue', updated_at = $1
WHERE status = 'pending' AND amount > 0 AND due_date < $1`, now.UTC())
	if err != nil {
		return 0, database.Classify(err)
	}
	return res.RowsAffected()
}
