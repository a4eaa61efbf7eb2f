package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	billing "solar-portal/internal/billing/domain"
	billingpg "solar-portal/internal/billing/infrastructure/postgres"
	payments "solar-portal/internal/payments/domain"
	"solar-portal/internal/platform/database"
)

const transactionColumns = `id, provider_intent_id, customer_id, application_id, invoice_id, amount, type, status,
	failure_reason, confirmed_at, created_at, updated_at`

// Store persists payment transactions and the invoices they settle.
type Store struct {
	db *sql.DB
}

// NewStore constructs a store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// WithinTx runs fn in one database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx payments.Tx) error) error {
	if s == nil || s.db == nil {
		return errors.New("payment store: nil db")
	}
	return database.WithinTx(ctx, s.db, func(sqlTx *sql.Tx) error {
		return fn(ctx, &Tx{tx: sqlTx})
	})
}

// Tx implements payments.Tx on a live transaction.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) GetByIntent(ctx context.Context, providerIntentID string, forUpdate bool) (*payments.Transaction, error) {
	query := `
SELECT ` + transactionColumns + `
FROM payment_transactions
WHERE provider_intent_id = $1`
	if forUpdate {
		query += "\nFOR UPDATE"
	}
	p, err := scanTransaction(t.tx.QueryRowContext(ctx, query, providerIntentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Classify(err)
	}
	return p, nil
}

func (t *Tx) Insert(ctx context.Context, p *payments.Transaction) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO payment_transactions (`+transactionColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.ProviderIntentID, p.CustomerID, database.NullString(p.ApplicationID), database.NullString(p.InvoiceID),
		p.Amount, p.Type, string(p.Status), p.FailureReason, database.NullTime(p.ConfirmedAt),
		p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	return database.Classify(err)
}

func (t *Tx) UpdateStatus(ctx context.Context, p *payments.Transaction) error {
	res, err := t.tx.ExecContext(ctx, `
UPDATE payment_transactions
SET status = $2, failure_reason = $3, confirmed_at = $4, updated_at = $5
WHERE provider_intent_id = $1`,
		p.ProviderIntentID, string(p.Status), p.FailureReason, database.NullTime(p.ConfirmedAt), p.UpdatedAt.UTC())
	if err != nil {
		return database.Classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return payments.ErrPaymentNotFound
	}
	return nil
}

func (t *Tx) LinkInvoice(ctx context.Context, transactionID, invoiceID string, now time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
UPDATE payment_transactions SET invoice_id = $2, updated_at = $3
WHERE id = $1 AND invoice_id IS NULL`, transactionID, invoiceID, now.UTC())
	if err != nil {
		return false, database.Classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *Tx) GetApplication(ctx context.Context, id string) (*billing.ApplicationRef, error) {
	return billingpg.GetApplicationRef(ctx, t.tx, id)
}

func (t *Tx) GetInvoice(ctx context.Context, id string, forUpdate bool) (*billing.Invoice, error) {
	return billingpg.GetInvoice(ctx, t.tx, id, forUpdate)
}

func (t *Tx) InsertInvoice(ctx context.Context, inv *billing.Invoice) error {
	_, err := billingpg.InsertInvoice(ctx, t.tx, inv, "")
	return err
}

func (t *Tx) MarkInvoicePaid(ctx context.Context, invoiceID string, paidAt time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
UPDATE invoices SET status = 'paid', paid_at = $2, updated_at = $2
WHERE id = $1 AND status IN ('pending', 'overdue')`, invoiceID, paidAt.UTC())
	if err != nil {
		return false, database.Classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanTransaction(row database.RowScanner) (*payments.Transaction, error) {
	var (
		p         payments.Transaction
		appID     sql.NullString
		invoiceID sql.NullString
		status    string
		confirmed sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.ProviderIntentID, &p.CustomerID, &appID, &invoiceID, &p.Amount, &p.Type,
		&status, &p.FailureReason, &confirmed, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ApplicationID = appID.String
	p.InvoiceID = invoiceID.String
	p.Status = payments.Status(status)
	p.ConfirmedAt = database.UTCPtr(confirmed)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}
