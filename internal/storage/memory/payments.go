package memory

import (
	"context"
	"time"

	billing "solar-portal/internal/billing/domain"
	payments "solar-portal/internal/payments/domain"
)

type paymentsStore struct {
	db *DB
}

func (s paymentsStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx payments.Tx) error) error {
	return s.db.withinTx(ctx, func(st *state) error {
		return fn(ctx, paymentsTx{st: st})
	})
}

type paymentsTx struct {
	st *state
}

func (t paymentsTx) GetByIntent(_ context.Context, providerIntentID string, _ bool) (*payments.Transaction, error) {
	tx, ok := t.st.payments[providerIntentID]
	if !ok {
		return nil, nil
	}
	return &tx, nil
}

func (t paymentsTx) Insert(_ context.Context, tx *payments.Transaction) error {
	if _, ok := t.st.payments[tx.ProviderIntentID]; ok {
		return errDuplicate
	}
	t.st.payments[tx.ProviderIntentID] = *tx
	return nil
}

func (t paymentsTx) UpdateStatus(_ context.Context, tx *payments.Transaction) error {
	stored, ok := t.st.payments[tx.ProviderIntentID]
	if !ok {
		return payments.ErrPaymentNotFound
	}
	stored.Status = tx.Status
	stored.FailureReason = tx.FailureReason
	stored.ConfirmedAt = tx.ConfirmedAt
	stored.UpdatedAt = tx.UpdatedAt
	t.st.payments[tx.ProviderIntentID] = stored
	return nil
}

func (t paymentsTx) LinkInvoice(_ context.Context, transactionID, invoiceID string, now time.Time) (bool, error) {
	for key, tx := range t.st.payments {
		if tx.ID != transactionID {
			continue
		}
		if tx.InvoiceID != "" {
			return false, nil
		}
		tx.InvoiceID = invoiceID
		tx.UpdatedAt = now
		t.st.payments[key] = tx
		return true, nil
	}
	return false, nil
}

func (t paymentsTx) GetApplication(_ context.Context, id string) (*billing.ApplicationRef, error) {
	return applicationRef(t.st, id), nil
}

func (t paymentsTx) GetInvoice(_ context.Context, id string, _ bool) (*billing.Invoice, error) {
	inv, ok := t.st.invoices[id]
	if !ok {
		return nil, nil
	}
	return &inv, nil
}

func (t paymentsTx) InsertInvoice(_ context.Context, inv *billing.Invoice) error {
	if _, ok := t.st.invoices[inv.ID]; ok {
		return errDuplicate
	}
	t.st.invoices[inv.ID] = *inv
	return nil
}

func (t paymentsTx) MarkInvoicePaid(_ context.Context, invoiceID string, paidAt time.Time) (bool, error) {
	inv, ok := t.st.invoices[invoiceID]
	if !ok {
		return false, nil
	}
	if !inv.MarkPaid(paidAt) {
		return false, nil
	}
	t.st.invoices[invoiceID] = inv
	return true, nil
}
