package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	payments "solar-portal/internal/payments/domain"
	"solar-portal/internal/platform/apperr"
)

var (
	now    = time.Date(2024, time.March, 2, 10, 0, 0, 0, time.UTC)
	txCols = []string{"id", "provider_intent_id", "customer_id", "application_id", "invoice_id", "amount", "type",
		"status", "failure_reason", "confirmed_at", "created_at", "updated_at"}
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	return NewStore(db), mock, func() { _ = db.Close() }
}

func TestGetByIntentLocksAndMapsNulls(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery(`WHERE provider_intent_id = \$1\s+FOR UPDATE`).WithArgs("pi_1").
		WillReturnRows(sqlmock.NewRows(txCols).
			AddRow("pay-1", "pi_1", "cust-1", "app-1", nil, "1500.00", "authority_fee", "pending", "", nil, now, now))
	mock.ExpectQuery("FROM payment_transactions").WithArgs("pi_2").WillReturnError(sql.ErrNoRows)
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx payments.Tx) error {
		p, err := tx.GetByIntent(ctx, "pi_1", true)
		if err != nil {
			return err
		}
		if p.InvoiceID != "" || p.ConfirmedAt != nil || !p.Amount.Equal(decimal.NewFromInt(1500)) {
			t.Fatalf("unexpected transaction %+v", p)
		}
		missing, err := tx.GetByIntent(ctx, "pi_2", false)
		if err != nil || missing != nil {
			t.Fatalf("expected nil, nil; got %v %v", missing, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("within tx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertDuplicateIntentIsConflict(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO payment_transactions").WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx payments.Tx) error {
		return tx.Insert(ctx, &payments.Transaction{
			ID: "pay-1", ProviderIntentID: "pi_1", CustomerID: "cust-1", Amount: decimal.NewFromInt(1500),
			Type: "authority_fee", Status: payments.StatusPending, CreatedAt: now, UpdatedAt: now,
		})
	})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLinkInvoiceAndMarkPaidAreConditional(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec(`invoice_id IS NULL`).WithArgs("pay-1", "inv-1", now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`invoice_id IS NULL`).WithArgs("pay-1", "inv-2", now).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`status IN \('pending', 'overdue'\)`).WithArgs("inv-1", now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`status IN \('pending', 'overdue'\)`).WithArgs("inv-1", now).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx payments.Tx) error {
		if ok, err := tx.LinkInvoice(ctx, "pay-1", "inv-1", now); err != nil || !ok {
			t.Fatalf("first link: %v %v", ok, err)
		}
		if ok, err := tx.LinkInvoice(ctx, "pay-1", "inv-2", now); err != nil || ok {
			t.Fatalf("second link must not overwrite: %v %v", ok, err)
		}
		if ok, err := tx.MarkInvoicePaid(ctx, "inv-1", now); err != nil || !ok {
			t.Fatalf("mark paid: %v %v", ok, err)
		}
		if ok, err := tx.MarkInvoicePaid(ctx, "inv-1", now); err != nil || ok {
			t.Fatalf("second mark paid must be a no-op: %v %v", ok, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("within tx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateStatusMissingRow(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	confirmed := now
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE payment_transactions").
		WithArgs("pi_9", "succeeded", "", confirmed, now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx payments.Tx) error {
		return tx.UpdateStatus(ctx, &payments.Transaction{
			ProviderIntentID: "pi_9", Status: payments.StatusSucceeded, ConfirmedAt: &confirmed, UpdatedAt: now,
		})
	})
	if !errors.Is(err, payments.ErrPaymentNotFound) {
		t.Fatalf("expected payment not found, got %v", err)
	}
}
