package integration_test

import (
	"context"
	"database/sql"
	"io"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solar-portal/internal/auth"
	biddingapp "solar-portal/internal/bidding/application"
	bidding "solar-portal/internal/bidding/domain"
	biddingpg "solar-portal/internal/bidding/infrastructure/postgres"
	billingapp "solar-portal/internal/billing/application"
	billing "solar-portal/internal/billing/domain"
	billingpg "solar-portal/internal/billing/infrastructure/postgres"
	"solar-portal/internal/notify"
	paymentsapp "solar-portal/internal/payments/application"
	payments "solar-portal/internal/payments/domain"
	paymentspg "solar-portal/internal/payments/infrastructure/postgres"
	"solar-portal/internal/platform/database"
	"solar-portal/internal/platform/migrations"
)

func TestBidToInvoiceToPayment_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	ctx := context.Background()
	db, err := database.Open(ctx, dsn, database.Options{MaxOpenConns: 8})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := migrations.Apply(ctx, db); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	appID := "app-it-001"
	cleanup(ctx, db, appID)
	defer cleanup(ctx, db, appID)
	if _, err := db.ExecContext(ctx, `
INSERT INTO applications (id, reference, status, customer_id, created_at, updated_at)
VALUES ($1, 'SP-IT-001', 'approved', 'cust-it', now(), now())`, appID); err != nil {
		t.Fatalf("seed application: %v", err)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)
	notifier := notify.NewLoggingNotifier(log)
	now := time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	customer := auth.Principal{ID: "cust-it", Role: auth.RoleCustomer}
	installer := auth.Principal{ID: "inst-it", Role: auth.RoleInstaller, OrganizationID: "org-it"}

	bids, err := biddingapp.NewService(biddingpg.NewStore(db), notifier, log, biddingapp.WithClock(clock))
	if err != nil {
		t.Fatalf("bidding service: %v", err)
	}
	if _, err := bids.OpenOrExtendSession(ctx, customer, appID, 48*time.Hour); err != nil {
		t.Fatalf("open session: %v", err)
	}
	fields := bidding.BidFields{Price: decimal.RequireFromString("450000.00"), Proposal: "10kW rooftop",
		Warranty: "10 years", EstimatedDays: 14}
	first, err := bids.SubmitBid(ctx, installer, appID, "org-it", fields)
	if err != nil {
		t.Fatalf("submit first bid: %v", err)
	}
	if _, err := bids.SubmitBid(ctx, installer, appID, "org-it", fields); err != nil {
		t.Fatalf("submit second bid: %v", err)
	}
	selection, err := bids.SelectBid(ctx, customer, first.ID)
	if err != nil {
		t.Fatalf("select bid: %v", err)
	}
	if selection.Rejected != 1 || selection.Session.Status != bidding.SessionClosed {
		t.Fatalf("unexpected selection %+v", selection)
	}

	billingSvc, err := billingapp.NewService(billingpg.NewStore(db), log, billingapp.WithClock(clock))
	if err != nil {
		t.Fatalf("billing service: %v", err)
	}
	for _, day := range []int{3, 17} {
		_, err := billingSvc.RecordReading(ctx, billingapp.ReadingInput{
			ApplicationID: appID,
			ReadingDate:   time.Date(2024, time.March, day, 12, 0, 0, 0, time.UTC),
			KWhGenerated:  decimal.NewFromInt(300),
			KWhExported:   decimal.NewFromInt(50),
			KWhImported:   decimal.NewFromInt(150),
		})
		if err != nil {
			t.Fatalf("record reading: %v", err)
		}
	}
	period := billing.Period{Year: 2024, Month: 3}
	report, err := billingSvc.GenerateMonthlyBills(ctx, period, billing.RateOverride{})
	if err != nil {
		t.Fatalf("generate bills: %v", err)
	}
	if len(report.Created) != 1 {
		t.Fatalf("expected one bill, got %+v", report)
	}
	again, err := billingSvc.GenerateMonthlyBills(ctx, period, billing.RateOverride{})
	if err != nil {
		t.Fatalf("regenerate bills: %v", err)
	}
	if len(again.Created) != 0 || len(again.Skipped) != 1 {
		t.Fatalf("second run must skip, got %+v", again)
	}
	bill := report.Created[0]

	paymentSvc, err := paymentsapp.NewService(paymentspg.NewStore(db), notifier, log, paymentsapp.WithClock(clock))
	if err != nil {
		t.Fatalf("payments service: %v", err)
	}
	if _, err := paymentSvc.RegisterIntent(ctx, customer, payments.Intent{
		ProviderIntentID: "pi_it_001", ApplicationID: appID, InvoiceID: bill.ID, Amount: bill.Amount,
	}); err != nil {
		t.Fatalf("register intent: %v", err)
	}
	firstConfirm, err := paymentSvc.ConfirmPayment(ctx, "pi_it_001", "succeeded")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	secondConfirm, err := paymentSvc.ConfirmPayment(ctx, "pi_it_001", "succeeded")
	if err != nil {
		t.Fatalf("confirm replay: %v", err)
	}
	if !firstConfirm.FirstSettlement || secondConfirm.FirstSettlement {
		t.Fatalf("replayed confirmation must not settle twice")
	}
	if secondConfirm.Invoice.Status != billing.InvoicePaid {
		t.Fatalf("invoice not paid: %+v", secondConfirm.Invoice)
	}
}

func cleanup(ctx context.Context, db *sql.DB, appID string) {
	_, _ = db.ExecContext(ctx, "DELETE FROM payment_transactions WHERE application_id = $1", appID)
	_, _ = db.ExecContext(ctx, "DELETE FROM invoices WHERE application_id = $1", appID)
	_, _ = db.ExecContext(ctx, "DELETE FROM meter_readings WHERE application_id = $1", appID)
	_, _ = db.ExecContext(ctx, "DELETE FROM bids WHERE application_id = $1", appID)
	_, _ = db.ExecContext(ctx, "DELETE FROM bid_sessions WHERE application_id = $1", appID)
	_, _ = db.ExecContext(ctx, "DELETE FROM applications WHERE id = $1", appID)
}
