package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	bidding "solar-portal/internal/bidding/domain"
	"solar-portal/internal/platform/apperr"
)

func TestWithinTxRollsBackOnError(t *testing.T) {
	db := New()
	db.PutApplication(bidding.Application{ID: "app-1", CustomerID: "cust-1", Status: bidding.ApplicationBidding})
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	boom := errors.New("boom")

	err := db.Bidding().WithinTx(context.Background(), func(ctx context.Context, tx bidding.Tx) error {
		s := &bidding.Session{ID: "s-1", ApplicationID: "app-1", CustomerID: "cust-1", Status: bidding.SessionOpen, StartedAt: now, ExpiresAt: now.Add(time.Hour), UpdatedAt: now}
		if _, err := tx.UpsertOpenSession(ctx, s); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	_ = db.Bidding().WithinTx(context.Background(), func(ctx context.Context, tx bidding.Tx) error {
		s, err := tx.GetSessionByApplication(ctx, "app-1", bidding.LockNone)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if s != nil {
			t.Fatalf("session survived rollback")
		}
		return nil
	})
}

func TestUpsertOpenSessionRules(t *testing.T) {
	db := New()
	db.PutApplication(bidding.Application{ID: "app-1", CustomerID: "cust-1"})
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	err := db.Bidding().WithinTx(ctx, func(ctx context.Context, tx bidding.Tx) error {
		first := &bidding.Session{ID: "s-1", ApplicationID: "app-1", Status: bidding.SessionOpen, StartedAt: t0, ExpiresAt: t0.Add(time.Hour)}
		if _, err := tx.UpsertOpenSession(ctx, first); err != nil {
			return err
		}
		t1 := t0.Add(30 * time.Minute)
		extended, err := tx.UpsertOpenSession(ctx, &bidding.Session{ID: "s-2", ApplicationID: "app-1", StartedAt: t1, ExpiresAt: t1.Add(2 * time.Hour)})
		if err != nil {
			return err
		}
		if extended.ID != "s-1" || !extended.StartedAt.Equal(t0) || !extended.ExpiresAt.Equal(t1.Add(2*time.Hour)) {
			t.Fatalf("unexpected extension %+v", extended)
		}
		if ok, _ := tx.CloseSession(ctx, "s-1", t1); !ok {
			t.Fatalf("close failed")
		}
		if ok, _ := tx.CloseSession(ctx, "s-1", t1); ok {
			t.Fatalf("second close must lose")
		}
		reopened, err := tx.UpsertOpenSession(ctx, &bidding.Session{ID: "s-3", ApplicationID: "app-1", StartedAt: t1, ExpiresAt: t1.Add(time.Hour)})
		if err != nil {
			return err
		}
		if reopened != nil {
			t.Fatalf("closed session must not re-open")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestCanceledContextIsTransient(t *testing.T) {
	db := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := db.Bidding().WithinTx(ctx, func(context.Context, bidding.Tx) error { return nil })
	if apperr.CodeOf(err) != apperr.Transient {
		t.Fatalf("expected transient, got %v", err)
	}
}
