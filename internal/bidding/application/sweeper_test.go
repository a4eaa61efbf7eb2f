package application

import (
	"context"
	"errors"
	"testing"
	"time"

	bidding "solar-portal/internal/bidding/domain"
)

func TestSweepExpiresSessionAndPendingBids(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.OpenOrExtendSession(ctx, customer, "app-1", 2*time.Hour); err != nil {
		t.Fatalf("open: %v", err)
	}
	f.submit(t, 1, "1000")
	rejected := f.submit(t, 2, "1100")
	if _, err := f.svc.UpdateBidStatus(ctx, customer, rejected.ID, bidding.BidRejected); err != nil {
		t.Fatalf("reject: %v", err)
	}

	report, err := f.svc.SweepExpiredSessions(ctx, f.clock.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("early sweep: %v", err)
	}
	if report.SessionsExpired != 0 {
		t.Fatalf("session expired before deadline")
	}

	f.clock.Advance(2 * time.Hour)
	report, err = f.svc.SweepExpiredSessions(ctx, f.clock.Now())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.SessionsExpired != 1 || report.BidsExpired != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	bids, err := f.svc.ListBids(ctx, customer, "app-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, b := range bids {
		if b.ID == rejected.ID && b.Status != bidding.BidRejected {
			t.Fatalf("rejected bid must stay rejected, got %s", b.Status)
		}
		if b.ID != rejected.ID && b.Status != bidding.BidExpired {
			t.Fatalf("pending bid not expired: %s", b.Status)
		}
	}
	if len(f.notifier.expired) != 1 || f.notifier.expired[0].ApplicationID != "app-1" {
		t.Fatalf("expected one expiry notification, got %+v", f.notifier.expired)
	}

	again, err := f.svc.SweepExpiredSessions(ctx, f.clock.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if again.SessionsExpired != 0 || again.BidsExpired != 0 {
		t.Fatalf("second sweep must be a no-op, got %+v", again)
	}
	if len(f.notifier.expired) != 1 {
		t.Fatalf("second sweep must not notify")
	}
}

func TestSweepAndSelectRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.OpenOrExtendSession(ctx, customer, "app-1", time.Hour); err != nil {
		t.Fatalf("open: %v", err)
	}
	bid := f.submit(t, 1, "1000")
	f.clock.Advance(time.Hour)

	if _, err := f.svc.SweepExpiredSessions(ctx, f.clock.Now()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if _, err := f.svc.SelectBid(ctx, customer, bid.ID); !errors.Is(err, bidding.ErrSessionNotOpen) {
		t.Fatalf("select after sweep must lose, got %v", err)
	}
	bids, _ := f.svc.ListBids(ctx, customer, "app-1")
	if len(bids) != 1 || bids[0].Status != bidding.BidExpired {
		t.Fatalf("bid must stay expired: %+v", bids)
	}
}

func TestSweepSkipsClosedSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.OpenOrExtendSession(ctx, customer, "app-1", time.Hour); err != nil {
		t.Fatalf("open: %v", err)
	}
	bid := f.submit(t, 1, "1000")
	if _, err := f.svc.SelectBid(ctx, customer, bid.ID); err != nil {
		t.Fatalf("select: %v", err)
	}
	report, err := f.svc.SweepExpiredSessions(ctx, f.clock.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.SessionsExpired != 0 {
		t.Fatalf("closed session must not expire")
	}
	bids, _ := f.svc.ListBids(ctx, customer, "app-1")
	if bids[0].Status != bidding.BidAccepted {
		t.Fatalf("accepted bid changed: %s", bids[0].Status)
	}
}
