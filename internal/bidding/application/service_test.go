package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"solar-portal/internal/auth"
	bidding "solar-portal/internal/bidding/domain"
	"solar-portal/internal/notify"
	"solar-portal/internal/platform/apperr"
	"solar-portal/internal/storage/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu       sync.Mutex
	selected []notify.BidSelected
	expired  []notify.SessionExpired
	err      error
}

func (n *recordingNotifier) NotifyPaymentApproved(context.Context, notify.PaymentApproved) error {
	return nil
}

func (n *recordingNotifier) NotifySessionExpired(_ context.Context, msg notify.SessionExpired) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expired = append(n.expired, msg)
	return n.err
}

func (n *recordingNotifier) NotifyBidSelected(_ context.Context, msg notify.BidSelected) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.selected = append(n.selected, msg)
	return n.err
}

var (
	customer  = auth.Principal{ID: "cust-1", Role: auth.RoleCustomer}
	stranger  = auth.Principal{ID: "cust-2", Role: auth.RoleCustomer}
	officer   = auth.Principal{ID: "off-1", Role: auth.RoleOfficer}
	installer = func(n int) auth.Principal {
		return auth.Principal{ID: fmt.Sprintf("inst-%d", n), Role: auth.RoleInstaller, OrganizationID: fmt.Sprintf("org-%d", n)}
	}
)

type fixture struct {
	db       *memory.DB
	svc      *Service
	clock    *fakeClock
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memory.New()
	db.PutApplication(bidding.Application{ID: "app-1", Reference: "SOL-0001", CustomerID: "cust-1", Status: bidding.ApplicationApproved})
	clock := &fakeClock{now: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}
	seq := 0
	svc, err := NewService(db.Bidding(), notifier, nil,
		WithClock(clock.Now),
		WithIDGenerator(func() string { seq++; return fmt.Sprintf("id-%03d", seq) }),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{db: db, svc: svc, clock: clock, notifier: notifier}
}

func fields(price string) bidding.BidFields {
	return bidding.BidFields{Price: decimal.RequireFromString(price), Proposal: "8kW rooftop array", Warranty: "12 years", EstimatedDays: 10}
}

func (f *fixture) submit(t *testing.T, n int, price string) *bidding.Bid {
	t.Helper()
	p := installer(n)
	bid, err := f.svc.SubmitBid(context.Background(), p, "app-1", p.OrganizationID, fields(price))
	if err != nil {
		t.Fatalf("submit bid %d: %v", n, err)
	}
	return bid
}

func TestOpenOrExtendSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.OpenOrExtendSession(ctx, customer, "missing", time.Hour); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.svc.OpenOrExtendSession(ctx, stranger, "app-1", time.Hour); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := f.svc.OpenOrExtendSession(ctx, customer, "app-1", bidding.MaxSessionDuration+time.Hour); !errors.Is(err, bidding.ErrInvalidDuration) {
		t.Fatalf("expected invalid duration beyond one year, got %v", err)
	}
	if _, err := f.svc.OpenOrExtendSession(ctx, customer, "app-1", 0); !errors.Is(err, bidding.ErrInvalidDuration) {
		t.Fatalf("expected invalid duration, got %v", err)
	}

	opened, err := f.svc.OpenOrExtendSession(ctx, customer, "app-1", 24*time.Hour)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	startedAt := opened.StartedAt

	f.clock.Advance(time.Hour)
	extended, err := f.svc.OpenOrExtendSession(ctx, customer, "app-1", 48*time.Hour)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if extended.ID != opened.ID {
		t.Fatalf("extension created a second session")
	}
	if !extended.StartedAt.Equal(startedAt) {
		t.Fatalf("extension must keep started_at")
	}
	if !extended.ExpiresAt.Equal(f.clock.Now().Add(48 * time.Hour)) {
		t.Fatalf("unexpected expires_at %s", extended.ExpiresAt)
	}

	f.clock.Advance(49 * time.Hour)
	if _, err := f.svc.SweepExpiredSessions(ctx, f.clock.Now()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	reopened, err := f.svc.OpenOrExtendSession(ctx, officer, "app-1", time.Hour)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.ID != opened.ID || reopened.Status != bidding.SessionOpen {
		t.Fatalf("unexpected reopened session %+v", reopened)
	}
	if !reopened.StartedAt.Equal(f.clock.Now()) {
		t.Fatalf("re-open after expiry must restart the window")
	}
}

func TestOpenOrExtendRejectsClosedSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bid := f.submit(t, 1, "1000")
	if _, err := f.svc.SelectBid(ctx, customer, bid.ID); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := f.svc.OpenOrExtendSession(ctx, customer, "app-1", time.Hour); !errors.Is(err, bidding.ErrSessionClosed) {
		t.Fatalf("expected closed, got %v", err)
	}
}

func TestSubmitBidLazilyCreatesSession(t *testing.T) {
	f := newFixture(t)
	bid := f.submit(t, 1, "1000")

	session, err := f.svc.GetSession(context.Background(), customer, "app-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if bid.SessionID != session.ID {
		t.Fatalf("bid not attached to session")
	}
	if got := session.ExpiresAt.Sub(session.StartedAt); got != bidding.DefaultSessionDuration {
		t.Fatalf("lazy window = %s", got)
	}
}

func TestSubmitBidRejectedAfterSessionEnds(t *testing.T) {
	ctx := context.Background()

	t.Run("closed", func(t *testing.T) {
		f := newFixture(t)
		bid := f.submit(t, 1, "1000")
		if _, err := f.svc.SelectBid(ctx, customer, bid.ID); err != nil {
			t.Fatalf("select: %v", err)
		}
		p := installer(2)
		_, err := f.svc.SubmitBid(ctx, p, "app-1", p.OrganizationID, fields("900"))
		if !errors.Is(err, apperr.ErrInvalidState) {
			t.Fatalf("expected invalid state, got %v", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.svc.OpenOrExtendSession(ctx, customer, "app-1", time.Hour); err != nil {
			t.Fatalf("open: %v", err)
		}
		f.clock.Advance(2 * time.Hour)
		if _, err := f.svc.SweepExpiredSessions(ctx, f.clock.Now()); err != nil {
			t.Fatalf("sweep: %v", err)
		}
		p := installer(1)
		_, err := f.svc.SubmitBid(ctx, p, "app-1", p.OrganizationID, fields("900"))
		if !errors.Is(err, bidding.ErrSessionNotOpen) {
			t.Fatalf("expected not open, got %v", err)
		}
	})

	t.Run("deadline passed before sweep", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.svc.OpenOrExtendSession(ctx, customer, "app-1", time.Hour); err != nil {
			t.Fatalf("open: %v", err)
		}
		f.clock.Advance(time.Hour)
		p := installer(1)
		_, err := f.svc.SubmitBid(ctx, p, "app-1", p.OrganizationID, fields("900"))
		if !errors.Is(err, bidding.ErrSessionDeadlinePassed) {
			t.Fatalf("expected deadline passed, got %v", err)
		}
	})
}

func TestSubmitBidValidationAndAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := installer(1)

	if _, err := f.svc.SubmitBid(ctx, p, "app-1", p.OrganizationID, fields("0")); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.svc.SubmitBid(ctx, p, "app-1", "org-other", fields("10")); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden for foreign org, got %v", err)
	}
	if _, err := f.svc.SubmitBid(ctx, customer, "app-1", "org-1", fields("10")); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden for customer, got %v", err)
	}
	if _, err := f.svc.SubmitBid(ctx, p, "missing", p.OrganizationID, fields("10")); !errors.Is(err, bidding.ErrApplicationNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.svc.GetSession(ctx, customer, "app-1"); !errors.Is(err, bidding.ErrSessionNotFound) {
		t.Fatalf("failed submissions must not create a session, got %v", err)
	}
}

func TestConcurrentSubmissionsAreAllRetained(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const n = 8

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := installer(i)
			_, err := f.svc.SubmitBid(ctx, p, "app-1", p.OrganizationID, fields("1000"))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	bids, err := f.svc.ListBids(ctx, customer, "app-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(bids) != n {
		t.Fatalf("expected %d bids, got %d", n, len(bids))
	}
}

func TestSelectBidAcceptsOneAndRejectsSiblings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.submit(t, 1, "1200")
	f.clock.Advance(time.Minute)
	chosen := f.submit(t, 2, "1500")
	f.clock.Advance(time.Minute)
	last := f.submit(t, 3, "900")

	sel, err := f.svc.SelectBid(ctx, customer, chosen.ID)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if sel.Rejected != 2 || sel.Session.Status != bidding.SessionClosed {
		t.Fatalf("unexpected selection %+v", sel)
	}

	bids, err := f.svc.ListBids(ctx, officer, "app-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	statuses := map[string]bidding.BidStatus{}
	for _, b := range bids {
		statuses[b.ID] = b.Status
	}
	if statuses[chosen.ID] != bidding.BidAccepted || statuses[first.ID] != bidding.BidRejected || statuses[last.ID] != bidding.BidRejected {
		t.Fatalf("unexpected statuses %v", statuses)
	}

	_ = f.db.Bidding().WithinTx(ctx, func(ctx context.Context, tx bidding.Tx) error {
		app, _ := tx.GetApplication(ctx, "app-1")
		if app.Status != bidding.ApplicationInstallerSelected || app.InstallerOrganizationID != "org-2" {
			t.Fatalf("application not updated: %+v", app)
		}
		return nil
	})

	if len(f.notifier.selected) != 1 || f.notifier.selected[0].BidID != chosen.ID {
		t.Fatalf("expected one selection notification, got %+v", f.notifier.selected)
	}

	if _, err := f.svc.SelectBid(ctx, customer, first.ID); !errors.Is(err, bidding.ErrSessionNotOpen) {
		t.Fatalf("second select must fail with not open, got %v", err)
	}
}

func TestSelectBidAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bid := f.submit(t, 1, "1000")

	if _, err := f.svc.SelectBid(ctx, stranger, bid.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := f.svc.SelectBid(ctx, installer(1), bid.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("installer must not select, got %v", err)
	}
	if _, err := f.svc.SelectBid(ctx, officer, bid.ID); err != nil {
		t.Fatalf("officer select: %v", err)
	}
	if _, err := f.svc.SelectBid(ctx, customer, "missing"); !errors.Is(err, bidding.ErrBidNotFound) {
		t.Fatalf("expected bid not found, got %v", err)
	}
}

func TestSelectBidNotificationFailureIsBestEffort(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("webhook down")
	bid := f.submit(t, 1, "1000")
	if _, err := f.svc.SelectBid(context.Background(), customer, bid.ID); err != nil {
		t.Fatalf("select must succeed despite notifier: %v", err)
	}
}

func TestUpdateBidStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bid := f.submit(t, 1, "1000")

	if _, err := f.svc.UpdateBidStatus(ctx, customer, bid.ID, bidding.BidAccepted); !errors.Is(err, bidding.ErrInvalidOverride) {
		t.Fatalf("accepting through override must fail, got %v", err)
	}
	updated, err := f.svc.UpdateBidStatus(ctx, customer, bid.ID, bidding.BidRejected)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if updated.Status != bidding.BidRejected {
		t.Fatalf("unexpected status %s", updated.Status)
	}
	session, err := f.svc.GetSession(ctx, customer, "app-1")
	if err != nil || session.Status != bidding.SessionOpen {
		t.Fatalf("override must not close the session: %v %+v", err, session)
	}
	if _, err := f.svc.SelectBid(ctx, customer, bid.ID); !errors.Is(err, bidding.ErrBidNotPending) {
		t.Fatalf("rejected bid cannot be selected, got %v", err)
	}
	if _, err := f.svc.UpdateBidStatus(ctx, customer, bid.ID, bidding.BidPending); err != nil {
		t.Fatalf("restore pending: %v", err)
	}
	if _, err := f.svc.UpdateBidStatus(ctx, stranger, bid.ID, bidding.BidRejected); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestListBidsInstallerSeesOwnOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, 1, "1000")
	f.submit(t, 2, "1100")

	bids, err := f.svc.ListBids(ctx, installer(1), "app-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(bids) != 1 || bids[0].OrganizationID != "org-1" {
		t.Fatalf("installer saw foreign bids: %+v", bids)
	}
	if _, err := f.svc.ListBids(ctx, stranger, "app-1"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

// lockHookStore runs onLock the first time a session is read FOR UPDATE,
// standing in for a transaction that commits while the lock is awaited.
type lockHookStore struct {
	inner  bidding.Store
	onLock func(ctx context.Context, tx bidding.Tx) error
}

func (s *lockHookStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx bidding.Tx) error) error {
	return s.inner.WithinTx(ctx, func(ctx context.Context, tx bidding.Tx) error {
		return fn(ctx, &lockHookTx{Tx: tx, store: s})
	})
}

type lockHookTx struct {
	bidding.Tx
	store *lockHookStore
}

func (t *lockHookTx) GetSession(ctx context.Context, id string, lock bidding.LockMode) (*bidding.Session, error) {
	if lock == bidding.LockUpdate && t.store.onLock != nil {
		hook := t.store.onLock
		t.store.onLock = nil
		if err := hook(ctx, t.Tx); err != nil {
			return nil, err
		}
	}
	return t.Tx.GetSession(ctx, id, lock)
}

func TestSelectBidSeesOverrideCommittedBeforeLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bid := f.submit(t, 1, "1000")
	other := f.submit(t, 2, "1100")

	store := &lockHookStore{inner: f.db.Bidding(), onLock: func(ctx context.Context, tx bidding.Tx) error {
		return tx.SetBidStatus(ctx, bid.ID, bidding.BidRejected, f.clock.Now())
	}}
	svc, err := NewService(store, f.notifier, nil, WithClock(f.clock.Now))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.SelectBid(ctx, customer, bid.ID); !errors.Is(err, bidding.ErrBidNotPending) {
		t.Fatalf("expected bid not pending, got %v", err)
	}

	session, err := f.svc.GetSession(ctx, customer, "app-1")
	if err != nil || session.Status != bidding.SessionOpen {
		t.Fatalf("session must stay open: %+v %v", session, err)
	}
	if _, err := f.svc.SelectBid(ctx, customer, other.ID); err != nil {
		t.Fatalf("select remaining bid: %v", err)
	}
}

func TestSelectBidOnRejectedApplicationWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bid := f.submit(t, 1, "1000")
	f.submit(t, 2, "1100")

	var writes int
	store := &lockHookStore{inner: f.db.Bidding(), onLock: func(ctx context.Context, tx bidding.Tx) error {
		app, err := tx.GetApplication(ctx, "app-1")
		if err != nil {
			return err
		}
		app.Status = bidding.ApplicationRejected
		return tx.SaveApplicationSelection(ctx, app)
	}}
	counting := &writeCountingStore{inner: store, writes: &writes}
	svc, err := NewService(counting, f.notifier, nil, WithClock(f.clock.Now))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.SelectBid(ctx, customer, bid.ID); !errors.Is(err, bidding.ErrApplicationRejected) {
		t.Fatalf("expected application rejected, got %v", err)
	}
	if writes != 0 {
		t.Fatalf("expected no writes before the state check, got %d", writes)
	}
}

type writeCountingStore struct {
	inner  bidding.Store
	writes *int
}

func (s *writeCountingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx bidding.Tx) error) error {
	return s.inner.WithinTx(ctx, func(ctx context.Context, tx bidding.Tx) error {
		return fn(ctx, &writeCountingTx{Tx: tx, writes: s.writes})
	})
}

type writeCountingTx struct {
	bidding.Tx
	writes *int
}

func (t *writeCountingTx) CloseSession(ctx context.Context, id string, now time.Time) (bool, error) {
	*t.writes++
	return t.Tx.CloseSession(ctx, id, now)
}

func (t *writeCountingTx) SetBidStatus(ctx context.Context, id string, status bidding.BidStatus, now time.Time) error {
	*t.writes++
	return t.Tx.SetBidStatus(ctx, id, status, now)
}

func (t *writeCountingTx) RejectSiblingBids(ctx context.Context, sessionID, keepID string, now time.Time) (int64, error) {
	*t.writes++
	return t.Tx.RejectSiblingBids(ctx, sessionID, keepID, now)
}
