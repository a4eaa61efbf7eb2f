package memory

import (
	"context"
	"sort"
	"time"

	bidding "solar-portal/internal/bidding/domain"
)

type biddingStore struct {
	db *DB
}

func (s biddingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx bidding.Tx) error) error {
	return s.db.withinTx(ctx, func(st *state) error {
		return fn(ctx, biddingTx{st: st})
	})
}

type biddingTx struct {
	st *state
}

func (t biddingTx) GetApplication(_ context.Context, id string) (*bidding.Application, error) {
	app, ok := t.st.applications[id]
	if !ok {
		return nil, nil
	}
	return &app, nil
}

func (t biddingTx) SaveApplicationSelection(_ context.Context, app *bidding.Application) error {
	stored, ok := t.st.applications[app.ID]
	if !ok {
		return bidding.ErrApplicationNotFound
	}
	stored.Status = app.Status
	stored.InstallerOrganizationID = app.InstallerOrganizationID
	stored.SelectedPackageID = app.SelectedPackageID
	stored.UpdatedAt = app.UpdatedAt
	t.st.applications[app.ID] = stored
	return nil
}

func (t biddingTx) UpsertOpenSession(_ context.Context, s *bidding.Session) (*bidding.Session, error) {
	if id, ok := t.st.sessionByApp[s.ApplicationID]; ok {
		existing := t.st.sessions[id]
		if existing.Status == bidding.SessionClosed {
			return nil, nil
		}
		if existing.Status == bidding.SessionExpired {
			existing.StartedAt = s.StartedAt
		}
		existing.Status = bidding.SessionOpen
		existing.ExpiresAt = s.ExpiresAt
		existing.UpdatedAt = s.UpdatedAt
		t.st.sessions[id] = existing
		return &existing, nil
	}
	stored := *s
	t.st.sessions[stored.ID] = stored
	t.st.sessionByApp[stored.ApplicationID] = stored.ID
	return &stored, nil
}

func (t biddingTx) InsertSessionIfAbsent(_ context.Context, s *bidding.Session) error {
	if _, ok := t.st.sessionByApp[s.ApplicationID]; ok {
		return nil
	}
	t.st.sessions[s.ID] = *s
	t.st.sessionByApp[s.ApplicationID] = s.ID
	return nil
}

func (t biddingTx) GetSession(_ context.Context, id string, _ bidding.LockMode) (*bidding.Session, error) {
	s, ok := t.st.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (t biddingTx) GetSessionByApplication(ctx context.Context, applicationID string, lock bidding.LockMode) (*bidding.Session, error) {
	id, ok := t.st.sessionByApp[applicationID]
	if !ok {
		return nil, nil
	}
	return t.GetSession(ctx, id, lock)
}

func (t biddingTx) CloseSession(_ context.Context, id string, now time.Time) (bool, error) {
	s, ok := t.st.sessions[id]
	if !ok || s.Status != bidding.SessionOpen {
		return false, nil
	}
	s.Status = bidding.SessionClosed
	s.UpdatedAt = now
	t.st.sessions[id] = s
	return true, nil
}

func (t biddingTx) ExpireDueSessions(_ context.Context, now time.Time) ([]bidding.Session, error) {
	var out []bidding.Session
	for id, s := range t.st.sessions {
		if !s.Due(now) {
			continue
		}
		s.Status = bidding.SessionExpired
		s.UpdatedAt = now
		t.st.sessions[id] = s
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (t biddingTx) InsertBid(_ context.Context, bid *bidding.Bid) error {
	if _, ok := t.st.bids[bid.ID]; ok {
		return errDuplicate
	}
	if s, ok := t.st.sessions[bid.SessionID]; !ok || s.Status != bidding.SessionOpen {
		return bidding.ErrSessionNotOpen
	}
	t.st.bids[bid.ID] = *bid
	return nil
}

func (t biddingTx) GetBid(_ context.Context, id string) (*bidding.Bid, error) {
	bid, ok := t.st.bids[id]
	if !ok {
		return nil, nil
	}
	return &bid, nil
}

func (t biddingTx) ListBids(_ context.Context, filter bidding.BidFilter) ([]bidding.Bid, error) {
	out := []bidding.Bid{}
	for _, bid := range t.st.bids {
		if filter.SessionID != "" && bid.SessionID != filter.SessionID {
			continue
		}
		if filter.OrganizationID != "" && bid.OrganizationID != filter.OrganizationID {
			continue
		}
		out = append(out, bid)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (t biddingTx) SetBidStatus(_ context.Context, id string, status bidding.BidStatus, now time.Time) error {
	bid, ok := t.st.bids[id]
	if !ok {
		return bidding.ErrBidNotFound
	}
	bid.Status = status
	bid.UpdatedAt = now
	t.st.bids[id] = bid
	return nil
}

func (t biddingTx) RejectSiblingBids(_ context.Context, sessionID, keepID string, now time.Time) (int64, error) {
	var n int64
	for id, bid := range t.st.bids {
		if bid.SessionID != sessionID || id == keepID || bid.Status != bidding.BidPending {
			continue
		}
		bid.Status = bidding.BidRejected
		bid.UpdatedAt = now
		t.st.bids[id] = bid
		n++
	}
	return n, nil
}

func (t biddingTx) ExpirePendingBids(_ context.Context, sessionIDs []string, now time.Time) (int64, error) {
	set := make(map[string]struct{}, len(sessionIDs))
	for _, id := range sessionIDs {
		set[id] = struct{}{}
	}
	var n int64
	for id, bid := range t.st.bids {
		if _, ok := set[bid.SessionID]; !ok || bid.Status != bidding.BidPending {
			continue
		}
		bid.Status = bidding.BidExpired
		bid.UpdatedAt = now
		t.st.bids[id] = bid
		n++
	}
	return n, nil
}
