package bidding

import (
	"context"
	"time"
)

// LockMode selects the row lock taken when reading a session.
type LockMode int

const (
	LockNone LockMode = iota
	// LockShare blocks concurrent status changes while a bid is admitted.
	LockShare
	// LockUpdate serializes status changes on the session.
	LockUpdate
)

// Store opens units of work against bidding state.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of reads and conditional writes available inside one unit of work.
// Getters return nil, nil when the row does not exist.
type Tx interface {
	GetApplication(ctx context.Context, id string) (*Application, error)
	SaveApplicationSelection(ctx context.Context, app *Application) error

	// UpsertOpenSession inserts s or re-opens the existing row for s.ApplicationID.
	// A closed row is left untouched and nil is returned. An expired row restarts at s.StartedAt;
	// an open row keeps its StartedAt. ExpiresAt is always taken from s.
	UpsertOpenSession(ctx context.Context, s *Session) (*Session, error)
	// InsertSessionIfAbsent inserts s unless a session exists for its application.
	InsertSessionIfAbsent(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string, lock LockMode) (*Session, error)
	GetSessionByApplication(ctx context.Context, applicationID string, lock LockMode) (*Session, error)
	// CloseSession moves the session from open to closed and reports whether it won.
	CloseSession(ctx context.Context, id string, now time.Time) (bool, error)
	// ExpireDueSessions moves every open session with expires_at <= now to expired.
	ExpireDueSessions(ctx context.Context, now time.Time) ([]Session, error)

	InsertBid(ctx context.Context, bid *Bid) error
	GetBid(ctx context.Context, id string) (*Bid, error)
	ListBids(ctx context.Context, filter BidFilter) ([]Bid, error)
	SetBidStatus(ctx context.Context, id string, status BidStatus, now time.Time) error
	// RejectSiblingBids rejects every pending bid in the session except keepID.
	RejectSiblingBids(ctx context.Context, sessionID, keepID string, now time.Time) (int64, error)
	// ExpirePendingBids expires the pending bids of the given sessions.
	ExpirePendingBids(ctx context.Context, sessionIDs []string, now time.Time) (int64, error)
}

// BidFilter narrows ListBids.
type BidFilter struct {
	SessionID      string
	OrganizationID string
}
