package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	bidding "solar-portal/internal/bidding/domain"
	"solar-portal/internal/platform/database"
)

const sessionColumns = `id, application_id, customer_id, status, started_at, expires_at, updated_at`

const bidColumns = `id, application_id, bid_session_id, installer_id, organization_id, package_id,
	price, proposal, warranty, estimated_days, status, created_at, updated_at`

// Store persists applications, bid sessions and bids.
type Store struct {
	db *sql.DB
}

// NewStore constructs a store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// WithinTx runs fn in one database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx bidding.Tx) error) error {
	if s == nil || s.db == nil {
		return errors.New("bidding store: nil db")
	}
	return database.WithinTx(ctx, s.db, func(sqlTx *sql.Tx) error {
		return fn(ctx, &Tx{tx: sqlTx})
	})
}

// Tx implements bidding.Tx on a live transaction.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) GetApplication(ctx context.Context, id string) (*bidding.Application, error) {
	row := t.tx.QueryRowContext(ctx, `
SELECT id, reference, status, customer_id, installer_organization_id, selected_package_id,
	site_visit_date, rejection_reason, created_at, updated_at
FROM applications
WHERE id = $1`, id)
	var (
		app       bidding.Application
		status    string
		orgID     sql.NullString
		packageID sql.NullString
		siteVisit sql.NullTime
		reason    sql.NullString
	)
	err := row.Scan(&app.ID, &app.Reference, &status, &app.CustomerID, &orgID, &packageID,
		&siteVisit, &reason, &app.CreatedAt, &app.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Classify(err)
	}
	app.Status = bidding.ApplicationStatus(status)
	app.InstallerOrganizationID = orgID.String
	app.SelectedPackageID = packageID.String
	app.SiteVisitDate = database.UTCPtr(siteVisit)
	app.RejectionReason = reason.String
	app.CreatedAt = app.CreatedAt.UTC()
	app.UpdatedAt = app.UpdatedAt.UTC()
	return &app, nil
}

func (t *Tx) SaveApplicationSelection(ctx context.Context, app *bidding.Application) error {
	res, err := t.tx.ExecContext(ctx, `
UPDATE applications
SET status = $2, installer_organization_id = $3, selected_package_id = $4, updated_at = $5
WHERE id = $1`, app.ID, string(app.Status), database.NullString(app.InstallerOrganizationID),
		database.NullString(app.SelectedPackageID), app.UpdatedAt.UTC())
	if err != nil {
		return database.Classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return bidding.ErrApplicationNotFound
	}
	return nil
}

func (t *Tx) UpsertOpenSession(ctx context.Context, s *bidding.Session) (*bidding.Session, error) {
	row := t.tx.QueryRowContext(ctx, `
INSERT INTO bid_sessions (`+sessionColumns+`)
VALUES ($1, $2, $3, 'open', $4, $5, $6)
ON CONFLICT (application_id) DO UPDATE SET
	status = 'open',
	started_at = CASE WHEN bid_sessions.status = 'expired' THEN EXCLUDED.started_at ELSE bid_sessions.started_at END,
	expires_at = EXCLUDED.expires_at,
	updated_at = EXCLUDED.updated_at
WHERE bid_sessions.status <> 'closed'
RETURNING `+sessionColumns,
		s.ID, s.ApplicationID, s.CustomerID, s.StartedAt.UTC(), s.ExpiresAt.UTC(), s.UpdatedAt.UTC())
	stored, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Classify(err)
	}
	return stored, nil
}

func (t *Tx) InsertSessionIfAbsent(ctx context.Context, s *bidding.Session) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO bid_sessions (`+sessionColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (application_id) DO NOTHING`,
		s.ID, s.ApplicationID, s.CustomerID, string(s.Status), s.StartedAt.UTC(), s.ExpiresAt.UTC(), s.UpdatedAt.UTC())
	return database.Classify(err)
}

func (t *Tx) GetSession(ctx context.Context, id string, lock bidding.LockMode) (*bidding.Session, error) {
	row := t.tx.QueryRowContext(ctx, `
SELECT `+sessionColumns+`
FROM bid_sessions
WHERE id = $1`+lockClause(lock), id)
	return sessionOrNil(scanSession(row))
}

func (t *Tx) GetSessionByApplication(ctx context.Context, applicationID string, lock bidding.LockMode) (*bidding.Session, error) {
	row := t.tx.QueryRowContext(ctx, `
SELECT `+sessionColumns+`
FROM bid_sessions
WHERE application_id = $1`+lockClause(lock), applicationID)
	return sessionOrNil(scanSession(row))
}

func (t *Tx) CloseSession(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
UPDATE bid_sessions SET status = 'closed', updated_at = $2
WHERE id = $1 AND status = 'open'`, id, now.UTC())
	if err != nil {
		return false, database.Classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *Tx) ExpireDueSessions(ctx context.Context, now time.Time) ([]bidding.Session, error) {
	rows, err := t.tx.QueryContext(ctx, `
UPDATE bid_sessions SET status = 'expired', updated_at = $1
WHERE status = 'open' AND expires_at <= $1
RETURNING `+sessionColumns, now.UTC())
	if err != nil {
		return nil, database.Classify(err)
	}
	defer rows.Close()
	var out []bidding.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify(err)
	}
	return out, nil
}

func (t *Tx) InsertBid(ctx context.Context, bid *bidding.Bid) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO bids (`+bidColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		bid.ID, bid.ApplicationID, bid.SessionID, bid.InstallerID, bid.OrganizationID,
		database.NullString(bid.PackageID), bid.Price, bid.Proposal, bid.Warranty, bid.EstimatedDays,
		string(bid.Status), bid.CreatedAt.UTC(), bid.UpdatedAt.UTC())
	return database.Classify(err)
}

func (t *Tx) GetBid(ctx context.Context, id string) (*bidding.Bid, error) {
	row := t.tx.QueryRowContext(ctx, `
SELECT `+bidColumns+`
FROM bids
WHERE id = $1`, id)
	bid, err := scanBid(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Classify(err)
	}
	return bid, nil
}

func (t *Tx) ListBids(ctx context.Context, filter bidding.BidFilter) ([]bidding.Bid, error) {
	rows, err := t.tx.QueryContext(ctx, `
SELECT `+bidColumns+`
FROM bids
WHERE ($1 = '' OR bid_session_id = $1) AND ($2 = '' OR organization_id = $2)
ORDER BY created_at, id`, filter.SessionID, filter.OrganizationID)
	if err != nil {
		return nil, database.Classify(err)
	}
	defer rows.Close()
	out := []bidding.Bid{}
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *bid)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify(err)
	}
	return out, nil
}

func (t *Tx) SetBidStatus(ctx context.Context, id string, status bidding.BidStatus, now time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
UPDATE bids SET status = $2, updated_at = $3
WHERE id = $1`, id, string(status), now.UTC())
	if err != nil {
		return database.Classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return bidding.ErrBidNotFound
	}
	return nil
}

func (t *Tx) RejectSiblingBids(ctx context.Context, sessionID, keepID string, now time.Time) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
UPDATE bids SET status = 'rejected', updated_at = $3
WHERE bid_session_id = $1 AND id <> $2 AND status = 'pending'`, sessionID, keepID, now.UTC())
	if err != nil {
		return 0, database.Classify(err)
	}
	return res.RowsAffected()
}

func (t *Tx) ExpirePendingBids(ctx context.Context, sessionIDs []string, now time.Time) (int64, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}
	res, err := t.tx.ExecContext(ctx, `
UPDATE bids SET status = 'expired', updated_at = $2
WHERE bid_session_id = ANY($1) AND status = 'pending'`, sessionIDs, now.UTC())
	if err != nil {
		return 0, database.Classify(err)
	}
	return res.RowsAffected()
}

func lockClause(lock bidding.LockMode) string {
	switch lock {
	case bidding.LockShare:
		return "\nFOR SHARE"
	case bidding.LockUpdate:
		return "\nFOR UPDATE"
	default:
		return ""
	}
}

func sessionOrNil(s *bidding.Session, err error) (*bidding.Session, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Classify(err)
	}
	return s, nil
}

func scanSession(row database.RowScanner) (*bidding.Session, error) {
	var (
		s      bidding.Session
		status string
	)
	if err := row.Scan(&s.ID, &s.ApplicationID, &s.CustomerID, &status, &s.StartedAt, &s.ExpiresAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Status = bidding.SessionStatus(status)
	s.StartedAt = s.StartedAt.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

func scanBid(row database.RowScanner) (*bidding.Bid, error) {
	var (
		bid       bidding.Bid
		packageID sql.NullString
		status    string
	)
	if err := row.Scan(&bid.ID, &bid.ApplicationID, &bid.SessionID, &bid.InstallerID, &bid.OrganizationID,
		&packageID, &bid.Price, &bid.Proposal, &bid.Warranty, &bid.EstimatedDays, &status,
		&bid.CreatedAt, &bid.UpdatedAt); err != nil {
		return nil, err
	}
	bid.PackageID = packageID.String
	bid.Status = bidding.BidStatus(status)
	bid.CreatedAt = bid.CreatedAt.UTC()
	bid.UpdatedAt = bid.UpdatedAt.UTC()
	return &bid, nil
}
