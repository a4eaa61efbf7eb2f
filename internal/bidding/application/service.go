package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"solar-portal/internal/auth"
	bidding "solar-portal/internal/bidding/domain"
	"solar-portal/internal/notify"
	"solar-portal/internal/observability/metrics"
)

const (
	defaultOperationTimeout = 5 * time.Second
	notifyTimeout           = 10 * time.Second
)

// Service runs the bid session state machine.
type Service struct {
	store           bidding.Store
	notifier        notify.Notifier
	log             logrus.FieldLogger
	now             func() time.Time
	newID           func() string
	timeout         time.Duration
	defaultDuration time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithOperationTimeout bounds every operation.
func WithOperationTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithDefaultSessionDuration sets the window of lazily created sessions.
func WithDefaultSessionDuration(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.defaultDuration = d
		}
	}
}

// NewService constructs the bidding service. A nil notifier disables notifications.
func NewService(store bidding.Store, notifier notify.Notifier, log logrus.FieldLogger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("bidding service: nil store")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Service{
		store:           store,
		notifier:        notifier,
		log:             log.WithField("component", "bidding"),
		now:             time.Now,
		newID:           uuid.NewString,
		timeout:         defaultOperationTimeout,
		defaultDuration: bidding.DefaultSessionDuration,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := fn(ctx)
	metrics.ObserveOperation(op, err, time.Since(start))
	return err
}

// OpenOrExtendSession opens the application's bid session or moves its deadline to now+duration.
// An expired session is re-opened with a fresh start; a closed one stays closed.
func (s *Service) OpenOrExtendSession(ctx context.Context, p auth.Principal, applicationID string, duration time.Duration) (*bidding.Session, error) {
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return nil, bidding.ErrEmptyID
	}
	if !bidding.ValidSessionDuration(duration) {
		return nil, bidding.ErrInvalidDuration
	}
	var saved *bidding.Session
	err := s.run(ctx, "open_or_extend_session", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx bidding.Tx) error {
			app, err := tx.GetApplication(ctx, applicationID)
			if err != nil {
				return err
			}
			if app == nil {
				return bidding.ErrApplicationNotFound
			}
			if err := auth.Authorize(p, auth.ActionOpenSession, auth.Resource{CustomerID: app.CustomerID}); err != nil {
				return err
			}
			if err := app.AcceptsBidding(); err != nil {
				return err
			}
			candidate, err := bidding.NewOpenSession(s.newID(), app, s.now(), duration)
			if err != nil {
				return err
			}
			saved, err = tx.UpsertOpenSession(ctx, candidate)
			if err != nil {
				return err
			}
			if saved == nil {
				return bidding.ErrSessionClosed
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"application_id": applicationID,
		"session_id":     saved.ID,
		"expires_at":     saved.ExpiresAt,
	}).Info("bid session opened")
	return saved, nil
}

// GetSession returns the application's bid session.
func (s *Service) GetSession(ctx context.Context, p auth.Principal, applicationID string) (*bidding.Session, error) {
	var session *bidding.Session
	err := s.run(ctx, "get_session", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx bidding.Tx) error {
			found, err := tx.GetSessionByApplication(ctx, applicationID, bidding.LockNone)
			if err != nil {
				return err
			}
			if found == nil {
				return bidding.ErrSessionNotFound
			}
			if err := auth.Authorize(p, auth.ActionViewSession, auth.Resource{CustomerID: found.CustomerID}); err != nil {
				return err
			}
			session = found
			return nil
		})
	})
	return session, err
}

// SubmitBid admits a pending bid for the installer organization.
// The session is created with the default window when none exists yet.
func (s *Service) SubmitBid(ctx context.Context, p auth.Principal, applicationID, organizationID string, fields bidding.BidFields) (*bidding.Bid, error) {
	if strings.TrimSpace(applicationID) == "" {
		return nil, bidding.ErrEmptyID
	}
	if organizationID == "" {
		return nil, bidding.ErrEmptyOrganization
	}
	if err := fields.Validate(); err != nil {
		return nil, err
	}
	if err := auth.Authorize(p, auth.ActionSubmitBid, auth.Resource{OrganizationID: organizationID}); err != nil {
		return nil, err
	}

	var bid *bidding.Bid
	err := s.run(ctx, "submit_bid", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx bidding.Tx) error {
			app, err := tx.GetApplication(ctx, applicationID)
			if err != nil {
				return err
			}
			if app == nil {
				return bidding.ErrApplicationNotFound
			}
			if err := app.AcceptsBidding(); err != nil {
				return err
			}
			now := s.now()
			lazy, err := bidding.NewOpenSession(s.newID(), app, now, s.defaultDuration)
			if err != nil {
				return err
			}
			if err := tx.InsertSessionIfAbsent(ctx, lazy); err != nil {
				return err
			}
			session, err := tx.GetSessionByApplication(ctx, applicationID, bidding.LockShare)
			if err != nil {
				return err
			}
			if session == nil {
				return bidding.ErrSessionNotFound
			}
			bid, err = bidding.NewBid(s.newID(), session, p.ID, organizationID, fields, now)
			if err != nil {
				return err
			}
			return tx.InsertBid(ctx, bid)
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"application_id":  applicationID,
		"bid_id":          bid.ID,
		"organization_id": organizationID,
	}).Info("bid submitted")
	return bid, nil
}

// Selection is the outcome of SelectBid.
type Selection struct {
	Session  *bidding.Session `json:"session"`
	Accepted *bidding.Bid     `json:"accepted"`
	Rejected int64            `json:"rejected"`
}

// SelectBid accepts bidID, rejects its pending siblings and closes the session in one unit of work.
func (s *Service) SelectBid(ctx context.Context, p auth.Principal, bidID string) (*Selection, error) {
	if strings.TrimSpace(bidID) == "" {
		return nil, bidding.ErrEmptyID
	}
	var out Selection
	err := s.run(ctx, "select_bid", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx bidding.Tx) error {
			bid, err := tx.GetBid(ctx, bidID)
			if err != nil {
				return err
			}
			if bid == nil {
				return bidding.ErrBidNotFound
			}
			session, err := tx.GetSession(ctx, bid.SessionID, bidding.LockUpdate)
			if err != nil {
				return err
			}
			if session == nil {
				return bidding.ErrSessionNotFound
			}
			if err := auth.Authorize(p, auth.ActionSelectBid, auth.Resource{CustomerID: session.CustomerID}); err != nil {
				return err
			}
			if session.Status != bidding.SessionOpen {
				return bidding.ErrSessionNotOpen
			}
			// Overrides commit under the same session lock; read the bid again now that it is held.
			if bid, err = lockedBid(ctx, tx, bidID); err != nil {
				return err
			}
			if bid.Status != bidding.BidPending {
				return bidding.ErrBidNotPending
			}
			app, err := tx.GetApplication(ctx, bid.ApplicationID)
			if err != nil {
				return err
			}
			if app == nil {
				return bidding.ErrApplicationNotFound
			}
			if app.Status == bidding.ApplicationRejected {
				return bidding.ErrApplicationRejected
			}

			now := s.now().UTC()
			won, err := tx.CloseSession(ctx, session.ID, now)
			if err != nil {
				return err
			}
			if !won {
				return bidding.ErrSessionNotOpen
			}
			if err := tx.SetBidStatus(ctx, bid.ID, bidding.BidAccepted, now); err != nil {
				return err
			}
			rejected, err := tx.RejectSiblingBids(ctx, session.ID, bid.ID, now)
			if err != nil {
				return err
			}
			if err := app.SelectInstaller(bid.OrganizationID, bid.PackageID, now); err != nil {
				return err
			}
			if err := tx.SaveApplicationSelection(ctx, app); err != nil {
				return err
			}

			session.Status = bidding.SessionClosed
			session.UpdatedAt = now
			bid.Status = bidding.BidAccepted
			bid.UpdatedAt = now
			out = Selection{Session: session, Accepted: bid, Rejected: rejected}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"application_id": out.Session.ApplicationID,
		"bid_id":         out.Accepted.ID,
		"rejected":       out.Rejected,
	}).Info("bid selected")
	s.notifyBidSelected(ctx, out)
	return &out, nil
}

// UpdateBidStatus overrides a bid to pending or rejected while its session is open.
func (s *Service) UpdateBidStatus(ctx context.Context, p auth.Principal, bidID string, status bidding.BidStatus) (*bidding.Bid, error) {
	if strings.TrimSpace(bidID) == "" {
		return nil, bidding.ErrEmptyID
	}
	if !bidding.ValidOverride(status) {
		return nil, bidding.ErrInvalidOverride
	}
	var updated *bidding.Bid
	err := s.run(ctx, "update_bid_status", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx bidding.Tx) error {
			bid, err := tx.GetBid(ctx, bidID)
			if err != nil {
				return err
			}
			if bid == nil {
				return bidding.ErrBidNotFound
			}
			session, err := tx.GetSession(ctx, bid.SessionID, bidding.LockUpdate)
			if err != nil {
				return err
			}
			if session == nil {
				return bidding.ErrSessionNotFound
			}
			if err := auth.Authorize(p, auth.ActionUpdateBid, auth.Resource{CustomerID: session.CustomerID}); err != nil {
				return err
			}
			if session.Status != bidding.SessionOpen {
				return bidding.ErrSessionNotOpen
			}
			if bid, err = lockedBid(ctx, tx, bidID); err != nil {
				return err
			}
			if !bid.Overridable() {
				return bidding.ErrBidFinal
			}
			now := s.now().UTC()
			if bid.Status != status {
				if err := tx.SetBidStatus(ctx, bid.ID, status, now); err != nil {
					return err
				}
				bid.Status = status
				bid.UpdatedAt = now
			}
			updated = bid
			return nil
		})
	})
	return updated, err
}

func lockedBid(ctx context.Context, tx bidding.Tx, bidID string) (*bidding.Bid, error) {
	bid, err := tx.GetBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid == nil {
		return nil, bidding.ErrBidNotFound
	}
	return bid, nil
}

// ListBids returns the bids of the application's session.
// Installers only see bids of their own organization.
func (s *Service) ListBids(ctx context.Context, p auth.Principal, applicationID string) ([]bidding.Bid, error) {
	var bids []bidding.Bid
	err := s.run(ctx, "list_bids", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx bidding.Tx) error {
			app, err := tx.GetApplication(ctx, applicationID)
			if err != nil {
				return err
			}
			if app == nil {
				return bidding.ErrApplicationNotFound
			}
			if err := auth.Authorize(p, auth.ActionListBids, auth.Resource{CustomerID: app.CustomerID}); err != nil {
				return err
			}
			session, err := tx.GetSessionByApplication(ctx, applicationID, bidding.LockNone)
			if err != nil {
				return err
			}
			if session == nil {
				bids = []bidding.Bid{}
				return nil
			}
			filter := bidding.BidFilter{SessionID: session.ID}
			if p.Role == auth.RoleInstaller {
				filter.OrganizationID = p.OrganizationID
			}
			bids, err = tx.ListBids(ctx, filter)
			return err
		})
	})
	return bids, err
}

func (s *Service) notifyBidSelected(ctx context.Context, sel Selection) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	err := s.notifier.NotifyBidSelected(ctx, notify.BidSelected{
		SessionID:      sel.Session.ID,
		ApplicationID:  sel.Session.ApplicationID,
		CustomerID:     sel.Session.CustomerID,
		BidID:          sel.Accepted.ID,
		OrganizationID: sel.Accepted.OrganizationID,
		Price:          sel.Accepted.Price,
		RejectedBids:   sel.Rejected,
	})
	if err != nil {
		metrics.IncNotificationFailure(string(notify.KindBidSelected))
		s.log.WithError(err).WithField("bid_id", sel.Accepted.ID).Warn("bid selected notification failed")
	}
}
