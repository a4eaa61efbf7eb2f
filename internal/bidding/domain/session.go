package bidding

import "time"

// SessionStatus is the bid session lifecycle state.
type SessionStatus string

const (
	SessionOpen    SessionStatus = "open"
	SessionClosed  SessionStatus = "closed"
	SessionExpired SessionStatus = "expired"
)

// DefaultSessionDuration is used when a bid arrives before the customer opened a session.
const DefaultSessionDuration = 48 * time.Hour

// MaxSessionDuration bounds how far a session deadline may be pushed.
const MaxSessionDuration = 365 * 24 * time.Hour

// ValidSessionDuration reports whether d is in (0, MaxSessionDuration].
func ValidSessionDuration(d time.Duration) bool {
	return d > 0 && d <= MaxSessionDuration
}

// Session is the time-boxed bidding window of one application.
type Session struct {
	ID            string
	ApplicationID string
	CustomerID    string
	Status        SessionStatus
	StartedAt     time.Time
	ExpiresAt     time.Time
	UpdatedAt     time.Time
}

// NewOpenSession builds an open session starting at now.
func NewOpenSession(id string, app *Application, now time.Time, duration time.Duration) (*Session, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	if !ValidSessionDuration(duration) {
		return nil, ErrInvalidDuration
	}
	now = now.UTC()
	return &Session{
		ID:            id,
		ApplicationID: app.ID,
		CustomerID:    app.CustomerID,
		Status:        SessionOpen,
		StartedAt:     now,
		ExpiresAt:     now.Add(duration),
		UpdatedAt:     now,
	}, nil
}

// AcceptsBidsAt validates that a bid may be admitted at now.
func (s *Session) AcceptsBidsAt(now time.Time) error {
	if s.Status != SessionOpen {
		return ErrSessionNotOpen
	}
	if !now.Before(s.ExpiresAt) {
		return ErrSessionDeadlinePassed
	}
	return nil
}

// Due reports whether the sweeper should expire the session at now.
func (s *Session) Due(now time.Time) bool {
	return s.Status == SessionOpen && !s.ExpiresAt.After(now)
}
