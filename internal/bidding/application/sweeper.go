package application

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	bidding "solar-portal/internal/bidding/domain"
	"solar-portal/internal/notify"
	"solar-portal/internal/observability/metrics"
)

// SweepReport summarizes one sweeper pass.
type SweepReport struct {
	SessionIDs      []string  `json:"session_ids"`
	SessionsExpired int       `json:"sessions_expired"`
	BidsExpired     int64     `json:"bids_expired"`
	RanAt           time.Time `json:"ran_at"`
}

// SweepExpiredSessions expires every open session whose deadline is at or before now,
// together with its pending bids. Sessions closed concurrently by SelectBid are skipped.
func (s *Service) SweepExpiredSessions(ctx context.Context, now time.Time) (SweepReport, error) {
	if now.IsZero() {
		now = s.now()
	}
	now = now.UTC()
	report := SweepReport{RanAt: now, SessionIDs: []string{}}
	var expired []bidding.Session
	err := s.run(ctx, "sweep_expired_sessions", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx bidding.Tx) error {
			sessions, err := tx.ExpireDueSessions(ctx, now)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				return nil
			}
			ids := make([]string, 0, len(sessions))
			for _, session := range sessions {
				ids = append(ids, session.ID)
			}
			bids, err := tx.ExpirePendingBids(ctx, ids, now)
			if err != nil {
				return err
			}
			expired = sessions
			report.SessionIDs = ids
			report.SessionsExpired = len(sessions)
			report.BidsExpired = bids
			return nil
		})
	})
	if err != nil {
		return SweepReport{}, err
	}
	metrics.AddSweep(int64(report.SessionsExpired), report.BidsExpired)
	if report.SessionsExpired > 0 {
		s.log.WithFields(logrus.Fields{
			"sessions": report.SessionsExpired,
			"bids":     report.BidsExpired,
		}).Info("bid sessions expired")
	}
	for _, session := range expired {
		s.notifySessionExpired(ctx, session)
	}
	return report, nil
}

func (s *Service) notifySessionExpired(ctx context.Context, session bidding.Session) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	err := s.notifier.NotifySessionExpired(ctx, notify.SessionExpired{
		SessionID:     session.ID,
		ApplicationID: session.ApplicationID,
		CustomerID:    session.CustomerID,
		ExpiresAt:     session.ExpiresAt,
	})
	if err != nil {
		metrics.IncNotificationFailure(string(notify.KindSessionExpired))
		s.log.WithError(err).WithField("session_id", session.ID).Warn("session expired notification failed")
	}
}
