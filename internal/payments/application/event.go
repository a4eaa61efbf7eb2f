package application

import (
	"context"
	"strings"

	payments "solar-portal/internal/payments/domain"
	"solar-portal/internal/platform/apperr"
)

// Event is a provider notification delivered by webhook or by the event stream.
type Event struct {
	IntentID string `json:"intent_id"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
}

// ErrUnknownEventStatus is returned for provider statuses the reconciler does not act on.
var ErrUnknownEventStatus = apperr.New(apperr.Validation, "payments: unknown event status")

// HandleEvent routes a provider event to ConfirmPayment or FailPayment.
func (s *Service) HandleEvent(ctx context.Context, event Event) (*payments.Transaction, error) {
	switch strings.ToLower(strings.TrimSpace(event.Status)) {
	case string(payments.StatusSucceeded), string(payments.StatusVerified):
		res, err := s.ConfirmPayment(ctx, event.IntentID, event.Status)
		if err != nil {
			return nil, err
		}
		return res.Transaction, nil
	case string(payments.StatusFailed):
		return s.FailPayment(ctx, event.IntentID, event.Reason)
	default:
		return nil, ErrUnknownEventStatus
	}
}
