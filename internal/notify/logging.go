package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LoggingNotifier writes notifications to the structured log.
type LoggingNotifier struct {
	log logrus.FieldLogger
}

// NewLoggingNotifier constructs a LoggingNotifier.
func NewLoggingNotifier(log logrus.FieldLogger) *LoggingNotifier {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LoggingNotifier{log: log}
}

func (n *LoggingNotifier) NotifyPaymentApproved(_ context.Context, msg PaymentApproved) error {
	n.log.WithFields(logrus.Fields{
		"kind":       KindPaymentApproved,
		"invoice_id": msg.InvoiceID,
		"intent_id":  msg.ProviderIntentID,
		"amount":     msg.Amount.StringFixed(2),
		"status":     msg.Status,
	}).Info("notification")
	return nil
}

func (n *LoggingNotifier) NotifySessionExpired(_ context.Context, msg SessionExpired) error {
	n.log.WithFields(logrus.Fields{
		"kind":           KindSessionExpired,
		"session_id":     msg.SessionID,
		"application_id": msg.ApplicationID,
	}).Info("notification")
	return nil
}

func (n *LoggingNotifier) NotifyBidSelected(_ context.Context, msg BidSelected) error {
	n.log.WithFields(logrus.Fields{
		"kind":            KindBidSelected,
		"application_id":  msg.ApplicationID,
		"bid_id":          msg.BidID,
		"organization_id": msg.OrganizationID,
	}).Info("notification")
	return nil
}
