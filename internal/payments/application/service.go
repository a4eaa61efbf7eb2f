package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"solar-portal/internal/auth"
	billing "solar-portal/internal/billing/domain"
	"solar-portal/internal/notify"
	"solar-portal/internal/observability/metrics"
	payments "solar-portal/internal/payments/domain"
	"solar-portal/internal/platform/apperr"
)

const (
	defaultOperationTimeout = 5 * time.Second
	notifyTimeout           = 10 * time.Second
)

// Service reconciles payment provider events with invoices.
type Service struct {
	store    payments.Store
	notifier notify.Notifier
	log      logrus.FieldLogger
	now      func() time.Time
	newID    func() string
	timeout  time.Duration
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

// NewService constructs the payment service. A nil notifier disables notifications.
func NewService(store payments.Store, notifier notify.Notifier, log logrus.FieldLogger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("payment service: nil store")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Service{
		store:    store,
		notifier: notifier,
		log:      log.WithField("component", "payments"),
		now:      time.Now,
		newID:    uuid.NewString,
		timeout:  defaultOperationTimeout,
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

// RegisterIntent records a provider payment intent as a pending transaction.
// The payer is the owner of the referenced invoice or application, or p itself.
func (s *Service) RegisterIntent(ctx context.Context, p auth.Principal, intent payments.Intent) (*payments.Transaction, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	var created *payments.Transaction
	err := s.run(ctx, "register_intent", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx payments.Tx) error {
			customerID := p.ID
			if intent.ApplicationID != "" {
				app, err := tx.GetApplication(ctx, intent.ApplicationID)
				if err != nil {
					return err
				}
				if app == nil {
					return payments.ErrApplicationNotFound
				}
				customerID = app.CustomerID
			}
			if intent.InvoiceID != "" {
				inv, err := tx.GetInvoice(ctx, intent.InvoiceID, false)
				if err != nil {
					return err
				}
				if inv == nil {
					return payments.ErrInvoiceNotFound
				}
				if intent.ApplicationID != "" && inv.ApplicationID != intent.ApplicationID {
					return apperr.New(apperr.Validation, "payments: invoice belongs to another application")
				}
				if !inv.Payable() {
					return payments.ErrInvoiceNotPayable
				}
				customerID = inv.CustomerID
				if intent.Type == "" {
					intent.Type = string(inv.Type)
				}
			}
			if err := auth.Authorize(p, auth.ActionRegisterPayment, auth.Resource{CustomerID: customerID}); err != nil {
				return err
			}
			existing, err := tx.GetByIntent(ctx, intent.ProviderIntentID, false)
			if err != nil {
				return err
			}
			if existing != nil {
				return payments.ErrDuplicateIntent
			}
			t, err := payments.NewTransaction(s.newID(), customerID, intent, s.now())
			if err != nil {
				return err
			}
			if err := tx.Insert(ctx, t); err != nil {
				if errors.Is(err, apperr.ErrConflict) {
					return payments.ErrDuplicateIntent
				}
				return err
			}
			created = t
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"intent_id":   created.ProviderIntentID,
		"customer_id": created.CustomerID,
		"amount":      created.Amount.String(),
	}).Info("payment intent registered")
	return created, nil
}

// Result is the settled state after ConfirmPayment.
type Result struct {
	Transaction     *payments.Transaction `json:"transaction"`
	Invoice         *billing.Invoice      `json:"invoice"`
	FirstSettlement bool                  `json:"first_settlement"`
}

// ConfirmPayment settles the payment identified by providerIntentID and its invoice in one unit of work.
// An invoice is created and linked when the payment has none. Repeating the call returns the
// same settled state without side effects, except that verified supersedes succeeded.
func (s *Service) ConfirmPayment(ctx context.Context, providerIntentID, reportedStatus string) (*Result, error) {
	providerIntentID = strings.TrimSpace(providerIntentID)
	if providerIntentID == "" {
		return nil, payments.ErrEmptyIntentID
	}
	var res Result
	err := s.run(ctx, "confirm_payment", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx payments.Tx) error {
			t, err := tx.GetByIntent(ctx, providerIntentID, true)
			if err != nil {
				return err
			}
			if t == nil {
				return payments.ErrPaymentNotFound
			}
			now := s.now().UTC()
			wasSettled := t.Settled()

			var inv *billing.Invoice
			if t.InvoiceID == "" {
				inv = billing.NewPaymentInvoice(s.newID(), t.ApplicationID, t.CustomerID, t.Type, t.Amount, t.ProviderIntentID, now)
				if err := tx.InsertInvoice(ctx, inv); err != nil {
					return err
				}
				linked, err := tx.LinkInvoice(ctx, t.ID, inv.ID, now)
				if err != nil {
					return err
				}
				if !linked {
					return payments.ErrAlreadyLinked
				}
				t.InvoiceID = inv.ID
			} else {
				inv, err = tx.GetInvoice(ctx, t.InvoiceID, true)
				if err != nil {
					return err
				}
				if inv == nil {
					return payments.ErrInvoiceNotFound
				}
			}

			if t.Settle(reportedStatus, now) {
				if err := tx.UpdateStatus(ctx, t); err != nil {
					return err
				}
			}
			paid, err := tx.MarkInvoicePaid(ctx, inv.ID, now)
			if err != nil {
				return err
			}
			if paid {
				inv.MarkPaid(now)
			}
			res = Result{Transaction: t, Invoice: inv, FirstSettlement: !wasSettled}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	fields := logrus.Fields{
		"intent_id":  providerIntentID,
		"invoice_id": res.Invoice.ID,
		"status":     res.Transaction.Status,
	}
	if !res.FirstSettlement {
		s.log.WithFields(fields).Debug("payment already settled")
		return &res, nil
	}
	metrics.IncPaymentSettled(string(res.Transaction.Status))
	s.log.WithFields(fields).Info("payment settled")
	s.notifyPaymentApproved(ctx, res)
	return &res, nil
}

// FailPayment records a provider failure. Settled or already failed payments are left unchanged.
func (s *Service) FailPayment(ctx context.Context, providerIntentID, reason string) (*payments.Transaction, error) {
	providerIntentID = strings.TrimSpace(providerIntentID)
	if providerIntentID == "" {
		return nil, payments.ErrEmptyIntentID
	}
	var out *payments.Transaction
	err := s.run(ctx, "fail_payment", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx payments.Tx) error {
			t, err := tx.GetByIntent(ctx, providerIntentID, true)
			if err != nil {
				return err
			}
			if t == nil {
				return payments.ErrPaymentNotFound
			}
			if t.Fail(reason, s.now()) {
				if err := tx.UpdateStatus(ctx, t); err != nil {
					return err
				}
				s.log.WithFields(logrus.Fields{"intent_id": providerIntentID, "reason": t.FailureReason}).Warn("payment failed")
			}
			out = t
			return nil
		})
	})
	return out, err
}

// GetByIntent returns the payment for providerIntentID.
func (s *Service) GetByIntent(ctx context.Context, p auth.Principal, providerIntentID string) (*payments.Transaction, error) {
	var out *payments.Transaction
	err := s.run(ctx, "get_payment", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx payments.Tx) error {
			t, err := tx.GetByIntent(ctx, providerIntentID, false)
			if err != nil {
				return err
			}
			if t == nil {
				return payments.ErrPaymentNotFound
			}
			if err := auth.Authorize(p, auth.ActionViewInvoice, auth.Resource{CustomerID: t.CustomerID}); err != nil {
				return err
			}
			out = t
			return nil
		})
	})
	return out, err
}

func (s *Service) notifyPaymentApproved(ctx context.Context, res Result) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	msg := notify.PaymentApproved{
		PaymentID:        res.Transaction.ID,
		ProviderIntentID: res.Transaction.ProviderIntentID,
		InvoiceID:        res.Invoice.ID,
		CustomerID:       res.Transaction.CustomerID,
		ApplicationID:    res.Transaction.ApplicationID,
		Amount:           res.Transaction.Amount,
		Status:           string(res.Transaction.Status),
	}
	if res.Invoice.PaidAt != nil {
		msg.PaidAt = *res.Invoice.PaidAt
	}
	if err := s.notifier.NotifyPaymentApproved(ctx, msg); err != nil {
		metrics.IncNotificationFailure(string(notify.KindPaymentApproved))
		s.log.WithError(err).WithField("intent_id", msg.ProviderIntentID).Warn("payment approved notification failed")
	}
}
