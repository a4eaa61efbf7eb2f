package notify

import (
	"context"
	"errors"
)

// MultiNotifier fans notifications out to several notifiers.
// Every notifier is attempted; failures are joined.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier constructs a MultiNotifier, skipping nil entries.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	out := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return &MultiNotifier{notifiers: out}
}

func (m *MultiNotifier) NotifyPaymentApproved(ctx context.Context, msg PaymentApproved) error {
	return m.each(func(n Notifier) error { return n.NotifyPaymentApproved(ctx, msg) })
}

func (m *MultiNotifier) NotifySessionExpired(ctx context.Context, msg SessionExpired) error {
	return m.each(func(n Notifier) error { return n.NotifySessionExpired(ctx, msg) })
}

func (m *MultiNotifier) NotifyBidSelected(ctx context.Context, msg BidSelected) error {
	return m.each(func(n Notifier) error { return n.NotifyBidSelected(ctx, msg) })
}

func (m *MultiNotifier) each(fn func(Notifier) error) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, n := range m.notifiers {
		if err := fn(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
