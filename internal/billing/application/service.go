package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solar-portal/internal/auth"
	billing "solar-portal/internal/billing/domain"
	"solar-portal/internal/observability/metrics"
)

const (
	defaultOperationTimeout = 5 * time.Second
	defaultDueDay           = 15
	defaultListLimit        = 200
)

// RateProvider supplies the base rates of an application-month.
type RateProvider interface {
	RatesFor(ctx context.Context, applicationID string, period billing.Period) (billing.Rates, error)
}

type defaultRateProvider struct{}

func (defaultRateProvider) RatesFor(context.Context, string, billing.Period) (billing.Rates, error) {
	return billing.DefaultRates(), nil
}

// Service aggregates meter readings and issues monthly bills.
type Service struct {
	store   billing.Store
	rates   RateProvider
	log     logrus.FieldLogger
	now     func() time.Time
	newID   func() string
	timeout time.Duration
	dueDay  int
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

// WithOperationTimeout bounds every single-application operation.
func WithOperationTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithRateProvider replaces the built-in rates.
func WithRateProvider(rates RateProvider) Option {
	return func(s *Service) {
		if rates != nil {
			s.rates = rates
		}
	}
}

// WithDueDay sets the day of the following month monthly bills fall due.
func WithDueDay(day int) Option {
	return func(s *Service) {
		if day > 0 {
			s.dueDay = day
		}
	}
}

// NewService constructs the billing service.
func NewService(store billing.Store, log logrus.FieldLogger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("billing service: nil store")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Service{
		store:   store,
		rates:   defaultRateProvider{},
		log:     log.WithField("component", "billing"),
		now:     time.Now,
		newID:   uuid.NewString,
		timeout: defaultOperationTimeout,
		dueDay:  defaultDueDay,
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

func (s *Service) resolveRates(ctx context.Context, applicationID string, period billing.Period, override billing.RateOverride) (billing.Rates, error) {
	base, err := s.rates.RatesFor(ctx, applicationID, period)
	if err != nil {
		return billing.Rates{}, err
	}
	rates := override.Apply(base)
	if err := rates.Validate(); err != nil {
		return billing.Rates{}, err
	}
	return rates, nil
}

// AggregateMonth computes the net-metering usage of one application for a UTC calendar month.
func (s *Service) AggregateMonth(ctx context.Context, p auth.Principal, applicationID string, period billing.Period, override billing.RateOverride) (*billing.Usage, error) {
	if strings.TrimSpace(applicationID) == "" {
		return nil, billing.ErrEmptyID
	}
	if _, err := billing.NewPeriod(period.Year, period.Month); err != nil {
		return nil, err
	}
	var usage billing.Usage
	err := s.run(ctx, "aggregate_month", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx billing.Tx) error {
			app, err := tx.GetApplication(ctx, applicationID)
			if err != nil {
				return err
			}
			if app == nil {
				return billing.ErrApplicationNotFound
			}
			if err := auth.Authorize(p, auth.ActionViewUsage, auth.Resource{CustomerID: app.CustomerID}); err != nil {
				return err
			}
			rates, err := s.resolveRates(ctx, applicationID, period, override)
			if err != nil {
				return err
			}
			totals, err := tx.SumReadings(ctx, applicationID, period)
			if err != nil {
				return err
			}
			usage = billing.ComputeUsage(applicationID, period, totals, rates)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

// ReadingInput is an ingested meter reading.
type ReadingInput struct {
	ApplicationID string
	ReadingDate   time.Time
	KWhGenerated  decimal.Decimal
	KWhExported   decimal.Decimal
	KWhImported   decimal.Decimal
}

// RecordReading stores one meter reading for an existing application.
func (s *Service) RecordReading(ctx context.Context, in ReadingInput) (*billing.MeterReading, error) {
	now := s.now().UTC()
	reading := &billing.MeterReading{
		ID:            s.newID(),
		ApplicationID: strings.TrimSpace(in.ApplicationID),
		ReadingDate:   in.ReadingDate.UTC(),
		KWhGenerated:  in.KWhGenerated,
		KWhExported:   in.KWhExported,
		KWhImported:   in.KWhImported,
		CreatedAt:     now,
	}
	if err := reading.Validate(); err != nil {
		return nil, err
	}
	err := s.run(ctx, "record_reading", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx billing.Tx) error {
			app, err := tx.GetApplication(ctx, reading.ApplicationID)
			if err != nil {
				return err
			}
			if app == nil {
				return billing.ErrApplicationNotFound
			}
			return tx.InsertReading(ctx, reading)
		})
	})
	if err != nil {
		return nil, err
	}
	return reading, nil
}

// GetInvoice returns an invoice visible to p.
func (s *Service) GetInvoice(ctx context.Context, p auth.Principal, invoiceID string) (*billing.Invoice, error) {
	if strings.TrimSpace(invoiceID) == "" {
		return nil, billing.ErrEmptyID
	}
	var inv *billing.Invoice
	err := s.run(ctx, "get_invoice", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx billing.Tx) error {
			found, err := tx.GetInvoice(ctx, invoiceID)
			if err != nil {
				return err
			}
			if found == nil {
				return billing.ErrInvoiceNotFound
			}
			res := auth.Resource{CustomerID: found.CustomerID, InstallerID: found.InstallerID}
			if err := auth.Authorize(p, auth.ActionViewInvoice, res); err != nil {
				return err
			}
			inv = found
			return nil
		})
	})
	return inv, err
}

// ListInvoices lists invoices. Customers and installers are restricted to their own.
func (s *Service) ListInvoices(ctx context.Context, p auth.Principal, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	if err := auth.Authorize(p, auth.ActionListInvoices, auth.Resource{}); err != nil {
		return nil, err
	}
	switch p.Role {
	case auth.RoleCustomer:
		filter.CustomerID = p.ID
	case auth.RoleInstaller:
		filter.InstallerID = p.ID
	}
	if filter.Limit <= 0 || filter.Limit > defaultListLimit {
		filter.Limit = defaultListLimit
	}
	var out []billing.Invoice
	err := s.run(ctx, "list_invoices", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx billing.Tx) error {
			var err error
			out, err = tx.ListInvoices(ctx, filter)
			return err
		})
	})
	return out, err
}

// MonthlyReport returns the monthly bills of period for reporting.
func (s *Service) MonthlyReport(ctx context.Context, p auth.Principal, period billing.Period) ([]billing.Invoice, error) {
	if err := auth.Authorize(p, auth.ActionViewReport, auth.Resource{}); err != nil {
		return nil, err
	}
	if _, err := billing.NewPeriod(period.Year, period.Month); err != nil {
		return nil, err
	}
	var out []billing.Invoice
	err := s.run(ctx, "monthly_report", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx billing.Tx) error {
			var err error
			out, err = tx.ListInvoices(ctx, billing.InvoiceFilter{Type: billing.InvoiceMonthlyBill, Period: &period})
			return err
		})
	})
	return out, err
}

// MarkOverdueInvoices moves pending invoices due before now to overdue.
func (s *Service) MarkOverdueInvoices(ctx context.Context, now time.Time) (int64, error) {
	if now.IsZero() {
		now = s.now()
	}
	var n int64
	err := s.run(ctx, "mark_overdue_invoices", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx billing.Tx) error {
			var err error
			n, err = tx.MarkOverdue(ctx, now.UTC())
			return err
		})
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.WithField("invoices", n).Info("invoices marked overdue")
	}
	return n, nil
}
