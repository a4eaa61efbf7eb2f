package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	biddingapp "solar-portal/internal/bidding/application"
	billingapp "solar-portal/internal/billing/application"
	billing "solar-portal/internal/billing/domain"
)

// Job names.
const (
	JobSweep          = "bid_session_sweep"
	JobMonthlyBilling = "monthly_billing"
	JobOverdue        = "invoice_overdue"
	JobLimiterPrune   = "rate_limiter_prune"
)

// Sweeper expires overdue bid sessions.
type Sweeper interface {
	SweepExpiredSessions(ctx context.Context, now time.Time) (biddingapp.SweepReport, error)
}

// Biller generates monthly bills and marks overdue invoices.
type Biller interface {
	GenerateMonthlyBills(ctx context.Context, period billing.Period, override billing.RateOverride) (billingapp.GenerateReport, error)
	MarkOverdueInvoices(ctx context.Context, now time.Time) (int64, error)
}

// Pruner drops idle rate limiter state.
type Pruner interface {
	Prune(now time.Time) int
}

// SweepJob expires sessions whose deadline passed.
func SweepJob(spec string, sweeper Sweeper) Job {
	return Job{Name: JobSweep, Spec: spec, Run: func(ctx context.Context, now time.Time) error {
		_, err := sweeper.SweepExpiredSessions(ctx, now)
		return err
	}}
}

// MonthlyBillingJob bills the month preceding now with the default rates.
func MonthlyBillingJob(spec string, biller Biller, log logrus.FieldLogger) Job {
	return Job{Name: JobMonthlyBilling, Spec: spec, Run: func(ctx context.Context, now time.Time) error {
		period := billing.PeriodOf(now).Previous()
		report, err := biller.GenerateMonthlyBills(ctx, period, billing.RateOverride{})
		if err != nil {
			return err
		}
		if log != nil && len(report.Failed) > 0 {
			log.WithFields(logrus.Fields{
				"period": period.String(),
				"failed": len(report.Failed),
			}).Warn("monthly billing finished with failures")
		}
		return nil
	}}
}

// OverdueJob marks pending invoices past their due date.
func OverdueJob(spec string, biller Biller) Job {
	return Job{Name: JobOverdue, Spec: spec, Run: func(ctx context.Context, now time.Time) error {
		_, err := biller.MarkOverdueInvoices(ctx, now)
		return err
	}}
}

// LimiterPruneJob releases rate limiter entries.
func LimiterPruneJob(spec string, pruner Pruner) Job {
	return Job{Name: JobLimiterPrune, Spec: spec, Run: func(_ context.Context, now time.Time) error {
		pruner.Prune(now)
		return nil
	}}
}
