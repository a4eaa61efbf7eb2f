package application

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	billing "solar-portal/internal/billing/domain"
	"solar-portal/internal/observability/metrics"
	"solar-portal/internal/platform/apperr"
)

// BillFailure records an application whose bill could not be issued.
type BillFailure struct {
	ApplicationID string `json:"application_id"`
	Code          string `json:"code"`
	Message       string `json:"message"`
}

// GenerateReport summarizes one monthly billing run.
type GenerateReport struct {
	Period  billing.Period    `json:"period"`
	Created []billing.Invoice `json:"created"`
	Skipped []string          `json:"skipped"`
	Failed  []BillFailure     `json:"failed"`
}

// GenerateMonthlyBills issues one monthly bill per application with readings in period.
// Each application is billed in its own unit of work. Applications already billed are skipped
// and failures are collected without stopping the run.
func (s *Service) GenerateMonthlyBills(ctx context.Context, period billing.Period, override billing.RateOverride) (GenerateReport, error) {
	if _, err := billing.NewPeriod(period.Year, period.Month); err != nil {
		return GenerateReport{}, err
	}
	if err := override.Apply(billing.DefaultRates()).Validate(); err != nil {
		return GenerateReport{}, err
	}
	report := GenerateReport{
		Period:  period,
		Created: []billing.Invoice{},
		Skipped: []string{},
		Failed:  []BillFailure{},
	}
	start := time.Now()

	var candidates []billing.Candidate
	err := s.run(ctx, "billing_candidates", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx billing.Tx) error {
			var err error
			candidates, err = tx.BillingCandidates(ctx, period)
			return err
		})
	})
	if err != nil {
		return GenerateReport{}, err
	}

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			report.Failed = append(report.Failed, failure(candidate.ApplicationID, err))
			continue
		}
		if candidate.HasBill {
			report.Skipped = append(report.Skipped, candidate.ApplicationID)
			continue
		}
		inv, created, err := s.billApplication(ctx, candidate, period, override)
		switch {
		case err != nil:
			s.log.WithError(err).WithField("application_id", candidate.ApplicationID).Warn("monthly bill failed")
			report.Failed = append(report.Failed, failure(candidate.ApplicationID, err))
		case created:
			report.Created = append(report.Created, *inv)
		default:
			report.Skipped = append(report.Skipped, candidate.ApplicationID)
		}
	}

	metrics.AddMonthlyBills(len(report.Created), len(report.Skipped), len(report.Failed))
	s.log.WithFields(logrus.Fields{
		"period":      period.String(),
		"created":     len(report.Created),
		"skipped":     len(report.Skipped),
		"failed":      len(report.Failed),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("monthly billing finished")
	return report, nil
}

func (s *Service) billApplication(ctx context.Context, candidate billing.Candidate, period billing.Period, override billing.RateOverride) (*billing.Invoice, bool, error) {
	var (
		inv     *billing.Invoice
		created bool
	)
	err := s.run(ctx, "generate_monthly_bill", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx billing.Tx) error {
			rates, err := s.resolveRates(ctx, candidate.ApplicationID, period, override)
			if err != nil {
				return err
			}
			totals, err := tx.SumReadings(ctx, candidate.ApplicationID, period)
			if err != nil {
				return err
			}
			usage := billing.ComputeUsage(candidate.ApplicationID, period, totals, rates)
			inv = billing.NewMonthlyBill(s.newID(), candidate.CustomerID, usage, s.dueDay, s.now())
			created, err = tx.InsertMonthlyBill(ctx, inv)
			return err
		})
	})
	if err != nil {
		return nil, false, err
	}
	return inv, created, nil
}

func failure(applicationID string, err error) BillFailure {
	code := apperr.CodeOf(err)
	return BillFailure{ApplicationID: applicationID, Code: string(code), Message: apperr.MessageOf(err)}
}
