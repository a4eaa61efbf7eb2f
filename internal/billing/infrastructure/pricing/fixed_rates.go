package pricing

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	billing "solar-portal/internal/billing/domain"
)

// FixedRateProvider returns the same net-metering rates for every application and period.
type FixedRateProvider struct {
	rates billing.Rates
}

// NewFixedRateProvider constructs the provider. Zero rates fall back to the built-in defaults.
func NewFixedRateProvider(ratePerKWh, creditRatePerKWh decimal.Decimal) (*FixedRateProvider, error) {
	rates := billing.DefaultRates()
	if !ratePerKWh.IsZero() {
		rates.RatePerKWh = ratePerKWh
	}
	if !creditRatePerKWh.IsZero() {
		rates.CreditRatePerKWh = creditRatePerKWh
	}
	if err := rates.Validate(); err != nil {
		return nil, errors.New("rate provider: negative rate")
	}
	return &FixedRateProvider{rates: rates}, nil
}

// RatesFor returns the configured rates.
func (p *FixedRateProvider) RatesFor(ctx context.Context, applicationID string, period billing.Period) (billing.Rates, error) {
	_ = ctx
	_ = applicationID
	_ = period
	// TODO: read per-tariff rates once applications carry a tariff plan.
	return p.rates, nil
}
