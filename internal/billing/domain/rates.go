package billing

import "github.com/shopspring/decimal"

// Default net-metering rates, currency units per kWh.
var (
	DefaultRatePerKWh       = decimal.NewFromInt(52)
	DefaultCreditRatePerKWh = decimal.NewFromInt(30)
)

// Rates prices net import and credits net export.
type Rates struct {
	RatePerKWh       decimal.Decimal `json:"rate_per_kwh"`
	CreditRatePerKWh decimal.Decimal `json:"credit_rate_per_kwh"`
}

// DefaultRates returns the built-in rates.
func DefaultRates() Rates {
	return Rates{RatePerKWh: DefaultRatePerKWh, CreditRatePerKWh: DefaultCreditRatePerKWh}
}

// Validate rejects negative rates.
func (r Rates) Validate() error {
	if r.RatePerKWh.IsNegative() || r.CreditRatePerKWh.IsNegative() {
		return ErrInvalidRate
	}
	return nil
}

// RateOverride carries optional per-invocation rates.
type RateOverride struct {
	RatePerKWh       *decimal.Decimal
	CreditRatePerKWh *decimal.Decimal
}

// Apply returns base with any set override fields replaced.
func (o RateOverride) Apply(base Rates) Rates {
	if o.RatePerKWh != nil {
		base.RatePerKWh = *o.RatePerKWh
	}
	if o.CreditRatePerKWh != nil {
		base.CreditRatePerKWh = *o.CreditRatePerKWh
	}
	return base
}
