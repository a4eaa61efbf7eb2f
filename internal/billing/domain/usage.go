package billing

import "github.com/shopspring/decimal"

// Usage is the net-metering result of one application-month.
type Usage struct {
	ApplicationID string          `json:"application_id"`
	Period        Period          `json:"period"`
	Readings      int             `json:"readings"`
	KWhGenerated  decimal.Decimal `json:"kwh_generated"`
	KWhExported   decimal.Decimal `json:"kwh_exported"`
	KWhImported   decimal.Decimal `json:"kwh_imported"`
	NetKWh        decimal.Decimal `json:"net_kwh"`
	AmountDue     decimal.Decimal `json:"amount_due"`
	Credit        decimal.Decimal `json:"credit"`
	Rates         Rates           `json:"rates"`
}

// RoundMoney rounds to cents, half away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ComputeUsage applies net metering to totals.
// Net import is billed at RatePerKWh; net export is credited at CreditRatePerKWh.
// Money is rounded exactly once, here.
func ComputeUsage(applicationID string, period Period, totals ReadingTotals, rates Rates) Usage {
	net := totals.KWhImported.Sub(totals.KWhExported)
	u := Usage{
		ApplicationID: applicationID,
		Period:        period,
		Readings:      totals.Count,
		KWhGenerated:  totals.KWhGenerated,
		KWhExported:   totals.KWhExported,
		KWhImported:   totals.KWhImported,
		NetKWh:        net,
		AmountDue:     decimal.Zero,
		Credit:        decimal.Zero,
		Rates:         rates,
	}
	if net.IsPositive() {
		u.AmountDue = RoundMoney(net.Mul(rates.RatePerKWh))
	} else {
		u.Credit = RoundMoney(net.Abs().Mul(rates.CreditRatePerKWh))
	}
	return u
}
