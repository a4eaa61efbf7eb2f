package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestComputeUsageNetExporter(t *testing.T) {
	period, _ := NewPeriod(2024, 3)
	totals := ReadingTotals{}.Add(MeterReading{KWhGenerated: dec("1250"), KWhExported: dec("320"), KWhImported: dec("120")})

	u := ComputeUsage("app-1", period, totals, DefaultRates())
	if !u.NetKWh.Equal(dec("-200")) {
		t.Fatalf("net = %s", u.NetKWh)
	}
	if !u.AmountDue.IsZero() {
		t.Fatalf("amount due = %s", u.AmountDue)
	}
	if u.Credit.StringFixed(2) != "6000.00" {
		t.Fatalf("credit = %s", u.Credit.StringFixed(2))
	}
}

func TestComputeUsageNetImporter(t *testing.T) {
	period, _ := NewPeriod(2024, 3)
	totals := ReadingTotals{}.
		Add(MeterReading{KWhImported: dec("300"), KWhExported: dec("40")}).
		Add(MeterReading{KWhImported: dec("200"), KWhExported: dec("60")})

	u := ComputeUsage("app-1", period, totals, Rates{RatePerKWh: dec("52"), CreditRatePerKWh: dec("30")})
	if !u.NetKWh.Equal(dec("400")) || u.Readings != 2 {
		t.Fatalf("unexpected usage %+v", u)
	}
	if u.AmountDue.StringFixed(2) != "20800.00" || !u.Credit.IsZero() {
		t.Fatalf("due = %s credit = %s", u.AmountDue, u.Credit)
	}
}

func TestComputeUsageRoundsHalfAwayFromZero(t *testing.T) {
	period, _ := NewPeriod(2024, 3)
	totals := ReadingTotals{}.Add(MeterReading{KWhImported: dec("0.125")})
	u := ComputeUsage("app-1", period, totals, Rates{RatePerKWh: dec("1"), CreditRatePerKWh: dec("1")})
	if u.AmountDue.StringFixed(2) != "0.13" {
		t.Fatalf("due = %s", u.AmountDue)
	}
	totals = ReadingTotals{}.Add(MeterReading{KWhExported: dec("0.125")})
	u = ComputeUsage("app-1", period, totals, Rates{RatePerKWh: dec("1"), CreditRatePerKWh: dec("1")})
	if u.Credit.StringFixed(2) != "0.13" {
		t.Fatalf("credit = %s", u.Credit)
	}
}

func TestPeriod(t *testing.T) {
	if _, err := NewPeriod(2024, 13); err != ErrInvalidPeriod {
		t.Fatalf("expected invalid period")
	}
	p, _ := NewPeriod(2024, 12)
	if !p.End().Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("end = %s", p.End())
	}
	if !p.DueDate(15).Equal(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("due = %s", p.DueDate(15))
	}
	if p.Previous().String() != "2024-11" {
		t.Fatalf("previous = %s", p.Previous())
	}
	parsed, err := ParsePeriod("2024-02")
	if err != nil || parsed != (Period{Year: 2024, Month: 2}) {
		t.Fatalf("parse: %v %+v", err, parsed)
	}
}

func TestRateOverride(t *testing.T) {
	rate := dec("60")
	rates := RateOverride{RatePerKWh: &rate}.Apply(DefaultRates())
	if !rates.RatePerKWh.Equal(rate) || !rates.CreditRatePerKWh.Equal(DefaultCreditRatePerKWh) {
		t.Fatalf("unexpected rates %+v", rates)
	}
	if (Rates{RatePerKWh: dec("-1")}).Validate() != ErrInvalidRate {
		t.Fatalf("negative rate accepted")
	}
}
