package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// MeterReading is one telemetry sample for an application.
type MeterReading struct {
	ID            string          `json:"id"`
	ApplicationID string          `json:"application_id"`
	ReadingDate   time.Time       `json:"reading_date"`
	KWhGenerated  decimal.Decimal `json:"kwh_generated"`
	KWhExported   decimal.Decimal `json:"kwh_exported"`
	KWhImported   decimal.Decimal `json:"kwh_imported"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Validate checks a reading before it is stored.
func (r MeterReading) Validate() error {
	if r.ID == "" || r.ApplicationID == "" {
		return ErrEmptyID
	}
	if r.ReadingDate.IsZero() {
		return ErrEmptyReadingDate
	}
	if r.KWhGenerated.IsNegative() || r.KWhExported.IsNegative() || r.KWhImported.IsNegative() {
		return ErrNegativeReading
	}
	return nil
}

// ReadingTotals are the summed quantities of one application-month.
type ReadingTotals struct {
	Count        int
	KWhGenerated decimal.Decimal
	KWhExported  decimal.Decimal
	KWhImported  decimal.Decimal
}

// Add accumulates r.
func (t ReadingTotals) Add(r MeterReading) ReadingTotals {
	t.Count++
	t.KWhGenerated = t.KWhGenerated.Add(r.KWhGenerated)
	t.KWhExported = t.KWhExported.Add(r.KWhExported)
	t.KWhImported = t.KWhImported.Add(r.KWhImported)
	return t
}
