package billing

import "solar-portal/internal/platform/apperr"

var (
	// ErrApplicationNotFound is returned when the referenced application is absent.
	ErrApplicationNotFound = apperr.New(apperr.NotFound, "billing: application not found")
	// ErrInvoiceNotFound is returned when an invoice is absent.
	ErrInvoiceNotFound = apperr.New(apperr.NotFound, "billing: invoice not found")
	// ErrInvalidPeriod is returned for a month outside 1..12 or an implausible year.
	ErrInvalidPeriod = apperr.New(apperr.Validation, "billing: invalid billing period")
	// ErrInvalidRate is returned for negative rates.
	ErrInvalidRate = apperr.New(apperr.Validation, "billing: rates must not be negative")
	// ErrNegativeReading is returned when a reading carries a negative quantity.
	ErrNegativeReading = apperr.New(apperr.Validation, "billing: reading values must not be negative")
	ErrEmptyReadingDate = apperr.New(apperr.Validation, "billing: reading date is required")
	ErrEmptyID          = apperr.New(apperr.Validation, "billing: empty id")
	// ErrInvoiceNotPayable is returned when settling an invoice that cannot be paid.
	ErrInvoiceNotPayable = apperr.New(apperr.InvalidState, "billing: invoice is not payable")
)
