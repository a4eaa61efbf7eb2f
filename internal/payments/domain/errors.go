package payments

import "solar-portal/internal/platform/apperr"

var (
	// ErrPaymentNotFound is returned when no transaction matches the provider intent.
	ErrPaymentNotFound = apperr.New(apperr.NotFound, "payments: payment not found")
	// ErrInvoiceNotFound is returned when a linked invoice is absent.
	ErrInvoiceNotFound = apperr.New(apperr.NotFound, "payments: invoice not found")
	// ErrApplicationNotFound is returned when an intent references an unknown application.
	ErrApplicationNotFound = apperr.New(apperr.NotFound, "payments: application not found")
	// ErrDuplicateIntent is returned when an intent id is registered twice.
	ErrDuplicateIntent = apperr.New(apperr.Conflict, "payments: provider intent already registered")
	// ErrAlreadyLinked is returned when the invoice link was set concurrently.
	ErrAlreadyLinked = apperr.New(apperr.Conflict, "payments: payment already linked")
	// ErrInvoiceNotPayable is returned when registering against a settled invoice.
	ErrInvoiceNotPayable = apperr.New(apperr.InvalidState, "payments: invoice is not payable")

	ErrEmptyIntentID = apperr.New(apperr.Validation, "payments: provider intent id is required")
	ErrInvalidAmount = apperr.New(apperr.Validation, "payments: amount must be positive")
	ErrEmptyCustomer = apperr.New(apperr.Validation, "payments: customer is required")
)
