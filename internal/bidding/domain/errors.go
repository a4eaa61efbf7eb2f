package bidding

import "solar-portal/internal/platform/apperr"

var (
	// ErrApplicationNotFound is returned when the referenced application is absent.
	ErrApplicationNotFound = apperr.New(apperr.NotFound, "bidding: application not found")
	// ErrSessionNotFound is returned when no bid session exists.
	ErrSessionNotFound = apperr.New(apperr.NotFound, "bidding: bid session not found")
	// ErrBidNotFound is returned when a bid is absent.
	ErrBidNotFound = apperr.New(apperr.NotFound, "bidding: bid not found")

	// ErrSessionNotOpen is returned when an operation needs an open session.
	ErrSessionNotOpen = apperr.New(apperr.InvalidState, "bidding: session is not open")
	// ErrSessionDeadlinePassed is returned when bidding after expires_at.
	ErrSessionDeadlinePassed = apperr.New(apperr.InvalidState, "bidding: session deadline has passed")
	// ErrSessionClosed is returned when re-opening a session whose bid was accepted.
	ErrSessionClosed = apperr.New(apperr.InvalidState, "bidding: session is closed")
	// ErrBidNotPending is returned when selecting a bid that is no longer pending.
	ErrBidNotPending = apperr.New(apperr.InvalidState, "bidding: bid is not pending")
	// ErrBidFinal is returned when overriding an accepted or expired bid.
	ErrBidFinal = apperr.New(apperr.InvalidState, "bidding: bid status is final")
	ErrApplicationRejected = apperr.New(apperr.InvalidState, "bidding: application is rejected")
	ErrInvalidTransition   = apperr.New(apperr.InvalidState, "bidding: invalid application status transition")

	ErrInvalidDuration      = apperr.New(apperr.Validation, "bidding: duration must be positive and at most one year")
	ErrInvalidPrice         = apperr.New(apperr.Validation, "bidding: price must be positive")
	ErrInvalidEstimatedDays = apperr.New(apperr.Validation, "bidding: estimated days must be positive")
	ErrEmptyProposal        = apperr.New(apperr.Validation, "bidding: proposal is required")
	ErrEmptyWarranty        = apperr.New(apperr.Validation, "bidding: warranty is required")
	ErrEmptyOrganization    = apperr.New(apperr.Validation, "bidding: installer organization is required")
	ErrInvalidOverride      = apperr.New(apperr.Validation, "bidding: status override must be pending or rejected")
	ErrEmptyID              = apperr.New(apperr.Validation, "bidding: empty id")
)
