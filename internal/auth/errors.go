package auth

import (
	"errors"

	"solar-portal/internal/platform/apperr"
)

var (
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrForbidden is returned by Authorize on deny.
	ErrForbidden = apperr.New(apperr.Forbidden, "forbidden")
)
