package handlers

import (
	"errors"

	"github.com/CeoatNorthstar/qhub-auth/internal/service"
	apperrors "github.com/CeoatNorthstar/qhub-auth/pkg/util/errorutil"
)

// mapServiceError translates service sentinels to HTTP-facing errors.
// Anything unrecognized is a store or infrastructure failure.
func mapServiceError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, service.ErrDuplicateEmail):
		return apperrors.NewConflict("email already registered", map[string]any{"field": "email"})
	case errors.Is(err, service.ErrDuplicateUsername):
		return apperrors.NewConflict("username already taken", map[string]any{"field": "username"})
	case errors.Is(err, service.ErrInvalidEmail):
		return apperrors.NewValidationError("invalid email address", map[string]any{"field": "email"})
	case errors.Is(err, service.ErrInvalidUsername):
		return apperrors.NewValidationError("username must be 3-32 letters, digits, '.', '_' or '-'", map[string]any{"field": "username"})
	case errors.Is(err, service.ErrWeakPassword):
		return apperrors.NewValidationError(err.Error(), map[string]any{"field": "password"})
	case errors.Is(err, service.ErrInvalidCredentials):
		return apperrors.NewUnauthorized(err)
	case errors.Is(err, service.ErrSessionNotFound):
		return apperrors.NewNotFound("session", nil)
	case errors.Is(err, service.ErrPrincipalNotFound):
		return apperrors.NewNotFound("principal", nil)
	case errors.Is(err, service.ErrUnknownResource):
		return apperrors.NewValidationError("unknown resource type", nil)
	case errors.Is(err, service.ErrNotReleasable):
		return apperrors.NewValidationError("resource is not releasable", nil)
	default:
		return apperrors.NewDependencyError(err)
	}
}
