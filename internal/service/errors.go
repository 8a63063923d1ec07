package service

import (
	"errors"

	"github.com/CeoatNorthstar/qhub-auth/internal/auth"
)

var (
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrDuplicateUsername  = errors.New("username already taken")
	ErrWeakPassword       = errors.New("password does not meet policy")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidTier        = errors.New("unknown tier")
	ErrSessionNotFound    = errors.New("session not found")
	ErrUnknownResource    = errors.New("unknown resource type")
	ErrNotReleasable      = errors.New("resource is not releasable")

	// Shared with the auth gate so it can tell rejections from store failures.
	ErrSessionNotLive    = auth.ErrSessionNotLive
	ErrPrincipalNotFound = auth.ErrUnknownPrincipal
)
