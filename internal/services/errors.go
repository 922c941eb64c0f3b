package services

import "errors"

// Errors returned by AuthService. Handlers map them to HTTP responses with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("account not found")
	ErrInvalidCredential = errors.New("invalid email or password")
	ErrInvalidToken      = errors.New("invalid token")
	ErrExpired           = errors.New("token expired")
	ErrForbidden         = errors.New("account is not permitted to sign in with this role")
	ErrEmailNotVerified  = errors.New("email address not verified")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrAlreadyVerified   = errors.New("email already verified")
	ErrTooManyAttempts   = errors.New("too many failed login attempts")
)
