package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrPaymentNotFound   = fmt.Errorf("payment %w", ErrNotFound)
	ErrCommunityNotFound = fmt.Errorf("community %w", ErrNotFound)
	ErrUserNotFound      = fmt.Errorf("user %w", ErrNotFound)
	ErrLoginNotFound     = fmt.Errorf("login %w", ErrNotFound)
	ErrWarningNotFound   = fmt.Errorf("warning %w", ErrNotFound)

	ErrAlreadyExists = errors.New("already exists")

	ErrAlreadyPaid       = errors.New("payment already paid")
	ErrPaymentExpired    = errors.New("payment is expired")
	ErrChargeStillActive = errors.New("charge is still active")
	ErrChargeNotFound    = errors.New("charge not found at provider")

	ErrGateway      = errors.New("charge gateway error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// GatewayError wraps a failure talking to the remote charge service.
type GatewayError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("charge gateway %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("charge gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func (e *GatewayError) Is(target error) bool { return target == ErrGateway }

// ValidationError rejects malformed input before it reaches the store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
