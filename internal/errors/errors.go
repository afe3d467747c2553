// Package errors provides domain-specific error types and sentinel errors
// for improved error handling across the application.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common scenarios.
// Use errors.Is() to check these errors in your code.
var (
	// ErrInvalidCoordinate indicates a latitude/longitude pair outside the valid ranges.
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrLookupUnavailable indicates an external lookup (geocoder, weather, forecast) failed.
	// It never crosses an adapter boundary; adapters turn it into a placeholder value.
	ErrLookupUnavailable = errors.New("lookup unavailable")

	// ErrNotFound indicates a requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrRateLimitExceeded indicates rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")
)

// ValidationError represents input validation failures.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidCoordinate for coordinate fields.
func (e *ValidationError) Unwrap() error {
	switch e.Field {
	case "latitude", "longitude":
		return ErrInvalidCoordinate
	}
	return nil
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// ProviderError represents a failed call to an external data provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider error (provider=%s, status=%d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider error (provider=%s): %v", e.Provider, e.Err)
}

// Unwrap returns both the cause and ErrLookupUnavailable.
func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrLookupUnavailable}
	}
	return []error{e.Err, ErrLookupUnavailable}
}

// NewProviderError creates a new provider error.
func NewProviderError(provider string, statusCode int, err error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		StatusCode: statusCode,
		Err:        err,
	}
}

// IsInvalidCoordinate reports whether err is or wraps ErrInvalidCoordinate.
func IsInvalidCoordinate(err error) bool {
	return errors.Is(err, ErrInvalidCoordinate)
}

// IsLookupUnavailable reports whether err is or wraps ErrLookupUnavailable.
func IsLookupUnavailable(err error) bool {
	return errors.Is(err, ErrLookupUnavailable)
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRateLimitExceeded reports whether err is or wraps ErrRateLimitExceeded.
func IsRateLimitExceeded(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded)
}

// IsTimeout reports whether err is or wraps ErrTimeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
