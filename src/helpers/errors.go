package helpers

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type IngestError struct {
	Message string
	Cause   error
}

func (e *IngestError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *IngestError) Unwrap() error {
	return e.Cause
}

// LaunchError means the browser could not be started. Fatal for the current run.
type LaunchError struct{ IngestError }

// ExtractionError is one failed attempt of one strategy.
type ExtractionError struct {
	IngestError
	Op       string
	Strategy string
}

// ValidationError marks data that is well formed but not acceptable. Never retried.
type ValidationError struct{ IngestError }

// CacheError is a fast-cache failure. Callers degrade instead of failing.
type CacheError struct{ IngestError }

// StoreError is a durable store failure. Fails the job.
type StoreError struct{ IngestError }

// ConfigurationError is raised for invalid runtime wiring.
type ConfigurationError struct{ IngestError }

// ExtractionFailed is terminal: every attempt of every strategy failed.
type ExtractionFailed struct {
	Op       string
	Attempts int
	LastErr  error
}

func (e *ExtractionFailed) Error() string {
	return fmt.Sprintf("%s: extraction failed after %d attempts: %v", e.Op, e.Attempts, e.LastErr)
}

func (e *ExtractionFailed) Unwrap() error {
	return e.LastErr
}

// -----------------------------------------------------------------------------
// Constructors
// -----------------------------------------------------------------------------

func NewLaunchError(cause error) *LaunchError {
	return &LaunchError{IngestError{Message: "browser launch failed", Cause: cause}}
}

func NewExtractionError(op, strategy string, cause error) *ExtractionError {
	return &ExtractionError{
		IngestError: IngestError{Message: fmt.Sprintf("%s/%s", op, strategy), Cause: cause},
		Op:          op,
		Strategy:    strategy,
	}
}

func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{IngestError{Message: fmt.Sprintf(format, args...)}}
}

func NewCacheError(op string, cause error) *CacheError {
	return &CacheError{IngestError{Message: "cache " + op, Cause: cause}}
}

func NewStoreError(op string, cause error) *StoreError {
	return &StoreError{IngestError{Message: "store " + op, Cause: cause}}
}

func NewConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{IngestError{Message: fmt.Sprintf(format, args...)}}
}

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsLaunch(err error) bool {
	var l *LaunchError
	return errors.As(err, &l)
}

func IsStore(err error) bool {
	var s *StoreError
	return errors.As(err, &s)
}

// IsRetryable reports whether another attempt could succeed.
func IsRetryable(err error) bool {
	return err != nil && !IsValidation(err) && !IsLaunch(err)
}

// ErrNotFound is returned by lookups that match no row or entry.
var ErrNotFound = errors.New("not found")
