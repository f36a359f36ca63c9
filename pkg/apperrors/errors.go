package apperrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrTooManyOperations = errors.New("too many operations")
	ErrDomainMismatch    = errors.New("entity card domain mismatch")
	ErrCardUnavailable   = errors.New("entity card unavailable")
	ErrInvalidCard       = errors.New("invalid entity card")
	ErrInvalidTransition = errors.New("invalid sync job status transition")
)

// ValidationError is a request-level validation failure. Details maps a field
// path (e.g. "entities[3].name") to the list of problems found for it.
type ValidationError struct {
	Message string
	Details map[string][]string
	// Cause optionally classifies the failure, e.g. ErrTooManyOperations.
	Cause error
}

// NewValidationError creates an empty ValidationError with the given message.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message, Details: make(map[string][]string)}
}

// Add records a problem for a field.
func (e *ValidationError) Add(field, problem string) {
	if e.Details == nil {
		e.Details = make(map[string][]string)
	}
	e.Details[field] = append(e.Details[field], problem)
}

// HasErrors reports whether any field problems were recorded.
func (e *ValidationError) HasErrors() bool {
	return len(e.Details) > 0
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	fields := make([]string, 0, len(e.Details))
	for f := range e.Details {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(fields, ", "))
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// DomainMismatchError reports an Entity Card whose declared domain differs from
// the domain it was fetched from.
type DomainMismatchError struct {
	Declared string
	HostedOn string
}

func (e *DomainMismatchError) Error() string {
	return fmt.Sprintf("Domain mismatch: card declares %q but hosted on %q", e.Declared, e.HostedOn)
}

func (e *DomainMismatchError) Unwrap() error { return ErrDomainMismatch }

// CardUnavailableError reports that no usable Entity Card could be retrieved
// from URL. Cause is the underlying transport or status error.
type CardUnavailableError struct {
	URL   string
	Cause error
}

func (e *CardUnavailableError) Error() string {
	return fmt.Sprintf("No entity card found at %s", e.URL)
}

func (e *CardUnavailableError) Unwrap() []error { return []error{ErrCardUnavailable, e.Cause} }

// InvalidCardError reports an Entity Card that was retrieved but does not match
// the schema.
type InvalidCardError struct {
	Reason string
}

func (e *InvalidCardError) Error() string {
	return "Invalid Entity Card format: " + e.Reason
}

func (e *InvalidCardError) Unwrap() error { return ErrInvalidCard }
