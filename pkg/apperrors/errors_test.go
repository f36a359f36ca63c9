package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Details(t *testing.T) {
	verr := NewValidationError("Invalid request")
	assert.False(t, verr.HasErrors())

	verr.Add("entities[1].name", "Required")
	verr.Add("entities[0].entity_id", "Required")
	verr.Add("entities[1].name", "Too long")

	assert.True(t, verr.HasErrors())
	assert.Equal(t, []string{"Required", "Too long"}, verr.Details["entities[1].name"])
	assert.Equal(t, "Invalid request: entities[0].entity_id, entities[1].name", verr.Error())
}

func TestDomainMismatchError_Is(t *testing.T) {
	err := fmt.Errorf("submit: %w", &DomainMismatchError{Declared: "b.com", HostedOn: "a.com"})

	assert.True(t, errors.Is(err, ErrDomainMismatch))
	assert.False(t, errors.Is(err, ErrCardUnavailable))
	assert.Equal(t, `submit: Domain mismatch: card declares "b.com" but hosted on "a.com"`, err.Error())
}

func TestCardUnavailableError_UnwrapsBoth(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")
	err := &CardUnavailableError{URL: "https://a.com/.well-known/entity-card.json", Cause: cause}

	assert.True(t, errors.Is(err, ErrCardUnavailable))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "No entity card found at https://a.com/.well-known/entity-card.json", err.Error())
}

func TestInvalidCardError_Is(t *testing.T) {
	err := &InvalidCardError{Reason: "schema_version must be 0.2.0"}
	assert.True(t, errors.Is(err, ErrInvalidCard))
}

func TestValidationError_Cause(t *testing.T) {
	verr := NewValidationError("Too many operations")
	verr.Cause = ErrTooManyOperations

	var target *ValidationError
	err := fmt.Errorf("register: %w", verr)
	assert.True(t, errors.As(err, &target))
	assert.True(t, errors.Is(err, ErrTooManyOperations))
}
