package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports input rejected at registration time.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NewValidationError creates a validation error for a field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError reports a lookup for an entity that does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// StateViolationError reports an operation attempted from an incompatible
// lifecycle state, by the wrong party, or with a wrong verification code.
type StateViolationError struct {
	Entity string
	ID     string
	Reason string
}

func (e *StateViolationError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Reason)
}

// NewStateViolation creates a state violation error.
func NewStateViolation(entity, id, reason string) *StateViolationError {
	return &StateViolationError{Entity: entity, ID: id, Reason: reason}
}

// InvariantViolationError reports internal inconsistency detected before
// mutation. These indicate bugs or corrupted state, not caller mistakes.
type InvariantViolationError struct {
	Reason string
}

func (e *InvariantViolationError) Error() string {
	return "invariant violation: " + e.Reason
}

// NewInvariantViolation creates an invariant violation error.
func NewInvariantViolation(reason string) *InvariantViolationError {
	return &InvariantViolationError{Reason: reason}
}

// SettlementError reports a failed settlement handoff for a completed match.
type SettlementError struct {
	MatchID string
	Err     error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settlement for match %s: %v", e.MatchID, e.Err)
}

func (e *SettlementError) Unwrap() error {
	return e.Err
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// IsStateViolation checks if an error is a state violation error.
func IsStateViolation(err error) bool {
	var sve *StateViolationError
	return errors.As(err, &sve)
}

// IsInvariantViolation checks if an error is an invariant violation error.
func IsInvariantViolation(err error) bool {
	var ive *InvariantViolationError
	return errors.As(err, &ive)
}
