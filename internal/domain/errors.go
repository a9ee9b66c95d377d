/**
 * @description
 * This file defines the typed error taxonomy shared across the csr-service.
 * Domain errors are returned as values to the API layer, which translates them
 * into HTTP status codes. They are never surfaced to callers as opaque 500s.
 *
 * @notes
 * - All error types implement `error` and support errors.As for unwrapping at
 *   the API boundary.
 * - ConflictError is retryable by the caller a bounded number of times; the
 *   ledger service performs its own bounded retries before surfacing it.
 */

package domain

import "fmt"

// ValidationError indicates malformed or missing required input. It is never
// retried automatically.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %q: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError indicates a referenced entity does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ConflictError indicates a concurrent-write race was detected (ledger append
// balance read or alert dedup key). Callers may retry the whole operation.
type ConflictError struct {
	Resource string
	Reason   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %s", e.Resource, e.Reason)
}

// InvalidStateTransitionError indicates a lifecycle action was attempted from
// a terminal or incompatible state.
type InvalidStateTransitionError struct {
	Entity string
	From   string
	Action string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s %s in state %q", e.Action, e.Entity, e.From)
}

// ComputationError indicates a read-model sub-query failed during snapshot
// assembly. The whole snapshot request fails and nothing is cached.
type ComputationError struct {
	ReadModel string
	Err       error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("computing %s read model: %v", e.ReadModel, e.Err)
}

func (e *ComputationError) Unwrap() error { return e.Err }
