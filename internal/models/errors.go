package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrNotAuthenticated blocks actions that need a signed-in owner.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNotFound reports an unknown entity or share token.
	ErrNotFound = errors.New("not found")
	// ErrLookupTimeout reports a public lookup that ran out of time.
	// It is always returned together with ErrNotFound.
	ErrLookupTimeout = errors.New("lookup timed out")
	// ErrForbidden reports an ownership or template-immutability violation.
	ErrForbidden = errors.New("forbidden")
)

// ValidationError reports bad local input. It is raised before any mutation.
type ValidationError struct {
	// Field names the offending input.
	Field string
	// Reason explains the failure.
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// QuotaExceededError is raised when creating a plan would exceed the tier limit.
type QuotaExceededError struct {
	// Tier is the caller's tier.
	Tier Tier `json:"tier"`
	// Limit is the number of plans the tier allows.
	Limit int `json:"limit"`
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s plan is limited to %d plans", e.Tier, e.Limit)
}

// NetworkError wraps a transport failure of a remote call.
type NetworkError struct {
	// Op names the remote operation.
	Op string
	// Err is the underlying failure.
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RemoteError reports a call the remote store received but rejected.
type RemoteError struct {
	// Op names the remote operation.
	Op string
	// Status is the HTTP status code returned by the remote.
	Status int
	// Message is the remote's explanation, if any.
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: remote error (status %d)", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: remote error (status %d): %s", e.Op, e.Status, e.Message)
}

// ErrorBody is the JSON error payload returned by the remote store API.
type ErrorBody struct {
	// Message is the human-readable error.
	Message string `json:"error"`
	// Field names the invalid input of a validation failure.
	Field string `json:"field,omitempty"`
	// Tier and Limit are set when a create was refused by the quota.
	Tier  Tier `json:"tier,omitempty"`
	Limit int  `json:"limit,omitempty"`
}
