package core

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when a request is malformed and never reaches the pipeline
	ErrValidation = errors.New("validation failed")
	// ErrExternalService covers timeouts, unexpected statuses and malformed payloads from a collaborator
	ErrExternalService = errors.New("external service failure")
	// ErrRateLimited is returned when a service keeps answering 429 after credential failover
	ErrRateLimited = errors.New("rate limited")
	// ErrNotFound is returned when a referenced mailbox item does not exist
	ErrNotFound = errors.New("not found")
	// ErrNoCredentials is returned when the credential pool has nothing to hand out
	ErrNoCredentials = errors.New("no credentials available")
	// ErrUnauthenticated is returned when the mailbox cannot be reached with the configured identity
	ErrUnauthenticated = errors.New("mailbox authentication failed")
)

// ValidationError describes which part of a request was rejected
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is lets callers match any ValidationError with errors.Is(err, ErrValidation)
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
