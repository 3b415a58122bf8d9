package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/iliyamo/dispatch-backoffice/internal/repository"
)

var (
	// ErrNotFound covers missing rows and rows owned by another tenant.
	ErrNotFound = repository.ErrNotFound
	// ErrDuplicateIdentity is returned when a username or email is taken.
	ErrDuplicateIdentity = repository.ErrDuplicateIdentity
	// ErrConflict is returned for writes that clash with existing state.
	ErrConflict = repository.ErrConflict

	// ErrPermissionDenied is returned when the caller's role may not run the
	// operation.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrQuotaExceeded is wrapped by QuotaError.
	ErrQuotaExceeded = errors.New("plan quota exceeded")
	// ErrInvalidTransition is returned for a load status change the state
	// machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNoTenant is returned when a tenant-scoped operation is called by an
	// identity without a company.
	ErrNoTenant = errors.New("no company registered")
)

// ValidationError reports bad input per field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a problem with field.  The first message per field wins.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// Err returns e when a field was recorded, nil otherwise.
func (e *ValidationError) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func invalid(field, msg string) error {
	v := &ValidationError{}
	v.Add(field, msg)
	return v
}

// QuotaError is returned when the plan limit refuses a mutation.
type QuotaError struct {
	Plan    string
	Limit   int
	Current int
	Reason  string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s: %s", ErrQuotaExceeded, e.Reason)
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }
