package fhirservice

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jamesagnew/continua-demo-fhir-server/fhir"
)

var (
	// ErrDuplicateBinding is returned when a resource type is registered twice.
	ErrDuplicateBinding = errors.New("fhirservice: duplicate resource provider binding")
	// ErrRegistryFrozen is returned by Register once the registry is frozen.
	ErrRegistryFrozen = errors.New("fhirservice: registry is frozen")
	// ErrProviderNotFound is returned by Lookup for an unbound resource type.
	ErrProviderNotFound = errors.New("fhirservice: no provider bound for resource type")
	// ErrInvalidBinding is returned for nil providers or empty resource types.
	ErrInvalidBinding = errors.New("fhirservice: invalid resource provider binding")
	// ErrCapabilityInconsistency marks a provider set that cannot be
	// described truthfully by a capability statement.
	ErrCapabilityInconsistency = errors.New("fhirservice: capability inconsistency")

	// ErrResourceNotFound may be returned (optionally wrapped) by handlers
	// for unknown ids.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrResourceGone may be returned by handlers for deleted resources.
	ErrResourceGone = errors.New("resource deleted")
)

// CapabilityError describes why a capability statement could not be built.
type CapabilityError struct {
	Provider string
	Reason   string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability inconsistency in %s: %s", e.Provider, e.Reason)
}

func (e *CapabilityError) Unwrap() error { return ErrCapabilityInconsistency }

// Error is a handler error carrying the HTTP status and OperationOutcome
// issue code to render.
type Error struct {
	Status      int
	Code        string
	Diagnostics string
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Diagnostics, e.Err)
	}
	return e.Diagnostics
}

func (e *Error) Unwrap() error { return e.Err }

// Outcome renders the error as an OperationOutcome.
func (e *Error) Outcome() *fhir.OperationOutcome {
	return fhir.NewOperationOutcome(fhir.SeverityError, e.Code, e.Diagnostics)
}

// NewError builds an Error.
func NewError(status int, code, format string, args ...any) *Error {
	return &Error{Status: status, Code: code, Diagnostics: fmt.Sprintf(format, args...)}
}

// InvalidRequest is a 400 with issue code "invalid".
func InvalidRequest(format string, args ...any) *Error {
	return NewError(http.StatusBadRequest, fhir.IssueCodeInvalid, format, args...)
}

// AsError maps any handler error onto an *Error, defaulting to 500.
func AsError(err error) *Error {
	var fe *Error
	switch {
	case errors.As(err, &fe):
		return fe
	case errors.Is(err, ErrResourceNotFound):
		return &Error{Status: http.StatusNotFound, Code: fhir.IssueCodeNotFound, Diagnostics: err.Error(), Err: err}
	case errors.Is(err, ErrResourceGone):
		return &Error{Status: http.StatusGone, Code: fhir.IssueCodeDeleted, Diagnostics: err.Error(), Err: err}
	default:
		return &Error{Status: http.StatusInternalServerError, Code: fhir.IssueCodeException, Diagnostics: "internal server error", Err: err}
	}
}
