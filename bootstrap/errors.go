package bootstrap

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingProviderSet means the discovery source has no resource
	// providers under the version's key.
	ErrMissingProviderSet = errors.New("bootstrap: missing resource provider set")
	// ErrMissingSystemProvider means the discovery source has no system
	// provider under the version's key.
	ErrMissingSystemProvider = errors.New("bootstrap: missing system provider")
	// ErrDependencyFailure wraps any other collaborator failure.
	ErrDependencyFailure = errors.New("bootstrap: dependency failure")
	// ErrInvalidVersion is the cause when Config.Version is not a known version.
	ErrInvalidVersion = errors.New("bootstrap: invalid FHIR version")
)

// Step names the bootstrap stage an Error occurred in.
type Step string

const (
	StepVersion           Step = "version"
	StepResourceProviders Step = "resource-providers"
	StepSystemProvider    Step = "system-provider"
	StepCapabilities      Step = "capabilities"
	StepPolicy            Step = "policy"
	StepPaging            Step = "paging"
	StepInterceptors      Step = "interceptors"
)

// Error is returned by Initialize. errors.Is matches both Kind (one of the
// package sentinels or a fhirservice sentinel such as ErrDuplicateBinding)
// and anything Err wraps.
type Error struct {
	Step Step
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("bootstrap %s: %v", e.Step, e.Kind)
	}
	return fmt.Sprintf("bootstrap %s: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
