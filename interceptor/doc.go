// Package interceptor implements the ordered chain of cross-cutting hooks
// every request and response of the FHIR server passes through.
//
// An interceptor is any value implementing at least one of PreHandler,
// PostHandler or PreResponder. Hooks run in registration order within each
// phase:
//
//	PreHandle    before the provider is invoked
//	PostHandle   after the provider returned a response
//	PreRespond   immediately before the response is written, also for
//	             responses produced by an aborting hook or an error
//
// A hook that returns a non-nil *fhirservice.Response aborts its phase: later
// hooks in that phase are skipped and the returned response is used. A hook
// that returns an error stops the phase and the error is rendered as an
// OperationOutcome.
//
// The chain is assembled while a server is bootstrapped and frozen before it
// serves traffic. A frozen chain is read-only and safe for concurrent use.
package interceptor
