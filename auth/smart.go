package auth

import (
	"slices"
	"strings"
)

// Access is the kind of access an interaction needs under SMART on FHIR v1
// scopes.
type Access string

const (
	AccessRead  Access = "read"
	AccessWrite Access = "write"
)

// ScopeFor returns the canonical scope for access to resourceType in the
// given launch context ("user", "patient" or "system").
func ScopeFor(context, resourceType string, access Access) string {
	return context + "/" + resourceType + "." + string(access)
}

// HasSMARTScope reports whether granted allows access to resourceType. A
// granted scope matches when its resource is the type or "*" and its access
// is the requested one or "*". Any launch context is accepted.
func HasSMARTScope(granted []string, resourceType string, access Access) bool {
	return slices.ContainsFunc(granted, func(s string) bool {
		_, rest, ok := strings.Cut(s, "/")
		if !ok {
			return false
		}
		typ, acc, ok := strings.Cut(rest, ".")
		if !ok {
			return false
		}
		return (typ == "*" || typ == resourceType) && (acc == "*" || acc == string(access))
	})
}
