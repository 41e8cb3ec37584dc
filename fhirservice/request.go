package fhirservice

import (
	"net/http"
	"net/url"

	"github.com/jamesagnew/continua-demo-fhir-server/fhir"
)

// Interaction names for requests that are not FHIR interactions proper.
const (
	InteractionCapabilities = "capabilities"
	InteractionGetPage      = "get-page"
)

// UnknownResourceType labels requests whose path names no bound provider.
const UnknownResourceType = "unknown"

// Principal is the authenticated caller attached to a Request by an
// authentication interceptor.
type Principal interface {
	UserID() string
}

// Request carries the parsed view of one inbound request. It is created by
// the REST layer, passed through the interceptor chain and handed to the
// provider. Interceptors may annotate it (Principal, Attributes) in their
// pre-handle phase.
type Request struct {
	HTTP         *http.Request
	RequestID    string
	Interaction  string
	ResourceType string
	// TypeBound is set by the dispatcher when ResourceType names a bound
	// provider.
	TypeBound bool
	ID        string
	VersionID string
	Params    url.Values
	BaseURL   string

	Encoding fhir.Encoding
	Pretty   bool

	Principal  Principal
	Attributes map[string]any
}

// ResourceTypeLabel is ResourceType when it is bound, "" for requests
// without one and UnknownResourceType otherwise. It is safe to use as a
// metric label or span attribute.
func (r *Request) ResourceTypeLabel() string {
	switch {
	case r.ResourceType == "":
		return ""
	case r.TypeBound:
		return r.ResourceType
	default:
		return UnknownResourceType
	}
}

// Set stores an interceptor-defined attribute.
func (r *Request) Set(key string, v any) {
	if r.Attributes == nil {
		r.Attributes = make(map[string]any)
	}
	r.Attributes[key] = v
}

// Get returns an attribute previously stored with Set.
func (r *Request) Get(key string) (any, bool) {
	v, ok := r.Attributes[key]
	return v, ok
}

// Response is what the dispatcher writes back. Body is one of fhir.Resource,
// *fhir.Bundle, *fhir.OperationOutcome or *fhir.CapabilityStatement, or nil
// for an empty body.
type Response struct {
	Status int
	Header http.Header
	Body   any
}

// NewResponse returns a response with an initialised header map.
func NewResponse(status int, body any) *Response {
	return &Response{Status: status, Header: make(http.Header), Body: body}
}
