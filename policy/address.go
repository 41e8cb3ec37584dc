package policy

import (
	"net/http"
	"strings"
)

// AddressStrategy determines the server base address for a request.
type AddressStrategy interface {
	BaseAddress(r *http.Request) string
}

// HardcodedAddress always returns the same base address.
type HardcodedAddress string

func (a HardcodedAddress) BaseAddress(*http.Request) string { return string(a) }

// IncomingRequestAddress derives the base address from the request,
// honoring X-Forwarded-Proto and X-Forwarded-Host set by a reverse proxy.
type IncomingRequestAddress struct {
	// MountPath is the path prefix the FHIR handler is served under.
	MountPath string
}

func (a IncomingRequestAddress) BaseAddress(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := firstValue(r.Header.Get("X-Forwarded-Proto")); p != "" {
		scheme = p
	}
	host := r.Host
	if h := firstValue(r.Header.Get("X-Forwarded-Host")); h != "" {
		host = h
	}
	return scheme + "://" + host + "/" + strings.Trim(a.MountPath, "/")
}

func firstValue(h string) string {
	v, _, _ := strings.Cut(h, ",")
	return strings.TrimSpace(v)
}
