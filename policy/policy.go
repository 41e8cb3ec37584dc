// Package policy holds the per-server request policy: how responses are
// encoded and which base address absolute URLs are built from. A Policy is
// fixed when the server is bootstrapped and consulted on every request.
package policy

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/elnormous/contenttype"
	"github.com/jamesagnew/continua-demo-fhir-server/fhir"
)

var (
	// ErrUnsupportedFormat is returned by Negotiate for an unknown _format.
	ErrUnsupportedFormat = errors.New("policy: unsupported _format")
	// ErrInvalidBaseAddress is returned by New for a malformed canonical address.
	ErrInvalidBaseAddress = errors.New("policy: invalid canonical base address")
	// ErrInvalidMountPath is returned by New for a mount path that is not an
	// absolute URL path.
	ErrInvalidMountPath = errors.New("policy: invalid mount path")
)

// DefaultCanonicalBaseAddress is the address the demo server publishes.
const DefaultCanonicalBaseAddress = "http://continua.cloudapp.net/baseDstu2"

// DefaultMountPath is where the demo server serves its endpoint.
const DefaultMountPath = "/baseDstu2"

// Config is the request policy of a server instance.
type Config struct {
	// BrowserFriendlyContentTypes serves text/plain or text/xml to browsers
	// that did not ask for a specific _format, so responses render inline.
	BrowserFriendlyContentTypes bool
	DefaultPrettyPrint          bool
	DefaultEncoding             fhir.Encoding
	// CanonicalBaseAddress, when set, is used for every absolute URL the
	// server emits regardless of how the request reached it.
	CanonicalBaseAddress string
	// MountPath is the URL path the FHIR endpoint is served under, e.g.
	// "/baseDstu2". It is part of the derived base address when no
	// canonical address is set.
	MountPath string
}

// DefaultConfig returns the demo server's policy.
func DefaultConfig() Config {
	return Config{
		BrowserFriendlyContentTypes: true,
		DefaultPrettyPrint:          true,
		DefaultEncoding:             fhir.EncodingJSON,
		CanonicalBaseAddress:        DefaultCanonicalBaseAddress,
		MountPath:                   DefaultMountPath,
	}
}

// Policy is an immutable, validated Config bound to a FHIR version.
type Policy struct {
	cfg     Config
	version fhir.Version
	address AddressStrategy
}

// New validates cfg and returns the Policy for version.
func New(cfg Config, version fhir.Version) (*Policy, error) {
	if !version.Valid() {
		return nil, fmt.Errorf("policy: invalid FHIR version %v", version)
	}
	if cfg.DefaultEncoding == "" {
		cfg.DefaultEncoding = fhir.EncodingJSON
	}
	if !cfg.DefaultEncoding.Valid() {
		return nil, fmt.Errorf("%w: default encoding %q", ErrUnsupportedFormat, cfg.DefaultEncoding)
	}

	cfg.MountPath = strings.TrimRight(cfg.MountPath, "/")
	if cfg.MountPath != "" && (!strings.HasPrefix(cfg.MountPath, "/") || strings.ContainsAny(cfg.MountPath, "{}? ")) {
		return nil, fmt.Errorf("%w: mount path %q", ErrInvalidMountPath, cfg.MountPath)
	}

	var address AddressStrategy = IncomingRequestAddress{MountPath: cfg.MountPath}
	if cfg.CanonicalBaseAddress != "" {
		u, err := url.Parse(cfg.CanonicalBaseAddress)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidBaseAddress, cfg.CanonicalBaseAddress)
		}
		cfg.CanonicalBaseAddress = strings.TrimRight(cfg.CanonicalBaseAddress, "/")
		address = HardcodedAddress(cfg.CanonicalBaseAddress)
	}
	return &Policy{cfg: cfg, version: version, address: address}, nil
}

// Config returns the normalized configuration.
func (p *Policy) Config() Config { return p.cfg }

// Version returns the FHIR version the policy renders MIME types for.
func (p *Policy) Version() fhir.Version { return p.version }

// Address returns the address strategy in effect.
func (p *Policy) Address() AddressStrategy { return p.address }

// BaseAddress returns the server base URL for r, without a trailing slash.
func (p *Policy) BaseAddress(r *http.Request) string {
	return strings.TrimRight(p.address.BaseAddress(r), "/")
}

// ResourceURL renders the absolute URL of a resource instance.
func (p *Policy) ResourceURL(r *http.Request, resourceType, id string) string {
	return p.BaseAddress(r) + "/" + resourceType + "/" + url.PathEscape(id)
}

// Negotiated is the response format chosen for one request.
type Negotiated struct {
	Encoding fhir.Encoding
	Pretty   bool
	// ContentType is the Content-Type header value to send.
	ContentType string
	// Explicit is true when the client named a format with _format.
	Explicit bool
}

// Negotiate picks the response encoding and pretty-printing for r. The
// _format parameter wins over Accept; an Accept header the server cannot
// satisfy falls back to the default encoding.
func (p *Policy) Negotiate(r *http.Request) (Negotiated, error) {
	q := r.URL.Query()
	n := Negotiated{Encoding: p.cfg.DefaultEncoding, Pretty: p.cfg.DefaultPrettyPrint}

	if f := q.Get("_format"); f != "" {
		enc, err := fhir.ParseEncoding(f)
		if err != nil {
			return n, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
		}
		n.Encoding = enc
		n.Explicit = true
	} else if !acceptsHTML(r) {
		// Browsers list XML in Accept alongside text/html; they get the
		// default encoding instead.
		if enc, ok := p.fromAccept(r); ok {
			n.Encoding = enc
		}
	}

	browser := p.cfg.BrowserFriendlyContentTypes && !n.Explicit && isBrowser(r)
	if browser {
		n.Pretty = true
	}
	if v := q.Get("_pretty"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			n.Pretty = b
		}
	}

	switch {
	case browser && n.Encoding == fhir.EncodingXML:
		n.ContentType = "text/xml"
	case browser:
		n.ContentType = "text/plain"
	default:
		n.ContentType = p.version.MIMEType(n.Encoding)
	}
	n.ContentType += "; charset=UTF-8"
	return n, nil
}

func (p *Policy) acceptable() []contenttype.MediaType {
	json := []contenttype.MediaType{
		contenttype.NewMediaType(p.version.MIMEType(fhir.EncodingJSON)),
		contenttype.NewMediaType("application/json"),
	}
	xml := []contenttype.MediaType{
		contenttype.NewMediaType(p.version.MIMEType(fhir.EncodingXML)),
		contenttype.NewMediaType("application/xml"),
		contenttype.NewMediaType("text/xml"),
	}
	if p.cfg.DefaultEncoding == fhir.EncodingXML {
		return append(xml, json...)
	}
	return append(json, xml...)
}

func (p *Policy) fromAccept(r *http.Request) (fhir.Encoding, bool) {
	if r.Header.Get("Accept") == "" {
		return "", false
	}
	mt, _, err := contenttype.GetAcceptableMediaType(r, p.acceptable())
	if err != nil {
		return "", false
	}
	if strings.Contains(mt.Subtype, "xml") {
		return fhir.EncodingXML, true
	}
	return fhir.EncodingJSON, true
}

func acceptsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func isBrowser(r *http.Request) bool {
	return acceptsHTML(r) || strings.Contains(r.Header.Get("User-Agent"), "Mozilla")
}
