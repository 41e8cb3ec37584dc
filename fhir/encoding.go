package fhir

import (
	"fmt"
	"strings"
)

// Encoding is a resource serialization format.
type Encoding string

const (
	EncodingJSON Encoding = "json"
	EncodingXML  Encoding = "xml"
)

// ParseEncoding accepts the short forms used by the _format parameter
// ("json", "xml") as well as any JSON or XML flavoured MIME type.
func ParseEncoding(s string) (Encoding, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexByte(v, ';'); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}
	switch {
	case v == "json" || strings.HasSuffix(v, "/json") || strings.HasSuffix(v, "+json") || strings.HasPrefix(v, "application/json"):
		return EncodingJSON, nil
	case v == "xml" || strings.HasSuffix(v, "/xml") || strings.HasSuffix(v, "+xml") || strings.HasPrefix(v, "application/xml"):
		return EncodingXML, nil
	}
	return "", fmt.Errorf("unsupported encoding %q", s)
}

// Valid reports whether e is a known encoding.
func (e Encoding) Valid() bool { return e == EncodingJSON || e == EncodingXML }
