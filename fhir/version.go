package fhir

import (
	"fmt"
	"strings"
)

// Version identifies the FHIR release a server instance implements.
type Version int

const (
	versionUnknown Version = iota
	DSTU1
	DSTU2
	DSTU3
	R4
)

// AllVersions lists every supported Version in release order.
var AllVersions = []Version{DSTU1, DSTU2, DSTU3, R4}

// DiscoveryKeys are the logical names under which a discovery source is
// expected to publish the collaborators for one Version.
type DiscoveryKeys struct {
	ResourceProviders string
	SystemProvider    string
	Interceptors      string
}

// InterceptorsKey is shared by all versions; interceptors are not
// version-specific.
const InterceptorsKey = "interceptors"

type versionInfo struct {
	name     string
	tag      string
	release  string
	jsonMIME string
	xmlMIME  string
}

var versionTable = map[Version]versionInfo{
	DSTU1: {name: "DSTU1", tag: "Dstu1", release: "0.0.82", jsonMIME: "application/json+fhir", xmlMIME: "application/xml+fhir"},
	DSTU2: {name: "DSTU2", tag: "Dstu2", release: "1.0.2", jsonMIME: "application/json+fhir", xmlMIME: "application/xml+fhir"},
	DSTU3: {name: "DSTU3", tag: "Dstu3", release: "3.0.2", jsonMIME: "application/fhir+json", xmlMIME: "application/fhir+xml"},
	R4:    {name: "R4", tag: "R4", release: "4.0.1", jsonMIME: "application/fhir+json", xmlMIME: "application/fhir+xml"},
}

// ParseVersion parses a version name such as "dstu2" or "R4"
// (case-insensitive).
func ParseVersion(s string) (Version, error) {
	want := strings.TrimSpace(s)
	for _, v := range AllVersions {
		if strings.EqualFold(versionTable[v].name, want) {
			return v, nil
		}
	}
	return versionUnknown, fmt.Errorf("unsupported FHIR version %q", s)
}

// Valid reports whether v is one of AllVersions.
func (v Version) Valid() bool {
	_, ok := versionTable[v]
	return ok
}

func (v Version) String() string {
	if info, ok := versionTable[v]; ok {
		return info.name
	}
	return fmt.Sprintf("Version(%d)", int(v))
}

// Release returns the FHIR release number advertised as fhirVersion.
func (v Version) Release() string { return versionTable[v].release }

// Keys returns the discovery names for v. The zero value is returned for an
// invalid version.
func (v Version) Keys() DiscoveryKeys {
	info, ok := versionTable[v]
	if !ok {
		return DiscoveryKeys{}
	}
	return DiscoveryKeys{
		ResourceProviders: "myResourceProviders" + info.tag,
		SystemProvider:    "mySystemProvider" + info.tag,
		Interceptors:      InterceptorsKey,
	}
}

// MIMEType returns the FHIR media type for the given encoding under v.
func (v Version) MIMEType(e Encoding) string {
	info := versionTable[v]
	if e == EncodingXML {
		return info.xmlMIME
	}
	return info.jsonMIME
}
