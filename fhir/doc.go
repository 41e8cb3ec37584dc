// Package fhir contains the protocol data types and constants shared by the
// bootstrap, the provider layer and the REST surface. It mirrors the wire
// shape of the handful of FHIR documents the server itself produces
// (CapabilityStatement, OperationOutcome, Bundle) while keeping the surface
// Go-friendly: exported structs with json tags and string constants for
// enumerations.
//
// The package does not model clinical resources. Resources handed to and
// returned from providers are opaque JSON objects (Resource); their schema is
// the provider's concern.
//
// # Versions
//
// Version is a closed enumeration of the FHIR releases a server instance can
// be bootstrapped with. A server fixes exactly one Version for its lifetime;
// every version-specific decision (discovery names, MIME types, the
// fhirVersion stamped into the capability statement) is derived from it
// through lookup tables rather than string formatting:
//
//	keys := fhir.DSTU2.Keys()
//	keys.ResourceProviders // "myResourceProvidersDstu2"
//
// # Interactions
//
// TypeInteraction and SystemInteraction enumerate the RESTful interaction
// codes advertised in CapabilityStatement.rest.resource.interaction and
// CapabilityStatement.rest.interaction. Their ordering (see
// SortTypeInteractions) is stable so generated documents are deterministic.
package fhir
