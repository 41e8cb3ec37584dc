// Package fhirservice defines the provider interfaces a FHIR server instance
// is composed from, the registry that binds them, and the builder that
// derives a CapabilityStatement from what was bound.
//
// Providers are small capability interfaces. A resource provider names the
// resource type it serves and declares the interactions it supports; for each
// declared interaction it must also implement the matching handler interface
// (Reader for read, Searcher for search-type, ...). A single system provider
// does the same for whole-system interactions such as transaction and
// history-system.
//
//	type patients struct{ store *memory.Store }
//
//	func (patients) ResourceType() string { return "Patient" }
//	func (patients) Interactions() []fhir.TypeInteraction {
//	    return []fhir.TypeInteraction{fhir.InteractionRead, fhir.InteractionSearchType}
//	}
//	func (p patients) Read(ctx context.Context, req *fhirservice.Request, id string) (fhir.Resource, error) { ... }
//	func (p patients) Search(ctx context.Context, req *fhirservice.Request, params url.Values) ([]fhir.Resource, error) { ... }
//
// Declared interactions are the source of truth for the capability
// statement. BuildCapabilityStatement refuses to produce a document that
// advertises something no handler can serve.
//
// # Registry
//
// Registry holds at most one provider per resource type and preserves
// registration order. It is written only while a server is being
// bootstrapped; Freeze makes it read-only, after which Register fails with
// ErrRegistryFrozen. A frozen registry is safe for concurrent readers.
package fhirservice
