package fhirservice

import (
	"context"
	"net/url"

	"github.com/jamesagnew/continua-demo-fhir-server/fhir"
)

// ResourceProvider serves one resource type.
type ResourceProvider interface {
	// ResourceType returns the FHIR resource type bound to this provider
	// (e.g. "Patient"). It must be stable for the provider's lifetime.
	ResourceType() string

	// Interactions declares the resource-level interactions the provider
	// supports. Each must be backed by the matching handler interface.
	Interactions() []fhir.TypeInteraction
}

// SystemProvider serves interactions that span resource types.
type SystemProvider interface {
	SystemInteractions() []fhir.SystemInteraction
}

// OperationDefinition declares a named operation such as $everything.
// ResourceTypes lists the resource types the operation is invoked on; for a
// resource provider an empty list means the provider's own type.
type OperationDefinition struct {
	Name          string
	Definition    string
	ResourceTypes []string
}

// OperationProvider is implemented by providers that declare named
// operations.
type OperationProvider interface {
	Operations() []OperationDefinition
}

// SearchParamProvider is implemented by resource providers that advertise
// search parameters.
type SearchParamProvider interface {
	SearchParams() []fhir.SearchParamDecl
}

// Resource-level handler interfaces.

type Reader interface {
	Read(ctx context.Context, req *Request, id string) (fhir.Resource, error)
}

type VersionReader interface {
	VRead(ctx context.Context, req *Request, id, versionID string) (fhir.Resource, error)
}

type Creator interface {
	Create(ctx context.Context, req *Request, res fhir.Resource) (fhir.Resource, error)
}

// Updater replaces a resource, creating it when absent (update-as-create).
type Updater interface {
	Update(ctx context.Context, req *Request, id string, res fhir.Resource) (out fhir.Resource, created bool, err error)
}

type Deleter interface {
	Delete(ctx context.Context, req *Request, id string) error
}

// Searcher executes a type-level search. The full match set is returned;
// paging is applied by the caller.
type Searcher interface {
	Search(ctx context.Context, req *Request, params url.Values) ([]fhir.Resource, error)
}

type InstanceHistoryReader interface {
	InstanceHistory(ctx context.Context, req *Request, id string) ([]fhir.Resource, error)
}

type TypeHistoryReader interface {
	TypeHistory(ctx context.Context, req *Request) ([]fhir.Resource, error)
}

// System-level handler interfaces.

type Transactor interface {
	Transaction(ctx context.Context, req *Request, bundle *fhir.Bundle) (*fhir.Bundle, error)
}

type Batcher interface {
	Batch(ctx context.Context, req *Request, bundle *fhir.Bundle) (*fhir.Bundle, error)
}

type SystemHistoryReader interface {
	SystemHistory(ctx context.Context, req *Request) ([]fhir.Resource, error)
}

type SystemSearcher interface {
	SearchAll(ctx context.Context, req *Request, params url.Values) ([]fhir.Resource, error)
}

// Implements reports whether p has the handler interface backing interaction i.
func Implements(p ResourceProvider, i fhir.TypeInteraction) bool {
	var ok bool
	switch i {
	case fhir.InteractionRead:
		_, ok = p.(Reader)
	case fhir.InteractionVRead:
		_, ok = p.(VersionReader)
	case fhir.InteractionUpdate:
		_, ok = p.(Updater)
	case fhir.InteractionDelete:
		_, ok = p.(Deleter)
	case fhir.InteractionHistoryInstance:
		_, ok = p.(InstanceHistoryReader)
	case fhir.InteractionHistoryType:
		_, ok = p.(TypeHistoryReader)
	case fhir.InteractionCreate:
		_, ok = p.(Creator)
	case fhir.InteractionSearchType:
		_, ok = p.(Searcher)
	}
	return ok
}

// ImplementsSystem is Implements for system interactions.
func ImplementsSystem(p SystemProvider, i fhir.SystemInteraction) bool {
	var ok bool
	switch i {
	case fhir.InteractionTransaction:
		_, ok = p.(Transactor)
	case fhir.InteractionBatch:
		_, ok = p.(Batcher)
	case fhir.InteractionHistorySystem:
		_, ok = p.(SystemHistoryReader)
	case fhir.InteractionSearchSystem:
		_, ok = p.(SystemSearcher)
	}
	return ok
}

// Declares reports whether p lists interaction i.
func Declares(p ResourceProvider, i fhir.TypeInteraction) bool {
	for _, d := range p.Interactions() {
		if d == i {
			return true
		}
	}
	return false
}

// DeclaresSystem reports whether p lists system interaction i.
func DeclaresSystem(p SystemProvider, i fhir.SystemInteraction) bool {
	for _, d := range p.SystemInteractions() {
		if d == i {
			return true
		}
	}
	return false
}
