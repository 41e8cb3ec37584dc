package fhirservice

import (
	"context"
	"net/url"

	"github.com/jamesagnew/continua-demo-fhir-server/fhir"
)

type readOnly struct {
	rt string
}

func (p readOnly) ResourceType() string { return p.rt }
func (readOnly) Interactions() []fhir.TypeInteraction {
	return []fhir.TypeInteraction{fhir.InteractionRead}
}
func (readOnly) Read(context.Context, *Request, string) (fhir.Resource, error) { return nil, nil }

type searchable struct {
	readOnly
	ops    []OperationDefinition
	params []fhir.SearchParamDecl
}

func (searchable) Interactions() []fhir.TypeInteraction {
	return []fhir.TypeInteraction{fhir.InteractionSearchType, fhir.InteractionRead}
}
func (searchable) Search(context.Context, *Request, url.Values) ([]fhir.Resource, error) {
	return nil, nil
}
func (p searchable) Operations() []OperationDefinition    { return p.ops }
func (p searchable) SearchParams() []fhir.SearchParamDecl { return p.params }

// liar declares create without implementing Creator.
type liar struct{ readOnly }

func (liar) Interactions() []fhir.TypeInteraction {
	return []fhir.TypeInteraction{fhir.InteractionRead, fhir.InteractionCreate}
}

type system struct {
	interactions []fhir.SystemInteraction
}

func (s system) SystemInteractions() []fhir.SystemInteraction { return s.interactions }
func (system) Transaction(context.Context, *Request, *fhir.Bundle) (*fhir.Bundle, error) {
	return nil, nil
}
func (system) SystemHistory(context.Context, *Request) ([]fhir.Resource, error) { return nil, nil }
