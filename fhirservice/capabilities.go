package fhirservice

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/jamesagnew/continua-demo-fhir-server/fhir"
)

// DefaultDescription is used for implementation.description when none is
// configured.
const DefaultDescription = "Example Server"

// CapabilityMetadata is the server-identifying input to
// BuildCapabilityStatement.
type CapabilityMetadata struct {
	Version         fhir.Version
	SoftwareName    string
	SoftwareVersion string
	Description     string
	BaseAddress     string
}

// BuildCapabilityStatement derives the capability statement for the bound
// providers. The result is a pure function of its inputs: building twice from
// the same registry, system provider and metadata yields documents that
// marshal to identical bytes.
//
// A provider set that cannot be described truthfully yields a
// *CapabilityError.
func BuildCapabilityStatement(reg *Registry, sys SystemProvider, meta CapabilityMetadata) (fhir.CapabilityStatement, error) {
	if !meta.Version.Valid() {
		return fhir.CapabilityStatement{}, fmt.Errorf("build capability statement: invalid version %v", meta.Version)
	}
	if sys == nil {
		return fhir.CapabilityStatement{}, &CapabilityError{Provider: "system", Reason: "no system provider"}
	}

	bindings := reg.Bindings()
	bound := make(map[string]bool, len(bindings))
	for _, b := range bindings {
		bound[b.ResourceType] = true
	}

	rest := fhir.CapabilityRest{Mode: "server", Resource: make([]fhir.CapabilityResource, 0, len(bindings))}
	for _, b := range bindings {
		res, err := describeResource(b, bound)
		if err != nil {
			return fhir.CapabilityStatement{}, err
		}
		rest.Resource = append(rest.Resource, res)
	}

	for _, i := range sys.SystemInteractions() {
		if !i.Valid() {
			return fhir.CapabilityStatement{}, &CapabilityError{Provider: fmt.Sprintf("system provider %T", sys), Reason: fmt.Sprintf("unknown interaction %q", i)}
		}
	}
	for _, i := range fhir.SortSystemInteractions(sys.SystemInteractions()) {
		if !ImplementsSystem(sys, i) {
			return fhir.CapabilityStatement{}, &CapabilityError{
				Provider: fmt.Sprintf("system provider %T", sys),
				Reason:   fmt.Sprintf("declares %s but has no handler for it", i),
			}
		}
		rest.Interaction = append(rest.Interaction, fhir.SystemInteractionDecl{Code: i})
	}
	if op, ok := sys.(OperationProvider); ok {
		for _, d := range op.Operations() {
			if len(d.ResourceTypes) > 0 {
				return fhir.CapabilityStatement{}, &CapabilityError{
					Provider: fmt.Sprintf("system provider %T", sys),
					Reason:   fmt.Sprintf("system operation %s names resource types %v", d.Name, d.ResourceTypes),
				}
			}
			rest.Operation = append(rest.Operation, fhir.OperationDecl{Name: d.Name, Definition: d.Definition})
		}
	}

	description := meta.Description
	if description == "" {
		description = DefaultDescription
	}
	cs := fhir.CapabilityStatement{
		ResourceType: "CapabilityStatement",
		Status:       "active",
		Kind:         "instance",
		Software: fhir.CapabilitySoftware{
			Name:    meta.SoftwareName,
			Version: meta.SoftwareVersion,
		},
		Implementation: fhir.CapabilityImplementation{
			Description: description,
			URL:         meta.BaseAddress,
		},
		FHIRVersion: meta.Version.Release(),
		Format: []string{
			meta.Version.MIMEType(fhir.EncodingJSON),
			meta.Version.MIMEType(fhir.EncodingXML),
		},
		Rest: []fhir.CapabilityRest{rest},
	}
	switch meta.Version {
	case fhir.DSTU1, fhir.DSTU2:
		cs.ResourceType = "Conformance"
		cs.AcceptUnknown = "both"
	case fhir.DSTU3:
		cs.AcceptUnknown = "both"
	}
	return cs, nil
}

func describeResource(b Binding, bound map[string]bool) (fhir.CapabilityResource, error) {
	p := b.Provider
	name := fmt.Sprintf("%s provider %T", b.ResourceType, p)
	res := fhir.CapabilityResource{Type: b.ResourceType, Interaction: []fhir.TypeInteractionDecl{}}

	for _, i := range p.Interactions() {
		if !i.Valid() {
			return res, &CapabilityError{Provider: name, Reason: fmt.Sprintf("unknown interaction %q", i)}
		}
	}
	for _, i := range fhir.SortTypeInteractions(p.Interactions()) {
		if !Implements(p, i) {
			return res, &CapabilityError{Provider: name, Reason: fmt.Sprintf("declares %s but has no handler for it", i)}
		}
		res.Interaction = append(res.Interaction, fhir.TypeInteractionDecl{Code: i})
	}

	if sp, ok := p.(SearchParamProvider); ok {
		params := slices.Clone(sp.SearchParams())
		slices.SortStableFunc(params, func(a, b fhir.SearchParamDecl) int { return cmp.Compare(a.Name, b.Name) })
		res.SearchParam = params
	}

	if op, ok := p.(OperationProvider); ok {
		for _, d := range op.Operations() {
			for _, rt := range d.ResourceTypes {
				if rt != b.ResourceType && !bound[rt] {
					return res, &CapabilityError{
						Provider: name,
						Reason:   fmt.Sprintf("operation %s names unbound resource type %s", d.Name, rt),
					}
				}
			}
			res.Operation = append(res.Operation, fhir.OperationDecl{Name: d.Name, Definition: d.Definition})
		}
	}
	return res, nil
}
