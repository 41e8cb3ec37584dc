package fhir

// CapabilityStatement is the subset of the FHIR CapabilityStatement
// (Conformance in DSTU1/DSTU2) that a server instance generates about itself.
// Field order follows the FHIR JSON element order so that encoding is stable.
type CapabilityStatement struct {
	ResourceType   string                   `json:"resourceType"`
	Status         string                   `json:"status"`
	Kind           string                   `json:"kind"`
	Publisher      string                   `json:"publisher,omitzero"`
	Software       CapabilitySoftware       `json:"software"`
	Implementation CapabilityImplementation `json:"implementation"`
	FHIRVersion    string                   `json:"fhirVersion"`
	AcceptUnknown  string                   `json:"acceptUnknown,omitzero"`
	Format         []string                 `json:"format"`
	Rest           []CapabilityRest         `json:"rest"`
}

// CapabilitySoftware identifies the server software.
type CapabilitySoftware struct {
	Name    string `json:"name"`
	Version string `json:"version,omitzero"`
}

// CapabilityImplementation describes this particular deployment.
type CapabilityImplementation struct {
	Description string `json:"description"`
	URL         string `json:"url,omitzero"`
}

// CapabilityRest describes the RESTful surface in server mode.
type CapabilityRest struct {
	Mode        string                  `json:"mode"`
	Resource    []CapabilityResource    `json:"resource"`
	Interaction []SystemInteractionDecl `json:"interaction,omitempty"`
	Operation   []OperationDecl         `json:"operation,omitempty"`
}

// CapabilityResource advertises one bound resource type.
type CapabilityResource struct {
	Type        string                `json:"type"`
	Interaction []TypeInteractionDecl `json:"interaction"`
	SearchParam []SearchParamDecl     `json:"searchParam,omitempty"`
	Operation   []OperationDecl       `json:"operation,omitempty"`
}

// TypeInteractionDecl is an element of rest.resource.interaction.
type TypeInteractionDecl struct {
	Code TypeInteraction `json:"code"`
}

// SystemInteractionDecl is an element of rest.interaction.
type SystemInteractionDecl struct {
	Code SystemInteraction `json:"code"`
}

// SearchParamDecl advertises a search parameter.
type SearchParamDecl struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// OperationDecl advertises a named operation such as $everything.
type OperationDecl struct {
	Name       string `json:"name"`
	Definition string `json:"definition,omitzero"`
}

// ResourceTypes returns the advertised resource types in document order.
func (c CapabilityStatement) ResourceTypes() []string {
	var out []string
	for _, r := range c.Rest {
		for _, res := range r.Resource {
			out = append(out, res.Type)
		}
	}
	return out
}
