package fhir

import (
	"encoding/json"
	"fmt"
)

// Resource is an opaque FHIR resource in its JSON form. Only the envelope
// fields the server routes on (resourceType, id, meta.versionId) are
// interpreted.
type Resource map[string]any

// DecodeResource parses a JSON resource body.
func DecodeResource(b []byte) (Resource, error) {
	var r Resource
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("invalid resource body: %w", err)
	}
	if r == nil {
		return nil, fmt.Errorf("invalid resource body: not an object")
	}
	return r, nil
}

// ResourceType returns the resourceType element, or "".
func (r Resource) ResourceType() string {
	s, _ := r["resourceType"].(string)
	return s
}

// ID returns the logical id, or "".
func (r Resource) ID() string {
	s, _ := r["id"].(string)
	return s
}

// VersionID returns meta.versionId, or "".
func (r Resource) VersionID() string {
	meta, _ := r["meta"].(map[string]any)
	s, _ := meta["versionId"].(string)
	return s
}

// Clone returns a deep copy of r so providers can hand out values without
// sharing their internal state.
func (r Resource) Clone() Resource {
	if r == nil {
		return nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	var out Resource
	_ = json.Unmarshal(b, &out)
	return out
}

// Bundle types used by the server.
const (
	BundleTypeSearchset           = "searchset"
	BundleTypeHistory             = "history"
	BundleTypeTransaction         = "transaction"
	BundleTypeTransactionResponse = "transaction-response"
	BundleTypeBatch               = "batch"
	BundleTypeBatchResponse       = "batch-response"
)

// Bundle is the container returned by searches and history, and accepted by
// transactions and batches.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitzero"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

// BundleLink is a navigation link (self, next, previous).
type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// BundleEntry is one entry of a Bundle.
type BundleEntry struct {
	FullURL  string               `json:"fullUrl,omitzero"`
	Resource Resource             `json:"resource,omitempty"`
	Request  *BundleEntryRequest  `json:"request,omitempty"`
	Response *BundleEntryResponse `json:"response,omitempty"`
}

// BundleEntryRequest carries the action for transaction/batch entries.
type BundleEntryRequest struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// BundleEntryResponse carries the outcome of a transaction/batch entry.
type BundleEntryResponse struct {
	Status   string   `json:"status"`
	Location string   `json:"location,omitzero"`
	Outcome  Resource `json:"outcome,omitempty"`
}

// NewBundle returns an empty bundle of the given type.
func NewBundle(bundleType string) *Bundle {
	return &Bundle{ResourceType: "Bundle", Type: bundleType}
}

// WithTotal sets Bundle.total.
func (b *Bundle) WithTotal(n int) *Bundle {
	b.Total = &n
	return b
}

// AddLink appends a navigation link.
func (b *Bundle) AddLink(relation, url string) {
	b.Link = append(b.Link, BundleLink{Relation: relation, URL: url})
}
