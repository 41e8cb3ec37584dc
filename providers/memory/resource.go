package memory

import (
	"context"
	"net/url"
	"strings"

	"github.com/jamesagnew/continua-demo-fhir-server/fhir"
	"github.com/jamesagnew/continua-demo-fhir-server/fhirservice"
)

// ResourceProvider serves one resource type from a Store. It supports every
// type-level interaction.
type ResourceProvider struct {
	store        *Store
	resourceType string
}

var (
	_ fhirservice.Reader                = (*ResourceProvider)(nil)
	_ fhirservice.VersionReader         = (*ResourceProvider)(nil)
	_ fhirservice.Creator               = (*ResourceProvider)(nil)
	_ fhirservice.Updater               = (*ResourceProvider)(nil)
	_ fhirservice.Deleter               = (*ResourceProvider)(nil)
	_ fhirservice.Searcher              = (*ResourceProvider)(nil)
	_ fhirservice.InstanceHistoryReader = (*ResourceProvider)(nil)
	_ fhirservice.TypeHistoryReader     = (*ResourceProvider)(nil)
	_ fhirservice.SearchParamProvider   = (*ResourceProvider)(nil)
)

// NewResourceProvider returns a provider for resourceType backed by store.
func NewResourceProvider(store *Store, resourceType string) *ResourceProvider {
	return &ResourceProvider{store: store, resourceType: resourceType}
}

// ResourceProviders returns one provider per type, in the given order.
func ResourceProviders(store *Store, types ...string) []fhirservice.ResourceProvider {
	out := make([]fhirservice.ResourceProvider, len(types))
	for i, t := range types {
		out[i] = NewResourceProvider(store, t)
	}
	return out
}

func (p *ResourceProvider) ResourceType() string { return p.resourceType }

func (p *ResourceProvider) Interactions() []fhir.TypeInteraction {
	return []fhir.TypeInteraction{
		fhir.InteractionRead,
		fhir.InteractionVRead,
		fhir.InteractionUpdate,
		fhir.InteractionDelete,
		fhir.InteractionHistoryInstance,
		fhir.InteractionHistoryType,
		fhir.InteractionCreate,
		fhir.InteractionSearchType,
	}
}

func (p *ResourceProvider) SearchParams() []fhir.SearchParamDecl {
	return []fhir.SearchParamDecl{{Name: "_id", Type: "token"}}
}

func (p *ResourceProvider) Read(ctx context.Context, req *fhirservice.Request, id string) (fhir.Resource, error) {
	return p.store.read(p.resourceType, id)
}

func (p *ResourceProvider) VRead(ctx context.Context, req *fhirservice.Request, id, versionID string) (fhir.Resource, error) {
	return p.store.vread(p.resourceType, id, versionID)
}

func (p *ResourceProvider) Create(ctx context.Context, req *fhirservice.Request, res fhir.Resource) (fhir.Resource, error) {
	if err := p.checkType(res); err != nil {
		return nil, err
	}
	return p.store.create(p.resourceType, res), nil
}

func (p *ResourceProvider) Update(ctx context.Context, req *fhirservice.Request, id string, res fhir.Resource) (fhir.Resource, bool, error) {
	if err := p.checkType(res); err != nil {
		return nil, false, err
	}
	if bodyID := res.ID(); bodyID != "" && bodyID != id {
		return nil, false, fhirservice.InvalidRequest("resource id %q does not match URL id %q", bodyID, id)
	}
	out, created := p.store.update(p.resourceType, id, res)
	return out, created, nil
}

func (p *ResourceProvider) Delete(ctx context.Context, req *fhirservice.Request, id string) error {
	return p.store.delete(p.resourceType, id)
}

// Search supports _id plus exact matches on top-level string elements.
// Result-control parameters (_count, _format, ...) are ignored.
func (p *ResourceProvider) Search(ctx context.Context, req *fhirservice.Request, params url.Values) ([]fhir.Resource, error) {
	all := p.store.live(p.resourceType)
	out := all[:0]
	for _, r := range all {
		if matches(r, params) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (p *ResourceProvider) InstanceHistory(ctx context.Context, req *fhirservice.Request, id string) ([]fhir.Resource, error) {
	if _, err := p.store.read(p.resourceType, id); err != nil {
		return nil, err
	}
	return p.store.history(func(r fhir.Resource) bool {
		return r.ResourceType() == p.resourceType && r.ID() == id
	}), nil
}

func (p *ResourceProvider) TypeHistory(ctx context.Context, req *fhirservice.Request) ([]fhir.Resource, error) {
	return p.store.history(func(r fhir.Resource) bool { return r.ResourceType() == p.resourceType }), nil
}

func (p *ResourceProvider) checkType(res fhir.Resource) error {
	if rt := res.ResourceType(); rt != p.resourceType {
		return fhirservice.InvalidRequest("resource type %q does not match endpoint %s", rt, p.resourceType)
	}
	return nil
}

func matches(r fhir.Resource, params url.Values) bool {
	for name, values := range params {
		if len(values) == 0 {
			continue
		}
		want := values[0]
		switch {
		case name == "_id":
			if !containsValue(want, r.ID()) {
				return false
			}
		case strings.HasPrefix(name, "_"):
			// result parameters
		default:
			got, ok := r[name].(string)
			if !ok || !containsValue(want, got) {
				return false
			}
		}
	}
	return true
}

// containsValue reports whether got is one of the comma-separated values in
// want.
func containsValue(want, got string) bool {
	for _, w := range strings.Split(want, ",") {
		if w == got {
			return true
		}
	}
	return false
}
