package bootstrap

import (
	"slices"
	"sync"

	"github.com/jamesagnew/continua-demo-fhir-server/fhirservice"
)

// DiscoverySource publishes the collaborators a server is composed from,
// keyed by logical name. Lookups return ok=false when nothing is published
// under name; an error means the lookup itself failed.
type DiscoverySource interface {
	ResourceProviders(name string) ([]fhirservice.ResourceProvider, bool, error)
	SystemProvider(name string) (fhirservice.SystemProvider, bool, error)
	Interceptors(name string) ([]any, bool, error)
}

// Catalog is an in-code DiscoverySource. Values are returned in the order
// they were added.
type Catalog struct {
	mu           sync.RWMutex
	resources    map[string][]fhirservice.ResourceProvider
	systems      map[string]fhirservice.SystemProvider
	interceptors map[string][]any
}

var _ DiscoverySource = (*Catalog)(nil)

// NewCatalog returns an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		resources:    make(map[string][]fhirservice.ResourceProvider),
		systems:      make(map[string]fhirservice.SystemProvider),
		interceptors: make(map[string][]any),
	}
}

// AddResourceProviders publishes ps under name, after any already there.
// Calling it with no providers publishes an empty set.
func (c *Catalog) AddResourceProviders(name string, ps ...fhirservice.ResourceProvider) *Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resources[name] = append(c.resources[name], ps...)
	if c.resources[name] == nil {
		c.resources[name] = []fhirservice.ResourceProvider{}
	}
	return c
}

// SetSystemProvider publishes sp under name, replacing any previous one.
func (c *Catalog) SetSystemProvider(name string, sp fhirservice.SystemProvider) *Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.systems[name] = sp
	return c
}

// AddInterceptors publishes is under name, after any already there.
func (c *Catalog) AddInterceptors(name string, is ...any) *Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interceptors[name] = append(c.interceptors[name], is...)
	return c
}

// ResourceProviders returns a copy of the providers published under name.
func (c *Catalog) ResourceProviders(name string) ([]fhirservice.ResourceProvider, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ps, ok := c.resources[name]
	return slices.Clone(ps), ok, nil
}

// SystemProvider returns the system provider published under name. A nil
// provider counts as absent.
func (c *Catalog) SystemProvider(name string) (fhirservice.SystemProvider, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sp, ok := c.systems[name]
	return sp, ok && sp != nil, nil
}

// Interceptors returns a copy of the interceptors published under name.
func (c *Catalog) Interceptors(name string) ([]any, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	is, ok := c.interceptors[name]
	return slices.Clone(is), ok, nil
}
