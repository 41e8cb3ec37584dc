// Package bootstrap composes a FHIR server instance from its collaborators.
//
// Initialize runs once per server instance, before any request is accepted.
// It fixes the FHIR version, resolves the resource providers, system provider
// and interceptors the DiscoverySource publishes under that version's
// discovery keys, derives the capability statement, validates the request
// policy and paging limits, and freezes everything into an immutable Server.
//
//	cat := bootstrap.NewCatalog()
//	keys := fhir.DSTU2.Keys()
//	cat.AddResourceProviders(keys.ResourceProviders, patients, observations)
//	cat.SetSystemProvider(keys.SystemProvider, system)
//	cat.AddInterceptors(keys.Interceptors, interceptor.Logging(logger))
//
//	srv, err := bootstrap.Initialize(cat, bootstrap.Config{Version: fhir.DSTU2, ...})
//
// Bootstrap is all-or-nothing: any failure returns a *Error and no Server.
package bootstrap
