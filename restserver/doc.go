// Package restserver exposes a bootstrapped server over HTTP.
//
// A Handler routes FHIR REST requests by method and path, negotiates the
// response format with the server's request policy, runs the interceptor
// chain around the bound provider and renders the result. Search and history
// results that do not fit in one page are stored with the server's paging
// controller and linked with _getpages URLs.
//
// Routes are mounted below the policy's mount path. Typical usage:
//
//	srv, err := bootstrap.Initialize(catalog, bootstrap.DefaultConfig(fhir.DSTU2))
//	if err != nil { /* handle */ }
//	h, err := restserver.New(srv)
//	if err != nil { /* handle */ }
//	http.ListenAndServe(":8080", h)
//
// Swappable lets a running process replace the whole Handler, for example
// after re-bootstrapping from a changed configuration file.
package restserver
