package memory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/jamesagnew/continua-demo-fhir-server/fhir"
	"github.com/jamesagnew/continua-demo-fhir-server/fhirservice"
)

// SystemProvider serves transaction, batch and system history over a Store.
// Bundle entries may only touch the resource types of its bound providers.
type SystemProvider struct {
	store     *Store
	providers map[string]fhirservice.ResourceProvider
}

var (
	_ fhirservice.Transactor          = (*SystemProvider)(nil)
	_ fhirservice.Batcher             = (*SystemProvider)(nil)
	_ fhirservice.SystemHistoryReader = (*SystemProvider)(nil)
)

// NewSystemProvider returns the system provider for store. Entries are
// checked against the interactions providers declare.
func NewSystemProvider(store *Store, providers ...fhirservice.ResourceProvider) *SystemProvider {
	bound := make(map[string]fhirservice.ResourceProvider, len(providers))
	for _, rp := range providers {
		bound[rp.ResourceType()] = rp
	}
	return &SystemProvider{store: store, providers: bound}
}

func (p *SystemProvider) SystemInteractions() []fhir.SystemInteraction {
	return []fhir.SystemInteraction{fhir.InteractionTransaction, fhir.InteractionBatch, fhir.InteractionHistorySystem}
}

func (p *SystemProvider) SystemHistory(ctx context.Context, req *fhirservice.Request) ([]fhir.Resource, error) {
	return p.store.history(func(fhir.Resource) bool { return true }), nil
}

// Transaction applies every entry or none.
func (p *SystemProvider) Transaction(ctx context.Context, req *fhirservice.Request, in *fhir.Bundle) (*fhir.Bundle, error) {
	p.store.mu.Lock()
	defer p.store.mu.Unlock()

	undo := p.store.snapshot()
	out := fhir.NewBundle(fhir.BundleTypeTransactionResponse)
	for i, e := range in.Entry {
		resp, err := p.apply(e)
		if err != nil {
			undo()
			fe := fhirservice.AsError(err)
			fe.Diagnostics = fmt.Sprintf("transaction entry %d: %s", i, fe.Diagnostics)
			return nil, fe
		}
		out.Entry = append(out.Entry, resp)
	}
	return out, nil
}

// Batch applies entries independently; failures are reported per entry.
func (p *SystemProvider) Batch(ctx context.Context, req *fhirservice.Request, in *fhir.Bundle) (*fhir.Bundle, error) {
	p.store.mu.Lock()
	defer p.store.mu.Unlock()

	out := fhir.NewBundle(fhir.BundleTypeBatchResponse)
	for _, e := range in.Entry {
		resp, err := p.apply(e)
		if err != nil {
			fe := fhirservice.AsError(err)
			resp = fhir.BundleEntry{Response: &fhir.BundleEntryResponse{
				Status:  statusLine(fe.Status),
				Outcome: fe.Outcome().AsResource(),
			}}
		}
		out.Entry = append(out.Entry, resp)
	}
	return out, nil
}

// apply executes one entry. Callers hold store.mu.
func (p *SystemProvider) apply(e fhir.BundleEntry) (fhir.BundleEntry, error) {
	if e.Request == nil {
		return fhir.BundleEntry{}, fhirservice.InvalidRequest("entry has no request")
	}
	rt, id, _ := strings.Cut(strings.Trim(e.Request.URL, "/"), "/")
	if rt == "" {
		return fhir.BundleEntry{}, fhirservice.InvalidRequest("entry request has no URL")
	}

	method := strings.ToUpper(e.Request.Method)
	if i, ok := entryInteractions[method]; ok {
		if err := p.allow(rt, i); err != nil {
			return fhir.BundleEntry{}, err
		}
	}
	switch method {
	case http.MethodGet:
		rec, err := p.store.lookup(rt, id)
		if err != nil {
			return fhir.BundleEntry{}, err
		}
		return entry(http.StatusOK, rec.current().Clone(), ""), nil
	case http.MethodPost:
		if e.Resource == nil || e.Resource.ResourceType() != rt {
			return fhir.BundleEntry{}, fhirservice.InvalidRequest("POST %s needs a %s resource", rt, rt)
		}
		out, _ := p.store.put(rt, p.store.id(), e.Resource)
		return entry(http.StatusCreated, out, location(out)), nil
	case http.MethodPut:
		if id == "" || e.Resource == nil || e.Resource.ResourceType() != rt {
			return fhir.BundleEntry{}, fhirservice.InvalidRequest("PUT needs [type]/[id] and a matching resource")
		}
		out, created := p.store.put(rt, id, e.Resource)
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		return entry(status, out, location(out)), nil
	case http.MethodDelete:
		if err := p.store.remove(rt, id); err != nil && !errors.Is(err, fhirservice.ErrResourceGone) {
			return fhir.BundleEntry{}, err
		}
		return fhir.BundleEntry{Response: &fhir.BundleEntryResponse{Status: statusLine(http.StatusNoContent)}}, nil
	}
	return fhir.BundleEntry{}, fhirservice.InvalidRequest("unsupported entry method %q", e.Request.Method)
}

var entryInteractions = map[string]fhir.TypeInteraction{
	http.MethodGet:    fhir.InteractionRead,
	http.MethodPost:   fhir.InteractionCreate,
	http.MethodPut:    fhir.InteractionUpdate,
	http.MethodDelete: fhir.InteractionDelete,
}

// allow maps an entry onto the provider bound for rt: unknown types are 404,
// undeclared interactions 405.
func (p *SystemProvider) allow(rt string, i fhir.TypeInteraction) error {
	rp, ok := p.providers[rt]
	if !ok {
		return &fhirservice.Error{
			Status:      http.StatusNotFound,
			Code:        fhir.IssueCodeNotFound,
			Diagnostics: fmt.Sprintf("unknown resource type %q", rt),
			Err:         fhirservice.ErrProviderNotFound,
		}
	}
	if !fhirservice.Declares(rp, i) {
		return fhirservice.NewError(http.StatusMethodNotAllowed, fhir.IssueCodeNotSupported,
			"%s does not support the %s interaction", rt, i)
	}
	return nil
}

func entry(status int, r fhir.Resource, loc string) fhir.BundleEntry {
	return fhir.BundleEntry{
		Resource: r,
		Response: &fhir.BundleEntryResponse{Status: statusLine(status), Location: loc},
	}
}

func location(r fhir.Resource) string {
	return r.ResourceType() + "/" + r.ID() + "/_history/" + r.VersionID()
}

func statusLine(code int) string {
	return strconv.Itoa(code) + " " + http.StatusText(code)
}
