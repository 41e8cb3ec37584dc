package restserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/elnormous/contenttype"
	"go.opentelemetry.io/otel/trace"

	"github.com/jamesagnew/continua-demo-fhir-server/fhir"
	"github.com/jamesagnew/continua-demo-fhir-server/fhirservice"
)

var bodyMediaTypes = []contenttype.MediaType{
	contenttype.NewMediaType("application/fhir+json"),
	contenttype.NewMediaType("application/json+fhir"),
	contenttype.NewMediaType("application/json"),
}

var formMediaType = contenttype.NewMediaType("application/x-www-form-urlencoded")

func (h *Handler) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, fhirservice.InteractionCapabilities, func(ctx context.Context, req *fhirservice.Request) (*fhirservice.Response, error) {
		st := h.srv.CapabilityStatement()
		return fhirservice.NewResponse(http.StatusOK, &st), nil
	})
}

// handleRoot serves paging requests and system-level search.
func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Has("_getpages") {
		h.serve(w, r, fhirservice.InteractionGetPage, h.getPage)
		return
	}
	h.serve(w, r, string(fhir.InteractionSearchSystem), func(ctx context.Context, req *fhirservice.Request) (*fhirservice.Response, error) {
		s, err := systemHandler[fhirservice.SystemSearcher](h, fhir.InteractionSearchSystem)
		if err != nil {
			return nil, err
		}
		out, err := s.SearchAll(ctx, req, req.Params)
		if err != nil {
			return nil, err
		}
		return h.pageable(ctx, req, fhir.BundleTypeSearchset, h.selfLink(req), out)
	})
}

// handleBundle dispatches POST [base] to transaction or batch by Bundle.type.
// The body is only read once the pre-handle phase has passed; until then the
// request counts as a transaction.
func (h *Handler) handleBundle(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, string(fhir.InteractionTransaction), func(ctx context.Context, req *fhirservice.Request) (*fhirservice.Response, error) {
		in, err := decodeBundle(req.HTTP)
		if err != nil {
			return nil, err
		}
		if in.Type == fhir.BundleTypeBatch {
			req.Interaction = string(fhir.InteractionBatch)
			trace.SpanFromContext(ctx).SetName("fhir." + req.Interaction)
			b, err := systemHandler[fhirservice.Batcher](h, fhir.InteractionBatch)
			if err != nil {
				return nil, err
			}
			out, err := b.Batch(ctx, req, in)
			if err != nil {
				return nil, err
			}
			return fhirservice.NewResponse(http.StatusOK, out), nil
		}
		t, err := systemHandler[fhirservice.Transactor](h, fhir.InteractionTransaction)
		if err != nil {
			return nil, err
		}
		out, err := t.Transaction(ctx, req, in)
		if err != nil {
			return nil, err
		}
		return fhirservice.NewResponse(http.StatusOK, out), nil
	})
}

func decodeBundle(r *http.Request) (*fhir.Bundle, error) {
	raw, err := readBody(r)
	if err != nil {
		return nil, err
	}
	var in fhir.Bundle
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fhirservice.InvalidRequest("invalid Bundle: %v", err)
	}
	switch {
	case in.ResourceType != "Bundle":
		return nil, fhirservice.InvalidRequest("expected a Bundle, got %q", in.ResourceType)
	case in.Type != fhir.BundleTypeTransaction && in.Type != fhir.BundleTypeBatch:
		return nil, fhirservice.InvalidRequest("Bundle.type must be %q or %q, got %q", fhir.BundleTypeTransaction, fhir.BundleTypeBatch, in.Type)
	}
	return &in, nil
}

func (h *Handler) handleSystemHistory(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, string(fhir.InteractionHistorySystem), func(ctx context.Context, req *fhirservice.Request) (*fhirservice.Response, error) {
		s, err := systemHandler[fhirservice.SystemHistoryReader](h, fhir.InteractionHistorySystem)
		if err != nil {
			return nil, err
		}
		out, err := s.SystemHistory(ctx, req)
		if err != nil {
			return nil, err
		}
		return h.pageable(ctx, req, fhir.BundleTypeHistory, h.selfLink(req), out)
	})
}

func (h *Handler) handleRead(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, string(fhir.InteractionRead), func(ctx context.Context, req *fhirservice.Request) (*fhirservice.Response, error) {
		p, err := handlerFor[fhirservice.Reader](h, req, fhir.InteractionRead)
		if err != nil {
			return nil, err
		}
		res, err := p.Read(ctx, req, req.ID)
		if err != nil {
			return nil, err
		}
		return resourceResponse(http.StatusOK, res), nil
	})
}

func (h *Handler) handleVRead(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, string(fhir.InteractionVRead), func(ctx context.Context, req *fhirservice.Request) (*fhirservice.Response, error) {
		p, err := handlerFor[fhirservice.VersionReader](h, req, fhir.InteractionVRead)
		if err != nil {
			return nil, err
		}
		res, err := p.VRead(ctx, req, req.ID, req.VersionID)
		if err != nil {
			return nil, err
		}
		return resourceResponse(http.StatusOK, res), nil
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, string(fhir.InteractionCreate), func(ctx context.Context, req *fhirservice.Request) (*fhirservice.Response, error) {
		p, err := handlerFor[fhirservice.Creator](h, req, fhir.InteractionCreate)
		if err != nil {
			return nil, err
		}
		res, err := decodeResource(req)
		if err != nil {
			return nil, err
		}
		out, err := p.Create(ctx, req, res)
		if err != nil {
			return nil, err
		}
		resp := resourceResponse(http.StatusCreated, out)
		resp.Header.Set("Location", h.versionURL(req, out))
		return resp, nil
	})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, string(fhir.InteractionUpdate), func(ctx context.Context, req *fhirservice.Request) (*fhirservice.Response, error) {
		p, err := handlerFor[fhirservice.Updater](h, req, fhir.InteractionUpdate)
		if err != nil {
			return nil, err
		}
		res, err := decodeResource(req)
		if err != nil {
			return nil, err
		}
		switch id := res.ID(); {
		case id == "":
			res["id"] = req.ID
		case id != req.ID:
			return nil, fhirservice.InvalidRequest("resource id %q does not match URL id %q", id, req.ID)
		}
		out, created, err := p.Update(ctx, req, req.ID, res)
		if err != nil {
			return nil, err
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		resp := resourceResponse(status, out)
		resp.Header.Set("Location", h.versionURL(req, out))
		return resp, nil
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, string(fhir.InteractionDelete), func(ctx context.Context, req *fhirservice.Request) (*fhirservice.Response, error) {
		p, err := handlerFor[fhirservice.Deleter](h, req, fhir.InteractionDelete)
		if err != nil {
			return nil, err
		}
		if err := p.Delete(ctx, req, req.ID); err != nil {
			return nil, err
		}
		return fhirservice.NewResponse(http.StatusNoContent, nil), nil
	})
}

// handleSearch serves GET [type] and POST [type]/_search. Form parameters of
// the POST form are merged with the query string.
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, string(fhir.InteractionSearchType), func(ctx context.Context, req *fhirservice.Request) (*fhirservice.Response, error) {
		p, err := handlerFor[fhirservice.Searcher](h, req, fhir.InteractionSearchType)
		if err != nil {
			return nil, err
		}
		self := h.selfLink(req)
		if req.HTTP.Method == http.MethodPost {
			if ct := req.HTTP.Header.Get("Content-Type"); ct != "" {
				mt, err := contenttype.GetMediaType(req.HTTP)
				if err != nil || !mt.Matches(formMediaType) {
					return nil, fhirservice.NewError(http.StatusUnsupportedMediaType, fhir.IssueCodeNotSupported,
						"_search expects %s, got %q", formMediaType.String(), ct)
				}
			}
			if err := req.HTTP.ParseForm(); err != nil {
				return nil, fhirservice.InvalidRequest("invalid search form: %v", err)
			}
			req.Params = req.HTTP.Form
			self = req.BaseURL + "/" + req.ResourceType
			if len(req.Params) > 0 {
				self += "?" + req.Params.Encode()
			}
		}
		out, err := p.Search(ctx, req, req.Params)
		if err != nil {
			return nil, err
		}
		return h.pageable(ctx, req, fhir.BundleTypeSearchset, self, out)
	})
}

func (h *Handler) handleInstanceHistory(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, string(fhir.InteractionHistoryInstance), func(ctx context.Context, req *fhirservice.Request) (*fhirservice.Response, error) {
		p, err := handlerFor[fhirservice.InstanceHistoryReader](h, req, fhir.InteractionHistoryInstance)
		if err != nil {
			return nil, err
		}
		out, err := p.InstanceHistory(ctx, req, req.ID)
		if err != nil {
			return nil, err
		}
		return h.pageable(ctx, req, fhir.BundleTypeHistory, h.selfLink(req), out)
	})
}

func (h *Handler) handleTypeHistory(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, string(fhir.InteractionHistoryType), func(ctx context.Context, req *fhirservice.Request) (*fhirservice.Response, error) {
		p, err := handlerFor[fhirservice.TypeHistoryReader](h, req, fhir.InteractionHistoryType)
		if err != nil {
			return nil, err
		}
		out, err := p.TypeHistory(ctx, req)
		if err != nil {
			return nil, err
		}
		return h.pageable(ctx, req, fhir.BundleTypeHistory, h.selfLink(req), out)
	})
}

// handlerFor resolves the provider bound to req.ResourceType and returns it
// as the handler interface T backing interaction i. Unknown types are 404,
// undeclared interactions 405.
func handlerFor[T any](h *Handler, req *fhirservice.Request, i fhir.TypeInteraction) (T, error) {
	var zero T
	p, err := h.srv.Registry().Lookup(req.ResourceType)
	if err != nil {
		return zero, &fhirservice.Error{
			Status:      http.StatusNotFound,
			Code:        fhir.IssueCodeNotFound,
			Diagnostics: fmt.Sprintf("unknown resource type %q; this server knows %v", req.ResourceType, h.srv.Registry().ResourceTypes()),
			Err:         err,
		}
	}
	t, ok := p.(T)
	if !ok || !fhirservice.Declares(p, i) {
		return zero, fhirservice.NewError(http.StatusMethodNotAllowed, fhir.IssueCodeNotSupported,
			"%s does not support the %s interaction", req.ResourceType, i)
	}
	return t, nil
}

// systemHandler is handlerFor for system-level interactions.
func systemHandler[T any](h *Handler, i fhir.SystemInteraction) (T, error) {
	var zero T
	sp := h.srv.SystemProvider()
	t, ok := sp.(T)
	if !ok || !fhirservice.DeclaresSystem(sp, i) {
		return zero, fhirservice.NewError(http.StatusMethodNotAllowed, fhir.IssueCodeNotSupported,
			"this server does not support the %s interaction", i)
	}
	return t, nil
}

// readBody reads a JSON request body, checking its declared content type.
// A missing Content-Type is read as JSON.
func readBody(r *http.Request) ([]byte, error) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, err := contenttype.GetMediaType(r)
		if err != nil || !matchesAny(mt, bodyMediaTypes) {
			return nil, fhirservice.NewError(http.StatusUnsupportedMediaType, fhir.IssueCodeNotSupported,
				"unsupported request content type %q", ct)
		}
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fhirservice.NewError(http.StatusRequestEntityTooLarge, fhir.IssueCodeInvalid,
				"request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, fhirservice.InvalidRequest("reading request body: %v", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fhirservice.InvalidRequest("request body is empty")
	}
	return raw, nil
}

// decodeResource reads the request body as a resource of req.ResourceType.
func decodeResource(req *fhirservice.Request) (fhir.Resource, error) {
	raw, err := readBody(req.HTTP)
	if err != nil {
		return nil, err
	}
	res, err := fhir.DecodeResource(raw)
	if err != nil {
		return nil, fhirservice.InvalidRequest("%v", err)
	}
	if rt := res.ResourceType(); rt != req.ResourceType {
		return nil, fhirservice.InvalidRequest("resource type %q does not match endpoint %s", rt, req.ResourceType)
	}
	return res, nil
}

func matchesAny(mt contenttype.MediaType, candidates []contenttype.MediaType) bool {
	for _, c := range candidates {
		if mt.Matches(c) {
			return true
		}
	}
	return false
}

// resourceResponse wraps a single resource with its version headers.
func resourceResponse(status int, res fhir.Resource) *fhirservice.Response {
	resp := fhirservice.NewResponse(status, res)
	if vid := res.VersionID(); vid != "" {
		resp.Header.Set("ETag", `W/"`+vid+`"`)
	}
	if meta, ok := res["meta"].(map[string]any); ok {
		if s, ok := meta["lastUpdated"].(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				resp.Header.Set("Last-Modified", t.UTC().Format(http.TimeFormat))
			}
		}
	}
	return resp
}

// versionURL is the absolute URL of the version of res just written.
func (h *Handler) versionURL(req *fhirservice.Request, res fhir.Resource) string {
	u := h.srv.Policy().ResourceURL(req.HTTP, req.ResourceType, res.ID())
	if vid := res.VersionID(); vid != "" {
		u += "/_history/" + url.PathEscape(vid)
	}
	return u
}
