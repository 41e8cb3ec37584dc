package restserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jamesagnew/continua-demo-fhir-server/fhir"
	"github.com/jamesagnew/continua-demo-fhir-server/fhirservice"
	"github.com/jamesagnew/continua-demo-fhir-server/paging"
)

// Paging request parameters.
const (
	paramGetPages       = "_getpages"
	paramGetPagesOffset = "_getpagesoffset"
	paramCount          = "_count"
	paramBundleType     = "_bundletype"
)

// pageable renders entries as a bundle. Sets larger than the requested page
// are stored with the paging controller and linked with _getpages URLs.
func (h *Handler) pageable(ctx context.Context, req *fhirservice.Request, bundleType, self string, entries []fhir.Resource) (*fhirservice.Response, error) {
	ctl := h.srv.Paging()
	lim := ctl.Limits()
	count, err := intParam(req.Params, paramCount)
	if err != nil {
		return nil, err
	}
	size := lim.DefaultPageSize
	if count > 0 {
		size = min(count, lim.MaxPageSize)
	}

	if len(entries) <= size {
		b := fhir.NewBundle(bundleType).WithTotal(len(entries))
		b.AddLink("self", self)
		b.Entry = h.entries(req, entries)
		return fhirservice.NewResponse(http.StatusOK, b), nil
	}

	tok, err := ctl.CreatePage(ctx, paging.ResultSet{
		BundleType: bundleType,
		SelfLink:   self,
		Entries:    entries,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("store result set: %w", err)
	}
	page, err := ctl.FetchPage(ctx, tok, 0, size)
	if err != nil {
		return nil, fmt.Errorf("fetch first page: %w", err)
	}
	return fhirservice.NewResponse(http.StatusOK, h.pageBundle(req, page, self)), nil
}

// getPage serves GET [base]?_getpages=<token>.
func (h *Handler) getPage(ctx context.Context, req *fhirservice.Request) (*fhirservice.Response, error) {
	tok := req.Params.Get(paramGetPages)
	if tok == "" {
		return nil, fhirservice.InvalidRequest("%s requires a token", paramGetPages)
	}
	offset, err := intParam(req.Params, paramGetPagesOffset)
	if err != nil {
		return nil, err
	}
	count, err := intParam(req.Params, paramCount)
	if err != nil {
		return nil, err
	}
	page, err := h.srv.Paging().FetchPage(ctx, paging.Token(tok), offset, count)
	if errors.Is(err, paging.ErrTokenNotFound) {
		return nil, &fhirservice.Error{
			Status:      http.StatusGone,
			Code:        fhir.IssueCodeNotFound,
			Diagnostics: fmt.Sprintf("search results for %s=%s have expired or never existed", paramGetPages, tok),
			Err:         err,
		}
	}
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	self := pageLink(req.BaseURL, page.Token, page.Start, page.Count, page.BundleType)
	return fhirservice.NewResponse(http.StatusOK, h.pageBundle(req, page, self)), nil
}

func (h *Handler) pageBundle(req *fhirservice.Request, page paging.Page, self string) *fhir.Bundle {
	b := fhir.NewBundle(page.BundleType).WithTotal(page.Total)
	b.AddLink("self", self)
	if page.HasNext() {
		b.AddLink("next", pageLink(req.BaseURL, page.Token, page.NextOffset(), page.Count, page.BundleType))
	}
	if page.HasPrevious() {
		b.AddLink("previous", pageLink(req.BaseURL, page.Token, page.PreviousOffset(), page.Count, page.BundleType))
	}
	b.Entry = h.entries(req, page.Entries)
	return b
}

func (h *Handler) entries(req *fhirservice.Request, rs []fhir.Resource) []fhir.BundleEntry {
	out := make([]fhir.BundleEntry, 0, len(rs))
	for _, r := range rs {
		e := fhir.BundleEntry{Resource: r}
		if rt, id := r.ResourceType(), r.ID(); rt != "" && id != "" {
			e.FullURL = h.srv.Policy().ResourceURL(req.HTTP, rt, id)
		}
		out = append(out, e)
	}
	return out
}

// pageLink renders a paging URL. Parameter order is fixed so links are
// stable across requests.
func pageLink(base string, tok paging.Token, offset, count int, bundleType string) string {
	return fmt.Sprintf("%s?%s=%s&%s=%d&%s=%d&%s=%s",
		base,
		paramGetPages, url.QueryEscape(string(tok)),
		paramGetPagesOffset, offset,
		paramCount, count,
		paramBundleType, url.QueryEscape(bundleType),
	)
}

// selfLink is the absolute URL of the request, rebased onto the canonical
// server address.
func (h *Handler) selfLink(req *fhirservice.Request) string {
	rest := strings.TrimPrefix(req.HTTP.URL.Path, h.mountPath)
	if rest == "/" {
		rest = ""
	}
	u := req.BaseURL + rest
	if q := req.HTTP.URL.RawQuery; q != "" {
		u += "?" + q
	}
	return u
}

func intParam(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fhirservice.InvalidRequest("%s must be a non-negative integer, got %q", name, v)
	}
	return n, nil
}
