// Package pagingtest holds the conformance suite every paging.Controller
// must pass.
package pagingtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jamesagnew/continua-demo-fhir-server/fhir"
	"github.com/jamesagnew/continua-demo-fhir-server/paging"
)

// ControllerFactory creates a new Controller with the given limits.
type ControllerFactory func(t *testing.T, limits paging.Limits) paging.Controller

// RunControllerTests runs the complete paging.Controller suite against the
// provided factory.
func RunControllerTests(t *testing.T, factory ControllerFactory) {
	t.Run("CreateAndFetch", func(t *testing.T) { testCreateAndFetch(t, factory) })
	t.Run("FIFOEviction", func(t *testing.T) { testFIFOEviction(t, factory) })
	t.Run("FetchDoesNotRefresh", func(t *testing.T) { testFetchDoesNotRefresh(t, factory) })
	t.Run("CountClampedToMax", func(t *testing.T) { testCountClampedToMax(t, factory) })
	t.Run("DefaultPageSize", func(t *testing.T) { testDefaultPageSize(t, factory) })
	t.Run("StartClamped", func(t *testing.T) { testStartClamped(t, factory) })
	t.Run("UnknownToken", func(t *testing.T) { testUnknownToken(t, factory) })
	t.Run("ConcurrentCreateAndFetch", func(t *testing.T) { testConcurrent(t, factory) })
}

func entries(prefix string, n int) []fhir.Resource {
	out := make([]fhir.Resource, n)
	for i := range out {
		out[i] = fhir.Resource{"resourceType": "Patient", "id": fmt.Sprintf("%s-%d", prefix, i)}
	}
	return out
}

func ctx(t *testing.T) context.Context {
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

func create(t *testing.T, c paging.Controller, prefix string, n int) paging.Token {
	t.Helper()
	tok, err := c.CreatePage(ctx(t), paging.ResultSet{BundleType: fhir.BundleTypeSearchset, SelfLink: "http://example/Patient", Entries: entries(prefix, n)})
	if err != nil {
		t.Fatalf("CreatePage: %v", err)
	}
	if tok == "" {
		t.Fatalf("expected non-empty token")
	}
	return tok
}

func testCreateAndFetch(t *testing.T, factory ControllerFactory) {
	c := factory(t, paging.Limits{Capacity: 10, MaxPageSize: 100, DefaultPageSize: 10})
	tok := create(t, c, "p", 25)

	p, err := c.FetchPage(ctx(t), tok, 10, 10)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if p.Total != 25 || p.Start != 10 || len(p.Entries) != 10 {
		t.Fatalf("page = total %d start %d len %d", p.Total, p.Start, len(p.Entries))
	}
	if got := p.Entries[0].ID(); got != "p-10" {
		t.Fatalf("first entry id = %s, want p-10", got)
	}
	if p.BundleType != fhir.BundleTypeSearchset || p.SelfLink != "http://example/Patient" {
		t.Fatalf("metadata lost: %+v", p)
	}
	if !p.HasNext() || !p.HasPrevious() {
		t.Fatalf("expected both next and previous")
	}
}

func testFIFOEviction(t *testing.T, factory ControllerFactory) {
	c := factory(t, paging.Limits{Capacity: 2, MaxPageSize: 10, DefaultPageSize: 10})
	p1 := create(t, c, "one", 1)
	p2 := create(t, c, "two", 1)
	p3 := create(t, c, "three", 1)

	if _, err := c.FetchPage(ctx(t), p1, 0, 1); !errors.Is(err, paging.ErrTokenNotFound) {
		t.Fatalf("P1 after P3: got %v, want ErrTokenNotFound", err)
	}
	for _, tok := range []paging.Token{p2, p3} {
		if _, err := c.FetchPage(ctx(t), tok, 0, 1); err != nil {
			t.Fatalf("fetch %s: %v", tok, err)
		}
	}
}

func testFetchDoesNotRefresh(t *testing.T, factory ControllerFactory) {
	c := factory(t, paging.Limits{Capacity: 2, MaxPageSize: 10, DefaultPageSize: 10})
	p1 := create(t, c, "one", 1)
	create(t, c, "two", 1)
	if _, err := c.FetchPage(ctx(t), p1, 0, 1); err != nil {
		t.Fatalf("fetch P1: %v", err)
	}
	create(t, c, "three", 1)
	if _, err := c.FetchPage(ctx(t), p1, 0, 1); !errors.Is(err, paging.ErrTokenNotFound) {
		t.Fatalf("P1 survived eviction after being read: %v", err)
	}
}

func testCountClampedToMax(t *testing.T, factory ControllerFactory) {
	c := factory(t, paging.Limits{Capacity: 2, MaxPageSize: 5, DefaultPageSize: 2})
	tok := create(t, c, "p", 20)
	p, err := c.FetchPage(ctx(t), tok, 0, 1000)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(p.Entries) != 5 || p.Count != 5 {
		t.Fatalf("got %d entries (count %d), want 5", len(p.Entries), p.Count)
	}
}

func testDefaultPageSize(t *testing.T, factory ControllerFactory) {
	c := factory(t, paging.Limits{Capacity: 2, MaxPageSize: 5, DefaultPageSize: 3})
	tok := create(t, c, "p", 20)
	p, err := c.FetchPage(ctx(t), tok, 0, 0)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(p.Entries) != 3 {
		t.Fatalf("got %d entries, want default 3", len(p.Entries))
	}
}

func testStartClamped(t *testing.T, factory ControllerFactory) {
	c := factory(t, paging.Limits{Capacity: 2, MaxPageSize: 5, DefaultPageSize: 5})
	tok := create(t, c, "p", 4)

	p, err := c.FetchPage(ctx(t), tok, -7, 2)
	if err != nil {
		t.Fatalf("FetchPage negative start: %v", err)
	}
	if p.Start != 0 || len(p.Entries) != 2 {
		t.Fatalf("negative start: start %d len %d", p.Start, len(p.Entries))
	}

	p, err = c.FetchPage(ctx(t), tok, 40, 2)
	if err != nil {
		t.Fatalf("FetchPage start past end: %v", err)
	}
	if p.Start != 4 || len(p.Entries) != 0 || p.HasNext() {
		t.Fatalf("past end: start %d len %d", p.Start, len(p.Entries))
	}
}

func testUnknownToken(t *testing.T, factory ControllerFactory) {
	c := factory(t, paging.Limits{Capacity: 2, MaxPageSize: 5, DefaultPageSize: 5})
	if _, err := c.FetchPage(ctx(t), "does-not-exist", 0, 1); !errors.Is(err, paging.ErrTokenNotFound) {
		t.Fatalf("got %v, want ErrTokenNotFound", err)
	}
}

func testConcurrent(t *testing.T, factory ControllerFactory) {
	c := factory(t, paging.Limits{Capacity: 8, MaxPageSize: 5, DefaultPageSize: 5})
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := c.CreatePage(ctx(t), paging.ResultSet{Entries: entries(fmt.Sprint(i), 3)})
			if err != nil {
				errs <- err
				return
			}
			// The set may already have been evicted by a concurrent create.
			if _, err := c.FetchPage(ctx(t), tok, 0, 3); err != nil && !errors.Is(err, paging.ErrTokenNotFound) {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent: %v", err)
	}
}
