package memory

import (
	"context"
	"testing"

	"github.com/jamesagnew/continua-demo-fhir-server/fhir"
	"github.com/jamesagnew/continua-demo-fhir-server/paging"
	"github.com/jamesagnew/continua-demo-fhir-server/paging/pagingtest"
	"pgregory.net/rapid"
)

func TestMemoryController(t *testing.T) {
	pagingtest.RunControllerTests(t, func(t *testing.T, limits paging.Limits) paging.Controller {
		c, err := New(limits)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		t.Cleanup(func() { _ = c.Close() })
		return c
	})
}

func TestNewRejectsInvalidLimits(t *testing.T) {
	if _, err := New(paging.Limits{}); err == nil {
		t.Fatal("expected error for zero limits")
	}
}

func TestPageNeverExceedsMax(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxSize := rapid.IntRange(1, 50).Draw(t, "max")
		total := rapid.IntRange(0, 200).Draw(t, "total")
		start := rapid.IntRange(-10, 250).Draw(t, "start")
		count := rapid.IntRange(-5, 500).Draw(t, "count")

		c, err := New(paging.Limits{Capacity: 4, MaxPageSize: maxSize, DefaultPageSize: 1})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		entries := make([]fhir.Resource, total)
		for i := range entries {
			entries[i] = fhir.Resource{"resourceType": "Patient", "id": string(rune('a' + i%26))}
		}
		tok, err := c.CreatePage(context.Background(), paging.ResultSet{Entries: entries})
		if err != nil {
			t.Fatalf("CreatePage: %v", err)
		}
		p, err := c.FetchPage(context.Background(), tok, start, count)
		if err != nil {
			t.Fatalf("FetchPage: %v", err)
		}
		if len(p.Entries) > maxSize {
			t.Fatalf("page of %d entries exceeds max %d", len(p.Entries), maxSize)
		}
		if p.Start < 0 || p.Start > total {
			t.Fatalf("start %d outside [0,%d]", p.Start, total)
		}
		if p.Start+len(p.Entries) > total {
			t.Fatalf("page overruns result set")
		}
	})
}

func TestCapacityIsNeverExceeded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 8).Draw(t, "capacity")
		n := rapid.IntRange(0, 30).Draw(t, "creates")

		c, err := New(paging.Limits{Capacity: capacity, MaxPageSize: 10, DefaultPageSize: 10})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		var toks []paging.Token
		for i := 0; i < n; i++ {
			tok, err := c.CreatePage(context.Background(), paging.ResultSet{})
			if err != nil {
				t.Fatalf("CreatePage: %v", err)
			}
			toks = append(toks, tok)
		}
		if c.Len() > capacity {
			t.Fatalf("len %d exceeds capacity %d", c.Len(), capacity)
		}
		// The newest min(n, capacity) tokens survive, everything older is gone.
		for i, tok := range toks {
			_, err := c.FetchPage(context.Background(), tok, 0, 1)
			alive := i >= n-capacity
			if alive != (err == nil) {
				t.Fatalf("token %d of %d: alive=%v err=%v", i, n, alive, err)
			}
		}
	})
}
