// Package paging stores search results that are larger than one page so a
// client can walk them with follow-up requests.
//
// A Controller keeps at most Limits.Capacity result sets. When a new set
// would exceed that, the oldest-created set is evicted; reading a set never
// extends its life. Tokens for evicted sets report ErrTokenNotFound.
package paging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jamesagnew/continua-demo-fhir-server/fhir"
)

var (
	// ErrTokenNotFound is returned by FetchPage for unknown or evicted tokens.
	ErrTokenNotFound = errors.New("paging: result set not found or expired")
	// ErrInvalidLimits is returned by controller constructors.
	ErrInvalidLimits = errors.New("paging: invalid limits")
)

const (
	DefaultCapacity    = 100
	DefaultMaxPageSize = 5000
	DefaultPageSize    = 10
)

// Token identifies a stored result set.
type Token string

// Limits bounds a controller. All fields are fixed at construction.
type Limits struct {
	// Capacity is the number of result sets retained.
	Capacity int
	// MaxPageSize caps the count of any single page.
	MaxPageSize int
	// DefaultPageSize is used when a request gives no count.
	DefaultPageSize int
}

// DefaultLimits returns capacity 100, max page size 5000, default page 10.
func DefaultLimits() Limits {
	return Limits{Capacity: DefaultCapacity, MaxPageSize: DefaultMaxPageSize, DefaultPageSize: DefaultPageSize}
}

// Validate checks that all limits are positive and the default page size
// does not exceed the maximum.
func (l Limits) Validate() error {
	switch {
	case l.Capacity <= 0:
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidLimits, l.Capacity)
	case l.MaxPageSize <= 0:
		return fmt.Errorf("%w: max page size must be positive, got %d", ErrInvalidLimits, l.MaxPageSize)
	case l.DefaultPageSize <= 0:
		return fmt.Errorf("%w: default page size must be positive, got %d", ErrInvalidLimits, l.DefaultPageSize)
	case l.DefaultPageSize > l.MaxPageSize:
		return fmt.Errorf("%w: default page size %d exceeds max page size %d", ErrInvalidLimits, l.DefaultPageSize, l.MaxPageSize)
	}
	return nil
}

// Window clamps a requested slice of a result set of size total. The
// returned count never exceeds MaxPageSize and start lies in [0, total].
func (l Limits) Window(total, start, count int) (lo, hi int) {
	if count <= 0 {
		count = l.DefaultPageSize
	}
	if count > l.MaxPageSize {
		count = l.MaxPageSize
	}
	lo = min(max(start, 0), total)
	hi = min(lo+count, total)
	return lo, hi
}

// ResultSet is the full outcome of one search or history request.
type ResultSet struct {
	// BundleType is the Bundle.type pages are rendered as.
	BundleType string
	// SelfLink is the request URL that produced the set.
	SelfLink  string
	Entries   []fhir.Resource
	CreatedAt time.Time
}

// Total is the number of entries in the set.
func (rs *ResultSet) Total() int { return len(rs.Entries) }

// Page is one window onto a stored ResultSet.
type Page struct {
	Token      Token
	BundleType string
	SelfLink   string
	// Start is the offset of Entries[0] within the set.
	Start int
	// Count is the effective page size after clamping.
	Count   int
	Total   int
	Entries []fhir.Resource
}

// HasNext reports whether entries follow this page.
func (p Page) HasNext() bool { return p.Start+len(p.Entries) < p.Total }

// HasPrevious reports whether entries precede this page.
func (p Page) HasPrevious() bool { return p.Start > 0 }

// NextOffset is the start of the following page.
func (p Page) NextOffset() int { return p.Start + len(p.Entries) }

// PreviousOffset is the start of the preceding page.
func (p Page) PreviousOffset() int { return max(p.Start-p.Count, 0) }

// Controller stores result sets and serves pages from them. Implementations
// are safe for concurrent use.
type Controller interface {
	// CreatePage stores rs and returns its token, evicting the
	// oldest-created set when capacity would be exceeded.
	CreatePage(ctx context.Context, rs ResultSet) (Token, error)
	// FetchPage returns entries [start, start+count) of the set, clamped
	// by Limits.Window.
	FetchPage(ctx context.Context, tok Token, start, count int) (Page, error)
	Limits() Limits
	Close() error
}

// NewPage builds the Page for a window over rs. Controllers share it so
// clamping is identical across backends.
func NewPage(l Limits, tok Token, rs *ResultSet, start, count int) Page {
	lo, hi := l.Window(rs.Total(), start, count)
	entries := make([]fhir.Resource, hi-lo)
	copy(entries, rs.Entries[lo:hi])
	return WindowPage(l, tok, rs.BundleType, rs.SelfLink, rs.Total(), start, count, entries)
}

// WindowPage is NewPage for controllers that load only the window. entries
// must already be the l.Window(total, start, count) slice of the set.
func WindowPage(l Limits, tok Token, bundleType, selfLink string, total, start, count int, entries []fhir.Resource) Page {
	lo, _ := l.Window(total, start, count)
	eff := count
	if eff <= 0 {
		eff = l.DefaultPageSize
	}
	eff = min(eff, l.MaxPageSize)
	return Page{
		Token:      tok,
		BundleType: bundleType,
		SelfLink:   selfLink,
		Start:      lo,
		Count:      eff,
		Total:      total,
		Entries:    entries,
	}
}
