// Package memory provides the in-process paging.Controller. Result sets are
// kept in a fixed-capacity FIFO: the oldest-created set is dropped when a new
// one would exceed capacity, and fetching a page never refreshes a set.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/jamesagnew/continua-demo-fhir-server/paging"
)

// Controller implements paging.Controller in memory.
type Controller struct {
	limits paging.Limits
	log    *slog.Logger
	now    func() time.Time

	mu sync.RWMutex
	// Only Add and Peek are used, so recency is never updated and the
	// LRU's eviction order is creation order.
	sets *simplelru.LRU[paging.Token, *paging.ResultSet]
}

var _ paging.Controller = (*Controller)(nil)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger used for eviction events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// New returns a Controller bounded by limits.
func New(limits paging.Limits, opts ...Option) (*Controller, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{limits: limits, log: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(c)
	}
	sets, err := simplelru.NewLRU[paging.Token, *paging.ResultSet](limits.Capacity, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("paging store: %w", err)
	}
	c.sets = sets
	return c, nil
}

func (c *Controller) onEvict(tok paging.Token, rs *paging.ResultSet) {
	c.log.Debug("paging.evict", slog.String("token", string(tok)), slog.Int("total", rs.Total()))
}

func (c *Controller) CreatePage(ctx context.Context, rs paging.ResultSet) (paging.Token, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	stored := rs
	stored.Entries = append(stored.Entries[:0:0], rs.Entries...)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = c.now()
	}
	tok := paging.Token(uuid.NewString())

	c.mu.Lock()
	c.sets.Add(tok, &stored)
	c.mu.Unlock()
	return tok, nil
}

func (c *Controller) FetchPage(ctx context.Context, tok paging.Token, start, count int) (paging.Page, error) {
	if err := ctx.Err(); err != nil {
		return paging.Page{}, err
	}
	c.mu.RLock()
	rs, ok := c.sets.Peek(tok)
	c.mu.RUnlock()
	if !ok {
		return paging.Page{}, fmt.Errorf("%w: %s", paging.ErrTokenNotFound, tok)
	}
	return paging.NewPage(c.limits, tok, rs, start, count), nil
}

func (c *Controller) Limits() paging.Limits { return c.limits }

// Len reports the number of retained result sets.
func (c *Controller) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sets.Len()
}

// Close drops all retained result sets.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.sets.Purge()
	c.mu.Unlock()
	return nil
}
