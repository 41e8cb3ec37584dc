package interceptor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jamesagnew/continua-demo-fhir-server/fhirservice"
)

var (
	// ErrNotInterceptor is returned by Register for values implementing no hook.
	ErrNotInterceptor = errors.New("interceptor: value implements no hook interface")
	// ErrChainFrozen is returned by Register once the chain is frozen.
	ErrChainFrozen = errors.New("interceptor: chain is frozen")
)

// PreHandler runs before the provider.
type PreHandler interface {
	PreHandle(ctx context.Context, req *fhirservice.Request) (*fhirservice.Response, error)
}

// PostHandler runs after the provider produced resp.
type PostHandler interface {
	PostHandle(ctx context.Context, req *fhirservice.Request, resp *fhirservice.Response) (*fhirservice.Response, error)
}

// PreResponder runs before resp is written.
type PreResponder interface {
	PreRespond(ctx context.Context, req *fhirservice.Request, resp *fhirservice.Response) (*fhirservice.Response, error)
}

// PreHandlerFunc adapts a function to PreHandler.
type PreHandlerFunc func(ctx context.Context, req *fhirservice.Request) (*fhirservice.Response, error)

func (f PreHandlerFunc) PreHandle(ctx context.Context, req *fhirservice.Request) (*fhirservice.Response, error) {
	return f(ctx, req)
}

// PostHandlerFunc adapts a function to PostHandler.
type PostHandlerFunc func(ctx context.Context, req *fhirservice.Request, resp *fhirservice.Response) (*fhirservice.Response, error)

func (f PostHandlerFunc) PostHandle(ctx context.Context, req *fhirservice.Request, resp *fhirservice.Response) (*fhirservice.Response, error) {
	return f(ctx, req, resp)
}

// PreResponderFunc adapts a function to PreResponder.
type PreResponderFunc func(ctx context.Context, req *fhirservice.Request, resp *fhirservice.Response) (*fhirservice.Response, error)

func (f PreResponderFunc) PreRespond(ctx context.Context, req *fhirservice.Request, resp *fhirservice.Response) (*fhirservice.Response, error) {
	return f(ctx, req, resp)
}

// Chain is an ordered list of interceptors.
type Chain struct {
	mu     sync.RWMutex
	frozen bool
	all    []any
	pre    []PreHandler
	post   []PostHandler
	resp   []PreResponder
}

// NewChain returns an empty chain.
func NewChain() *Chain { return &Chain{} }

// Register appends i. Registering the same value twice invokes it twice.
func (c *Chain) Register(i any) error {
	pre, isPre := i.(PreHandler)
	post, isPost := i.(PostHandler)
	resp, isResp := i.(PreResponder)
	if i == nil || (!isPre && !isPost && !isResp) {
		return fmt.Errorf("%w: %T", ErrNotInterceptor, i)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return fmt.Errorf("%w: cannot register %T", ErrChainFrozen, i)
	}
	c.all = append(c.all, i)
	if isPre {
		c.pre = append(c.pre, pre)
	}
	if isPost {
		c.post = append(c.post, post)
	}
	if isResp {
		c.resp = append(c.resp, resp)
	}
	return nil
}

// Freeze makes the chain read-only.
func (c *Chain) Freeze() {
	c.mu.Lock()
	c.frozen = true
	c.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (c *Chain) Frozen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frozen
}

// Len returns the number of registered interceptors.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.all)
}

// Interceptors returns the registered values in order.
func (c *Chain) Interceptors() []any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]any(nil), c.all...)
}

func (c *Chain) snapshot() (pre []PreHandler, post []PostHandler, resp []PreResponder) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pre, c.post, c.resp
}

// InvokePre runs the pre-handle phase. A non-nil response means a hook
// aborted the request.
func (c *Chain) InvokePre(ctx context.Context, req *fhirservice.Request) (*fhirservice.Response, error) {
	pre, _, _ := c.snapshot()
	for _, h := range pre {
		resp, err := h.PreHandle(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("pre-handle %T: %w", h, err)
		}
		if resp != nil {
			return resp, nil
		}
	}
	return nil, nil
}

// InvokePost runs the post-handle phase and returns the response to use.
func (c *Chain) InvokePost(ctx context.Context, req *fhirservice.Request, resp *fhirservice.Response) (*fhirservice.Response, error) {
	_, post, _ := c.snapshot()
	for _, h := range post {
		out, err := h.PostHandle(ctx, req, resp)
		if err != nil {
			return resp, fmt.Errorf("post-handle %T: %w", h, err)
		}
		if out != nil {
			return out, nil
		}
	}
	return resp, nil
}

// InvokePreResponse runs the pre-respond phase and returns the response to
// write.
func (c *Chain) InvokePreResponse(ctx context.Context, req *fhirservice.Request, resp *fhirservice.Response) (*fhirservice.Response, error) {
	_, _, hooks := c.snapshot()
	for _, h := range hooks {
		out, err := h.PreRespond(ctx, req, resp)
		if err != nil {
			return resp, fmt.Errorf("pre-respond %T: %w", h, err)
		}
		if out != nil {
			return out, nil
		}
	}
	return resp, nil
}
