package interceptor

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/jamesagnew/continua-demo-fhir-server/fhirservice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type recorder struct {
	name  string
	calls *[]string
	abort bool
}

func (r *recorder) PreHandle(ctx context.Context, req *fhirservice.Request) (*fhirservice.Response, error) {
	*r.calls = append(*r.calls, r.name)
	if r.abort {
		return fhirservice.NewResponse(http.StatusTeapot, r.name), nil
	}
	return nil, nil
}

func TestChain_AbortSkipsLaterHooks(t *testing.T) {
	var calls []string
	c := NewChain()
	require.NoError(t, c.Register(&recorder{name: "A", calls: &calls}))
	require.NoError(t, c.Register(&recorder{name: "B", calls: &calls, abort: true}))
	require.NoError(t, c.Register(&recorder{name: "C", calls: &calls}))

	resp, err := c.InvokePre(context.Background(), &fhirservice.Request{})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "B", resp.Body)
	assert.Equal(t, []string{"A", "B"}, calls)
}

func TestChain_AbortProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(t, "n")
		abortAt := rapid.IntRange(-1, n-1).Draw(t, "abortAt")

		var calls []string
		c := NewChain()
		for i := 0; i < n; i++ {
			if err := c.Register(&recorder{name: string(rune('a' + i)), calls: &calls, abort: i == abortAt}); err != nil {
				t.Fatalf("register: %v", err)
			}
		}
		resp, err := c.InvokePre(context.Background(), &fhirservice.Request{})
		if err != nil {
			t.Fatalf("invoke: %v", err)
		}
		if abortAt < 0 {
			if resp != nil || len(calls) != n {
				t.Fatalf("no abort: resp=%v calls=%v", resp, calls)
			}
			return
		}
		if len(calls) != abortAt+1 {
			t.Fatalf("hooks after the aborting one ran: %v", calls)
		}
		if resp == nil || resp.Body != string(rune('a'+abortAt)) {
			t.Fatalf("response not from aborting hook: %+v", resp)
		}
	})
}

func TestChain_SameInstanceTwice(t *testing.T) {
	var calls []string
	r := &recorder{name: "A", calls: &calls}
	c := NewChain()
	require.NoError(t, c.Register(r))
	require.NoError(t, c.Register(r))
	_, err := c.InvokePre(context.Background(), &fhirservice.Request{})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "A"}, calls)
	assert.Equal(t, 2, c.Len())
}

func TestChain_RegisterRejects(t *testing.T) {
	c := NewChain()
	assert.ErrorIs(t, c.Register("not a hook"), ErrNotInterceptor)
	assert.ErrorIs(t, c.Register(nil), ErrNotInterceptor)

	c.Freeze()
	assert.True(t, c.Frozen())
	assert.ErrorIs(t, c.Register(Logging(nil)), ErrChainFrozen)
	assert.Equal(t, 0, c.Len())
}

func TestChain_PhaseErrorsStop(t *testing.T) {
	boom := errors.New("boom")
	ran := false
	c := NewChain()
	require.NoError(t, c.Register(PostHandlerFunc(func(ctx context.Context, req *fhirservice.Request, resp *fhirservice.Response) (*fhirservice.Response, error) {
		return nil, boom
	})))
	require.NoError(t, c.Register(PostHandlerFunc(func(ctx context.Context, req *fhirservice.Request, resp *fhirservice.Response) (*fhirservice.Response, error) {
		ran = true
		return nil, nil
	})))
	in := fhirservice.NewResponse(http.StatusOK, nil)
	out, err := c.InvokePost(context.Background(), &fhirservice.Request{}, in)
	assert.ErrorIs(t, err, boom)
	assert.Same(t, in, out)
	assert.False(t, ran)
}

func TestChain_PreResponseReplaces(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.Register(PreResponderFunc(func(ctx context.Context, req *fhirservice.Request, resp *fhirservice.Response) (*fhirservice.Response, error) {
		resp.Header.Set("X-Powered-By", "continua")
		return nil, nil
	})))
	require.NoError(t, c.Register(PreResponderFunc(func(ctx context.Context, req *fhirservice.Request, resp *fhirservice.Response) (*fhirservice.Response, error) {
		return fhirservice.NewResponse(http.StatusAccepted, nil), nil
	})))
	in := fhirservice.NewResponse(http.StatusOK, nil)
	out, err := c.InvokePreResponse(context.Background(), &fhirservice.Request{}, in)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, out.Status)
	assert.Equal(t, "continua", in.Header.Get("X-Powered-By"))
}

func TestChain_HookPhasesIndependent(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.Register(Logging(nil)))
	resp, err := c.InvokePre(context.Background(), &fhirservice.Request{})
	require.NoError(t, err)
	assert.Nil(t, resp)
	out, err := c.InvokePost(context.Background(), &fhirservice.Request{}, fhirservice.NewResponse(200, nil))
	require.NoError(t, err)
	assert.Equal(t, 200, out.Status)
}
