package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"

	"github.com/jamesagnew/continua-demo-fhir-server/fhir"
	"github.com/jamesagnew/continua-demo-fhir-server/fhirservice"
	"github.com/jamesagnew/continua-demo-fhir-server/interceptor"
	"github.com/jamesagnew/continua-demo-fhir-server/paging"
	"github.com/jamesagnew/continua-demo-fhir-server/paging/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type provider struct{ rt string }

func (p provider) ResourceType() string { return p.rt }
func (provider) Interactions() []fhir.TypeInteraction {
	return []fhir.TypeInteraction{fhir.InteractionRead, fhir.InteractionSearchType}
}
func (provider) Read(context.Context, *fhirservice.Request, string) (fhir.Resource, error) {
	return nil, fhirservice.ErrResourceNotFound
}
func (provider) Search(context.Context, *fhirservice.Request, url.Values) ([]fhir.Resource, error) {
	return nil, nil
}

type system struct{}

func (system) SystemInteractions() []fhir.SystemInteraction {
	return []fhir.SystemInteraction{fhir.InteractionTransaction}
}
func (system) Transaction(context.Context, *fhirservice.Request, *fhir.Bundle) (*fhir.Bundle, error) {
	return fhir.NewBundle(fhir.BundleTypeTransactionResponse), nil
}

type failingSource struct{ *Catalog }

func (failingSource) SystemProvider(string) (fhirservice.SystemProvider, bool, error) {
	return nil, false, errors.New("lookup exploded")
}

func catalog(v fhir.Version, types ...string) *Catalog {
	keys := v.Keys()
	c := NewCatalog()
	ps := make([]fhirservice.ResourceProvider, len(types))
	for i, t := range types {
		ps[i] = provider{rt: t}
	}
	c.AddResourceProviders(keys.ResourceProviders, ps...)
	c.SetSystemProvider(keys.SystemProvider, system{})
	return c
}

func TestInitialize_Success(t *testing.T) {
	cat := catalog(fhir.DSTU2, "Patient", "Observation")
	cat.AddInterceptors(fhir.InterceptorsKey, interceptor.Logging(nil))

	srv, err := Initialize(cat, DefaultConfig(fhir.DSTU2))
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	assert.Equal(t, fhir.DSTU2, srv.Version())
	assert.True(t, srv.Registry().Frozen())
	assert.True(t, srv.Interceptors().Frozen())
	assert.Equal(t, 1, srv.Interceptors().Len())
	assert.Equal(t, []string{"Patient", "Observation"}, srv.CapabilityStatement().ResourceTypes())
	assert.Equal(t, "Example Server", srv.Metadata().Description)
	assert.Equal(t, "http://continua.cloudapp.net/baseDstu2", srv.CapabilityStatement().Implementation.URL)
	assert.Equal(t, paging.DefaultLimits(), srv.Paging().Limits())
	assert.True(t, srv.Policy().Config().BrowserFriendlyContentTypes)
	assert.False(t, srv.GeneratedAt().IsZero())

	// The frozen registry refuses late bindings.
	assert.ErrorIs(t, srv.Registry().Register(provider{rt: "Device"}), fhirservice.ErrRegistryFrozen)
}

func TestInitialize_KeysFollowVersion(t *testing.T) {
	cat := catalog(fhir.DSTU2, "Patient")
	_, err := Initialize(cat, DefaultConfig(fhir.R4))
	assert.ErrorIs(t, err, ErrMissingProviderSet)

	cat.AddResourceProviders(fhir.R4.Keys().ResourceProviders, provider{rt: "Patient"})
	_, err = Initialize(cat, DefaultConfig(fhir.R4))
	assert.ErrorIs(t, err, ErrMissingSystemProvider, "the DSTU2 system provider must not satisfy R4")
}

func TestInitialize_Failures(t *testing.T) {
	keys := fhir.DSTU2.Keys()
	tests := []struct {
		name     string
		src      func() DiscoverySource
		cfg      func(*Config)
		opts     []Option
		wantKind error
		wantStep Step
		wantErr  error
	}{
		{
			name:     "invalid version",
			src:      func() DiscoverySource { return catalog(fhir.DSTU2, "Patient") },
			cfg:      func(c *Config) { c.Version = 0 },
			wantKind: ErrDependencyFailure,
			wantStep: StepVersion,
			wantErr:  ErrInvalidVersion,
		},
		{
			name: "missing provider set",
			src: func() DiscoverySource {
				return NewCatalog().SetSystemProvider(keys.SystemProvider, system{})
			},
			wantKind: ErrMissingProviderSet,
			wantStep: StepResourceProviders,
		},
		{
			name:     "missing system provider",
			src:      func() DiscoverySource { return NewCatalog().AddResourceProviders(keys.ResourceProviders) },
			wantKind: ErrMissingSystemProvider,
			wantStep: StepSystemProvider,
		},
		{
			name:     "nil system provider",
			src:      func() DiscoverySource { return catalog(fhir.DSTU2).SetSystemProvider(keys.SystemProvider, nil) },
			wantKind: ErrMissingSystemProvider,
			wantStep: StepSystemProvider,
		},
		{
			name:     "lookup error",
			src:      func() DiscoverySource { return failingSource{catalog(fhir.DSTU2, "Patient")} },
			wantKind: ErrDependencyFailure,
			wantStep: StepSystemProvider,
		},
		{
			name:     "duplicate binding",
			src:      func() DiscoverySource { return catalog(fhir.DSTU2, "Patient", "Patient") },
			wantKind: fhirservice.ErrDuplicateBinding,
			wantStep: StepResourceProviders,
		},
		{
			name:     "bad base address",
			src:      func() DiscoverySource { return catalog(fhir.DSTU2, "Patient") },
			cfg:      func(c *Config) { c.Policy.CanonicalBaseAddress = "::nope" },
			wantKind: ErrDependencyFailure,
			wantStep: StepPolicy,
		},
		{
			name:     "bad paging limits",
			src:      func() DiscoverySource { return catalog(fhir.DSTU2, "Patient") },
			cfg:      func(c *Config) { c.Paging.Capacity = 0 },
			wantKind: ErrDependencyFailure,
			wantStep: StepPaging,
			wantErr:  paging.ErrInvalidLimits,
		},
		{
			name:     "not an interceptor",
			src:      func() DiscoverySource { return catalog(fhir.DSTU2, "Patient").AddInterceptors(keys.Interceptors, 42) },
			wantKind: ErrDependencyFailure,
			wantStep: StepInterceptors,
			wantErr:  interceptor.ErrNotInterceptor,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(fhir.DSTU2)
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			srv, err := Initialize(tt.src(), cfg, tt.opts...)
			require.Error(t, err)
			assert.Nil(t, srv)

			var be *Error
			require.ErrorAs(t, err, &be)
			assert.Equal(t, tt.wantStep, be.Step)
			assert.ErrorIs(t, err, tt.wantKind)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestInitialize_CapabilityInconsistency(t *testing.T) {
	keys := fhir.DSTU2.Keys()
	cat := NewCatalog().
		AddResourceProviders(keys.ResourceProviders, provider{rt: "Patient"}).
		SetSystemProvider(keys.SystemProvider, undeclaredSystem{})
	_, err := Initialize(cat, DefaultConfig(fhir.DSTU2))
	assert.ErrorIs(t, err, fhirservice.ErrCapabilityInconsistency)
	var ce *fhirservice.CapabilityError
	assert.ErrorAs(t, err, &ce)
}

// undeclaredSystem advertises batch without a Batcher.
type undeclaredSystem struct{}

func (undeclaredSystem) SystemInteractions() []fhir.SystemInteraction {
	return []fhir.SystemInteraction{fhir.InteractionBatch}
}

func TestInitialize_InjectedPagingIsNotClosed(t *testing.T) {
	c, err := memory.New(paging.Limits{Capacity: 3, MaxPageSize: 7, DefaultPageSize: 2})
	require.NoError(t, err)
	srv, err := Initialize(catalog(fhir.DSTU2, "Patient"), DefaultConfig(fhir.DSTU2), WithPagingController(c))
	require.NoError(t, err)
	assert.Same(t, c, srv.Paging())

	tok, err := c.CreatePage(context.Background(), paging.ResultSet{Entries: []fhir.Resource{{"id": "1"}}})
	require.NoError(t, err)
	require.NoError(t, srv.Close())
	_, err = c.FetchPage(context.Background(), tok, 0, 1)
	assert.NoError(t, err)
}

func TestInitialize_InterceptorOrder(t *testing.T) {
	var order []string
	mk := func(name string) interceptor.PreHandlerFunc {
		return func(ctx context.Context, req *fhirservice.Request) (*fhirservice.Response, error) {
			order = append(order, name)
			return nil, nil
		}
	}
	cat := catalog(fhir.DSTU2, "Patient").AddInterceptors(fhir.InterceptorsKey, mk("first"), mk("second"), mk("third"))
	srv, err := Initialize(cat, DefaultConfig(fhir.DSTU2))
	require.NoError(t, err)
	_, err = srv.Interceptors().InvokePre(context.Background(), &fhirservice.Request{})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

var resourceTypePool = []string{"Patient", "Observation", "Device", "DeviceMetric", "Encounter", "Practitioner", "Organization", "Questionnaire", "QuestionnaireResponse", "DiagnosticReport"}

func TestStatementListsExactlyBoundTypes(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.SampledFrom(fhir.AllVersions).Draw(t, "version")
		types := rapid.SliceOfNDistinct(rapid.SampledFrom(resourceTypePool), 0, 6, rapid.ID[string]).Draw(t, "types")

		srv, err := Initialize(catalog(v, types...), DefaultConfig(v))
		if err != nil {
			t.Fatalf("Initialize: %v", err)
		}
		defer srv.Close()

		cs := srv.CapabilityStatement()
		got := cs.ResourceTypes()
		if len(got) != len(types) {
			t.Fatalf("statement lists %v, bound %v", got, types)
		}
		for i := range types {
			if got[i] != types[i] {
				t.Fatalf("statement lists %v, bound %v", got, types)
			}
		}
		sys := cs.Rest[0].Interaction
		if len(sys) != 1 || sys[0].Code != fhir.InteractionTransaction {
			t.Fatalf("system interactions = %+v", sys)
		}
	})
}

func TestStatementIsDeterministic(t *testing.T) {
	build := func() []byte {
		srv, err := Initialize(catalog(fhir.DSTU2, "Patient", "Device", "Observation"), DefaultConfig(fhir.DSTU2))
		require.NoError(t, err)
		defer srv.Close()
		b, err := json.Marshal(srv.CapabilityStatement())
		require.NoError(t, err)
		return b
	}
	assert.JSONEq(t, string(build()), string(build()))
	assert.Equal(t, build(), build())
}
