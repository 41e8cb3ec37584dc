package restserver_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesagnew/continua-demo-fhir-server/bootstrap"
	"github.com/jamesagnew/continua-demo-fhir-server/fhir"
	"github.com/jamesagnew/continua-demo-fhir-server/providers/memory"
	"github.com/jamesagnew/continua-demo-fhir-server/restserver"
)

func handlerFor(t *testing.T, types ...string) *restserver.Handler {
	t.Helper()
	h, err := restserver.New(serverFor(t, types...))
	require.NoError(t, err)
	return h
}

// serverFor bootstraps an R4 server mounted at the root.
func serverFor(t *testing.T, types ...string) *bootstrap.Server {
	t.Helper()
	store := memory.NewStore()
	keys := fhir.R4.Keys()
	rps := memory.ResourceProviders(store, types...)
	cat := bootstrap.NewCatalog().
		AddResourceProviders(keys.ResourceProviders, rps...).
		SetSystemProvider(keys.SystemProvider, memory.NewSystemProvider(store, rps...))
	cfg := bootstrap.DefaultConfig(fhir.R4)
	cfg.Policy.MountPath = ""
	srv, err := bootstrap.Initialize(cat, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func TestSwappable(t *testing.T) {
	first := handlerFor(t, "Patient")
	second := handlerFor(t, "Patient", "Observation")
	s := restserver.NewSwappable(first)

	types := func() []string {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metadata", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var st fhir.CapabilityStatement
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
		assert.Equal(t, "CapabilityStatement", st.ResourceType)
		return st.ResourceTypes()
	}

	assert.Equal(t, []string{"Patient"}, types())
	old := s.Swap(second)
	assert.Same(t, first, old)
	assert.Same(t, second, s.Current())
	assert.Equal(t, []string{"Patient", "Observation"}, types())
}

func TestSwappableEmpty(t *testing.T) {
	var s restserver.Swappable
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metadata", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewRequiresServer(t *testing.T) {
	_, err := restserver.New(nil)
	assert.ErrorIs(t, err, restserver.ErrNilServer)
}
