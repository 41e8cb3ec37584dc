package wellknown

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe(t *testing.T) {
	doc := SMARTConfiguration{
		Issuer:       "https://issuer.example",
		JwksURI:      "https://issuer.example/jwks",
		Capabilities: []string{"launch-standalone"},
	}
	h := Serve(doc)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, SMARTConfigurationPath, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var got SMARTConfiguration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, doc, got)

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodOptions, SMARTConfigurationPath, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}
