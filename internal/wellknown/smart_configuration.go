// Package wellknown holds discovery documents served under /.well-known.
package wellknown

import (
	"encoding/json"
	"net/http"
)

// SMARTConfigurationPath is served relative to the FHIR base URL.
const SMARTConfigurationPath = "/.well-known/smart-configuration"

// SMARTConfiguration is the SMART App Launch discovery document.
type SMARTConfiguration struct {
	Issuer                            string   `json:"issuer,omitempty"`
	JwksURI                           string   `json:"jwks_uri,omitempty"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint,omitempty"`
	TokenEndpoint                     string   `json:"token_endpoint,omitempty"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	Capabilities                      []string `json:"capabilities"`
}

// Serve returns a handler that writes doc as JSON. Browser clients on other
// origins may fetch it.
func Serve(doc any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(doc); err != nil {
			http.Error(w, "failed to encode discovery document", http.StatusInternalServerError)
		}
	}
}
