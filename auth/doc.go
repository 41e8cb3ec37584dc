// Package auth provides the bearer token authentication used by the FHIR
// server's authorization interceptor. It focuses on JWT access tokens issued
// by an external OAuth 2.0 / OIDC authorization server, as in SMART on FHIR
// deployments.
//
// An Authenticator validates an incoming bearer token string and returns a
// UserInfo (or an error). The interceptor is responsible for extracting the
// token from the HTTP request and mapping sentinel errors into challenges.
//
// # Access Token Authentication
//
// Three constructors differ only in where signing keys come from:
// NewFromDiscovery (OIDC discovery on the issuer), NewFromJWKSURL (a fixed
// JWKS endpoint) and NewFromJWKS (an inline key set, mostly for tests).
//
//	authn, err := auth.NewFromDiscovery(ctx, "https://issuer.example", "https://fhir.example/baseDstu2",
//	    auth.WithAnyRequiredScope("user/*.read", "system/*.read"),
//	)
//
// # Scopes
//
// Token-wide scopes are enforced with WithRequiredScopes or
// WithAnyRequiredScope. Per-resource SMART scopes ("user/Patient.read",
// "system/*.*") are evaluated per request with HasSMARTScope.
//
// # Errors
//
// ErrUnauthorized signals the token is invalid (signature, expiry, audience,
// etc.). ErrInsufficientScope signals successful authentication but missing
// required scope(s).
package auth
