package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jamesagnew/continua-demo-fhir-server/internal/jwtauth"
)

// AccessTokenAuthOption configures optional aspects of the JWT access token
// authenticators (scopes, algorithms, leeway, etc.).
type AccessTokenAuthOption func(*jwtauth.Config)

// WithRequiredScopes requires all of the provided scopes to be present in the
// space-delimited "scope" claim.
func WithRequiredScopes(scopes ...string) AccessTokenAuthOption {
	return func(c *jwtauth.Config) {
		c.RequiredScopes = append([]string(nil), scopes...)
		c.ScopeModeAny = false
	}
}

// WithAnyRequiredScope requires at least one of the provided scopes to be present.
func WithAnyRequiredScope(scopes ...string) AccessTokenAuthOption {
	return func(c *jwtauth.Config) {
		c.RequiredScopes = append([]string(nil), scopes...)
		c.ScopeModeAny = true
	}
}

// WithAllowedAlgs restricts allowed JWS algorithms. "none" is never allowed.
// Defaults to ["RS256"].
func WithAllowedAlgs(algs ...string) AccessTokenAuthOption {
	return func(c *jwtauth.Config) {
		c.AllowedAlgs = append([]string(nil), algs...)
	}
}

// WithLeeway sets clock skew tolerance for time-based claims.
func WithLeeway(d time.Duration) AccessTokenAuthOption {
	return func(c *jwtauth.Config) { c.Leeway = d }
}

// WithAdditionalAudiences accepts further "aud" values besides the primary
// audience, e.g. a localhost base URL during development.
func WithAdditionalAudiences(aud ...string) AccessTokenAuthOption {
	return func(c *jwtauth.Config) { c.ExpectedAudiences = append(c.ExpectedAudiences, aud...) }
}

// WithAccessTokenType enforces the RFC 9068 "at+jwt" header.
func WithAccessTokenType() AccessTokenAuthOption {
	return func(c *jwtauth.Config) { c.RequireAccessTokenType = true }
}

func newConfig(issuer, audience string, opts []AccessTokenAuthOption) (jwtauth.Config, error) {
	cfg := *jwtauth.DefaultConfig()
	cfg.Issuer = issuer
	if audience == "" {
		return cfg, errors.New("audience is required")
	}
	cfg.ExpectedAudiences = []string{audience}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg, nil
}

// NewFromDiscovery returns an Authenticator that verifies JWT access tokens
// using keys located through OpenID Connect discovery on issuer.
//
// Required:
//   - issuer:   authorization server issuer URL
//   - audience: expected audience ("aud") claim, typically the server's base URL
func NewFromDiscovery(ctx context.Context, issuer, audience string, opts ...AccessTokenAuthOption) (Authenticator, error) {
	cfg, err := newConfig(issuer, audience, opts)
	if err != nil {
		return nil, err
	}
	a, err := jwtauth.NewFromDiscovery(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &adapter{a: a}, nil
}

// NewFromJWKSURL skips discovery and fetches keys from jwksURL.
func NewFromJWKSURL(ctx context.Context, issuer, audience, jwksURL string, opts ...AccessTokenAuthOption) (Authenticator, error) {
	cfg, err := newConfig(issuer, audience, opts)
	if err != nil {
		return nil, err
	}
	a, err := jwtauth.NewFromJWKSURL(ctx, cfg, jwksURL)
	if err != nil {
		return nil, err
	}
	return &adapter{a: a}, nil
}

// NewFromJWKS validates against an inline JWKS document.
func NewFromJWKS(issuer, audience string, jwks json.RawMessage, opts ...AccessTokenAuthOption) (Authenticator, error) {
	cfg, err := newConfig(issuer, audience, opts)
	if err != nil {
		return nil, err
	}
	a, err := jwtauth.NewFromJWKS(cfg, jwks)
	if err != nil {
		return nil, err
	}
	return &adapter{a: a}, nil
}

// adapter wraps the internal authenticator to satisfy the public interface.
type adapter struct {
	a jwtauth.Authenticator
}

func (ad *adapter) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	ui, err := ad.a.CheckAuthentication(ctx, tok)
	if err != nil {
		// Map internal sentinel errors to public errors used by the interceptor.
		if errors.Is(err, jwtauth.ErrInsufficientScope) {
			return nil, errors.Join(ErrInsufficientScope, err)
		}
		return nil, errors.Join(ErrUnauthorized, err)
	}
	return ui, nil
}
