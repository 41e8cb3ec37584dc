package jwtauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
)

// NewFromDiscovery performs OIDC discovery against cfg.Issuer to locate the
// issuer's JWKS and returns an Authenticator using it. JWKS keys are
// auto-refreshed until ctx is cancelled.
func NewFromDiscovery(ctx context.Context, cfg Config) (Authenticator, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	var meta struct {
		Issuer  string `json:"issuer"`
		JwksURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return nil, errors.New("discovery incomplete: missing jwks_uri")
	}
	cfg.Issuer = meta.Issuer
	return NewFromJWKSURL(ctx, cfg, meta.JwksURI)
}

// NewFromJWKSURL returns an Authenticator that fetches keys from a fixed
// JWKS URL.
func NewFromJWKSURL(ctx context.Context, cfg Config, jwksURL string) (Authenticator, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if jwksURL == "" {
		return nil, errors.New("jwks url required")
	}
	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}
	return newValidator(cfg, kf.Keyfunc), nil
}

// NewFromJWKS returns an Authenticator over an inline JWKS document. Keys
// are never refreshed.
func NewFromJWKS(cfg Config, jwks json.RawMessage) (Authenticator, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	kf, err := keyfunc.NewJWKSetJSON(jwks)
	if err != nil {
		return nil, fmt.Errorf("parse jwks: %w", err)
	}
	return newValidator(cfg, kf.Keyfunc), nil
}
