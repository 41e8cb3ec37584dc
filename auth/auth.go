package auth

import (
	"context"
	"errors"
)

var (
	// ErrUnauthorized means the bearer token is missing, malformed, expired or
	// signed by an unknown key.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInsufficientScope means the token is valid but lacks a required scope.
	ErrInsufficientScope = errors.New("insufficient scope")
)

// UserInfo is the principal behind a validated access token. It satisfies
// fhirservice.Principal so the authorization interceptor can attach it to
// the request.
type UserInfo interface {
	// UserID is the token subject.
	UserID() string
	// Scopes are the granted scopes, SMART resource scopes included.
	Scopes() []string
	// Claims decodes the token claims into ref.
	Claims(ref any) error
}

// Authenticator turns a bearer token into a UserInfo. Invalid tokens yield an
// error wrapping ErrUnauthorized or ErrInsufficientScope.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (UserInfo, error)
}

// LaunchContext is the SMART launch context an authorization server places
// in the token next to the scopes.
type LaunchContext struct {
	Patient   string `json:"patient,omitempty"`
	Encounter string `json:"encounter,omitempty"`
	FHIRUser  string `json:"fhirUser,omitempty"`
}

// LaunchContextOf reads the SMART launch context claims of u. Tokens without
// them yield the zero LaunchContext.
func LaunchContextOf(u UserInfo) (LaunchContext, error) {
	var lc LaunchContext
	if err := u.Claims(&lc); err != nil {
		return LaunchContext{}, err
	}
	return lc, nil
}
