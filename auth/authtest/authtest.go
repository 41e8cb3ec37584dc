// Package authtest provides an in-memory auth.Authenticator for tests and
// local development.
package authtest

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/jamesagnew/continua-demo-fhir-server/auth"
)

// Static maps fixed bearer tokens to users.
type Static struct {
	users map[string]User
}

// User is the principal a Static token resolves to.
type User struct {
	ID     string
	Scopes []string
	// Claims are returned alongside "sub".
	Claims map[string]any
}

// NewStatic returns an authenticator accepting exactly the given tokens.
func NewStatic(tokens map[string]User) *Static {
	return &Static{users: tokens}
}

func (s *Static) CheckAuthentication(ctx context.Context, tok string) (auth.UserInfo, error) {
	u, ok := s.users[tok]
	if !ok {
		return nil, fmt.Errorf("%w: unknown token", auth.ErrUnauthorized)
	}
	return userInfo{u}, nil
}

type userInfo struct{ user User }

func (u userInfo) UserID() string   { return u.user.ID }
func (u userInfo) Scopes() []string { return slices.Clone(u.user.Scopes) }
func (u userInfo) Claims(ref any) error {
	claims := map[string]any{"sub": u.user.ID}
	for k, v := range u.user.Claims {
		claims[k] = v
	}
	b, err := json.Marshal(claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}
