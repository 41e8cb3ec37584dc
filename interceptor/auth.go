package interceptor

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/jamesagnew/continua-demo-fhir-server/auth"
	"github.com/jamesagnew/continua-demo-fhir-server/fhir"
	"github.com/jamesagnew/continua-demo-fhir-server/fhirservice"
)

// LaunchContextAttribute is the request attribute holding the token's
// auth.LaunchContext, when it carries one.
const LaunchContextAttribute = "smart.launch"

// BearerAuthOption configures BearerAuth.
type BearerAuthOption func(*Bearer)

// WithRealm sets the realm advertised in WWW-Authenticate challenges.
func WithRealm(realm string) BearerAuthOption {
	return func(b *Bearer) { b.realm = realm }
}

// WithPublicInteractions replaces the interactions served without a token.
// The default is the capability statement only.
func WithPublicInteractions(interactions ...string) BearerAuthOption {
	return func(b *Bearer) { b.public = append([]string(nil), interactions...) }
}

// WithSMARTScopes requires a SMART on FHIR scope granting access to the
// request's resource type.
func WithSMARTScopes() BearerAuthOption {
	return func(b *Bearer) { b.smart = true }
}

// WithAuthLogger sets the logger for rejected requests.
func WithAuthLogger(l *slog.Logger) BearerAuthOption {
	return func(b *Bearer) {
		if l != nil {
			b.log = l
		}
	}
}

// Bearer is the bearer token authorization interceptor.
type Bearer struct {
	authn  auth.Authenticator
	realm  string
	public []string
	smart  bool
	log    *slog.Logger
}

// BearerAuth returns an interceptor that authenticates the Authorization
// bearer token of every non-public request and attaches the principal to it.
// Requests that fail are aborted with 401, 400 or 403 and an OperationOutcome.
func BearerAuth(authn auth.Authenticator, opts ...BearerAuthOption) *Bearer {
	b := &Bearer{
		authn:  authn,
		realm:  "fhir",
		public: []string{fhirservice.InteractionCapabilities},
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Bearer) PreHandle(ctx context.Context, req *fhirservice.Request) (*fhirservice.Response, error) {
	if slices.Contains(b.public, req.Interaction) {
		return nil, nil
	}

	var header string
	if req.HTTP != nil {
		header = req.HTTP.Header.Get("Authorization")
	}
	if header == "" {
		return b.reject(ctx, req, auth.AuthenticationRequired(b.realm)), nil
	}
	scheme, tok, ok := strings.Cut(header, " ")
	tok = strings.TrimSpace(tok)
	if !ok || !strings.EqualFold(scheme, "Bearer") || tok == "" {
		return b.reject(ctx, req, auth.InvalidAuthorizationHeader(b.realm)), nil
	}

	ui, err := b.authn.CheckAuthentication(ctx, tok)
	switch {
	case errors.Is(err, auth.ErrInsufficientScope):
		return b.reject(ctx, req, auth.InsufficientScope(b.realm, "")), nil
	case errors.Is(err, auth.ErrUnauthorized):
		return b.reject(ctx, req, auth.InvalidToken(b.realm, "token validation failed")), nil
	case err != nil:
		return nil, err
	}

	if b.smart {
		rt := req.ResourceType
		if rt == "" {
			rt = "*"
		}
		access := accessFor(req.Interaction)
		if !auth.HasSMARTScope(ui.Scopes(), rt, access) {
			return b.reject(ctx, req, auth.InsufficientScope(b.realm, auth.ScopeFor("user", rt, access))), nil
		}
	}
	req.Principal = ui
	if lc, err := auth.LaunchContextOf(ui); err == nil && lc != (auth.LaunchContext{}) {
		req.Set(LaunchContextAttribute, lc)
	}
	return nil, nil
}

func (b *Bearer) reject(ctx context.Context, req *fhirservice.Request, ch auth.Challenge) *fhirservice.Response {
	b.log.InfoContext(ctx, "auth.reject",
		slog.Int("status", ch.Status),
		slog.String("interaction", req.Interaction),
		slog.String("reason", ch.Description),
	)
	code := fhir.IssueCodeLogin
	switch ch.Status {
	case http.StatusForbidden:
		code = fhir.IssueCodeForbidden
	case http.StatusBadRequest:
		code = fhir.IssueCodeInvalid
	}
	resp := fhirservice.NewResponse(ch.Status, fhir.NewOperationOutcome(fhir.SeverityError, code, ch.Description))
	resp.Header.Set("WWW-Authenticate", ch.WWWAuthenticate)
	return resp
}

func accessFor(interaction string) auth.Access {
	switch interaction {
	case string(fhir.InteractionCreate), string(fhir.InteractionUpdate), string(fhir.InteractionDelete),
		string(fhir.InteractionTransaction), string(fhir.InteractionBatch):
		return auth.AccessWrite
	}
	return auth.AccessRead
}
