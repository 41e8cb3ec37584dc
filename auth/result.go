package auth

import (
	"fmt"
	"net/http"
	"strings"
)

// Challenge describes an HTTP challenge (status + WWW-Authenticate header).
type Challenge struct {
	Status          int
	WWWAuthenticate string
	Description     string
}

func quote(s string) string { return strings.ReplaceAll(s, `"`, `\"`) }

// AuthenticationRequired builds the challenge for a request without credentials.
func AuthenticationRequired(realm string) Challenge {
	return Challenge{
		Status:          http.StatusUnauthorized,
		WWWAuthenticate: fmt.Sprintf(`Bearer realm="%s"`, quote(realm)),
		Description:     "authentication required",
	}
}

// InvalidAuthorizationHeader builds the challenge for a malformed Authorization header.
func InvalidAuthorizationHeader(realm string) Challenge {
	return Challenge{
		Status:          http.StatusBadRequest,
		WWWAuthenticate: fmt.Sprintf(`Bearer realm="%s", error="invalid_request", error_description="Invalid Authorization header"`, quote(realm)),
		Description:     "invalid Authorization header",
	}
}

// InvalidToken builds the challenge for a token that failed validation.
func InvalidToken(realm, description string) Challenge {
	return Challenge{
		Status:          http.StatusUnauthorized,
		WWWAuthenticate: fmt.Sprintf(`Bearer realm="%s", error="invalid_token", error_description="%s"`, quote(realm), quote(description)),
		Description:     description,
	}
}

// InsufficientScope builds the challenge for an authenticated caller that
// lacks scope.
func InsufficientScope(realm, scope string) Challenge {
	return Challenge{
		Status:          http.StatusForbidden,
		WWWAuthenticate: fmt.Sprintf(`Bearer realm="%s", error="insufficient_scope", scope="%s"`, quote(realm), quote(scope)),
		Description:     "insufficient scope: " + scope,
	}
}
