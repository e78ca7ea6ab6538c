package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/teamup/teamup/internal/api/response"
	"github.com/teamup/teamup/internal/auth"
)

const identityKey contextKey = "identity"

// Authenticator resolves request credentials to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, rawKey string) (*auth.Identity, error)
	VerifyToken(ctx context.Context, token string) (*auth.Identity, error)
}

// Authenticate is middleware that resolves the caller's identity from an
// X-API-Key header, an "Authorization: Bearer" session token, or a token
// query parameter (browsers cannot set headers on websocket handshakes).
// Requests without credentials pass through anonymously; invalid credentials
// are rejected with 401.
func Authenticate(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())

			var (
				identity *auth.Identity
				err      error
			)
			switch {
			case r.Header.Get("X-API-Key") != "":
				identity, err = authn.Authenticate(r.Context(), r.Header.Get("X-API-Key"))
			case r.Header.Get("Authorization") != "":
				token, ok := bearerToken(r.Header.Get("Authorization"))
				if !ok {
					response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid Authorization header format", requestID)
					return
				}
				identity, err = authn.VerifyToken(r.Context(), token)
			case r.URL.Query().Get("token") != "":
				identity, err = authn.VerifyToken(r.Context(), r.URL.Query().Get("token"))
			default:
				next.ServeHTTP(w, r)
				return
			}

			if err != nil {
				switch {
				case errors.Is(err, auth.ErrInvalidKey):
					response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or revoked API key", requestID)
				case errors.Is(err, auth.ErrInvalidToken):
					response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token", requestID)
				default:
					response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Authentication failed", requestID)
				}
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetIdentity retrieves the authenticated Identity from the request context.
func GetIdentity(ctx context.Context) *auth.Identity {
	if id, ok := ctx.Value(identityKey).(*auth.Identity); ok {
		return id
	}
	return nil
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity *auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}
