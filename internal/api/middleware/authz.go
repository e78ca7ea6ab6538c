package middleware

import (
	"net/http"

	"github.com/teamup/teamup/internal/api/response"
)

// RequireIdentity returns middleware that rejects anonymous requests with 401.
func RequireIdentity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetIdentity(r.Context()) == nil {
				requestID := GetRequestID(r.Context())
				response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key or session token is required", requestID)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
