package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/btouchard/tunnelmock/internal/auth"
)

// BearerAuth returns middleware that requires "Authorization: Bearer <token>".
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				challengeAuth(w, "missing Authorization header")
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				challengeAuth(w, "invalid Authorization header format")
				return
			}

			if !auth.TokenEqual(strings.TrimSpace(parts[1]), token) {
				slog.Debug("bearer token rejected", "remote_addr", r.RemoteAddr)
				invalidToken(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// challengeAuth sends a 401 with a Bearer challenge for unauthenticated requests.
func challengeAuth(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="tunnelmock"`)
	http.Error(w, msg, http.StatusUnauthorized)
}

// invalidToken sends a 401 for requests with a wrong Bearer token.
func invalidToken(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	http.Error(w, msg, http.StatusUnauthorized)
}

// SecurityHeaders sets conservative response headers on every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
