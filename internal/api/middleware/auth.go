package middleware

import (
	"net/http"

	"github.com/slotbook/backend/internal/auth"
)

// Authenticator resolves the caller of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (auth.Identity, error)
}

// Session attaches the caller identity to the request context when a valid
// session is present. Requests without one continue as anonymous.
func Session(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, err := authn.Authenticate(r); err == nil {
				r = r.WithContext(auth.WithIdentity(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if auth.FromContext(r.Context()).Anonymous() {
			WriteError(w, http.StatusUnauthorized, ErrUnauthorized, "Authentication required")
			return
		}
		next(w, r)
	}
}
