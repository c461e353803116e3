package middleware

import (
	"net/http"

	"github.com/hiyari/incident-reports-back/internal/auth"
)

// Identity stores the resolved caller in the request context. Unresolved
// requests pass through; handlers decide whether a caller is required.
func Identity(resolver auth.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if resolver == nil {
				next.ServeHTTP(w, r)
				return
			}
			if userID, ok := resolver.Resolve(r); ok {
				r = r.WithContext(auth.WithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}
