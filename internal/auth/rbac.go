package auth

import (
	"net/http"

	"github.com/nikhilbhutani/payrollflow/internal/principal"
)

// RequireCapability rejects requests whose principal lacks c.
func RequireCapability(c principal.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := principal.FromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			if !p.HasCapability(c) {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
