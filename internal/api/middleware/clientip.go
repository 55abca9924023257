package middleware

import (
	"net/http"

	"github.com/nikhilbhutani/payrollflow/internal/audit"
)

// ClientIP puts the caller's address on the request context for audit
// entries. It must run after chi's RealIP.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := audit.WithClientIP(r.Context(), clientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
