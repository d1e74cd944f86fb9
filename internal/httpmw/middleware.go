// Package httpmw holds process-wide HTTP middleware applied ahead of any
// bundle router: security headers and request-ID tagging, mirroring the
// teacher's server.SecurityHeadersMiddleware applied globally via
// router.Use in internal/server/server.go.
package httpmw

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type ctxKey int

const requestIDKey ctxKey = 0

// RequestIDFromContext returns the ID stamped on ctx by the RequestID middleware,
// or "" if none was stamped.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// RequestID assigns every inbound request a UUID, echoed on X-Request-Id
// and available to handlers/log lines via RequestIDFromContext.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SecurityHeaders strips the default Server header and sets a generic
// replacement, the same hardening the teacher applies to every route.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "fleethub")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}
