package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/conveyor-dev/conveyor/pkg/requestid"
)

// RequestID takes the request ID from the x-request-id header when the
// client supplied one, falls back to chi's generated ID, and finally
// generates a fresh one. The ID is injected into the request context
// for consistent access across layers.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("x-request-id")
		if reqID == "" {
			reqID = middleware.GetReqID(r.Context())
		}
		if reqID == "" {
			reqID = requestid.Generate()
		}

		next.ServeHTTP(w, r.WithContext(requestid.ToContext(r.Context(), reqID)))
	})
}
