package middleware

import (
	"context"
	"net/http"

	"github.com/gofrs/uuid/v5"
)

type requestIDKey struct{}

const RequestIDHeader = "X-Request-Id"

// RequestID assigns each request a UUIDv7 (unless the client already sent
// one), echoes it in the response, and stores it in the request context
// for problem documents and logs.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				if u, err := uuid.NewV7(); err == nil {
					id = u.String()
				}
			}
			if id != "" {
				w.Header().Set(RequestIDHeader, id)
				r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestIDFrom returns the request id stored by RequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
