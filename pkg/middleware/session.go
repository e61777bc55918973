package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/utafrali/storefront/pkg/logger"
)

// SessionIDHeader identifies the shopper's cart across requests.
const SessionIDHeader = "X-Session-ID"

// Session resolves the cart session from the X-Session-ID header. A missing
// or malformed ID is replaced by a fresh UUID. The resolved ID is echoed in
// the response header and stored in the context (see
// logger.SessionIDFromContext).
func Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(SessionIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}

		w.Header().Set(SessionIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithSessionID(r.Context(), id)))
	})
}
