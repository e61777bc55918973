package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/utafrali/storefront/pkg/httputil"
)

type contextKeyType string

const bearerTokenKey contextKeyType = "bearer_token"

// BearerToken requires an "Authorization: Bearer <token>" header and stores
// the token in the context. The token is opaque here: the collaborator it is
// forwarded to validates it.
func BearerToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeAuthError(w, "missing authorization header")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		token = strings.TrimSpace(token)
		if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
			writeAuthError(w, "invalid authorization header format")
			return
		}

		ctx := context.WithValue(r.Context(), bearerTokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// BearerTokenFromContext returns the token stored by BearerToken.
func BearerTokenFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(bearerTokenKey).(string); ok {
		return v
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, message string) {
	httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
		Error: &httputil.ErrorResponse{Code: "UNAUTHORIZED", Message: message},
	})
}
