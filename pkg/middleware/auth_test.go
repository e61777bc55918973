package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/pkg/httputil"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		wantCode  int
		wantToken string
	}{
		{name: "valid", header: "Bearer abc.def", wantCode: http.StatusOK, wantToken: "abc.def"},
		{name: "lowercase scheme", header: "bearer tok", wantCode: http.StatusOK, wantToken: "tok"},
		{name: "missing", header: "", wantCode: http.StatusUnauthorized},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", wantCode: http.StatusUnauthorized},
		{name: "no token", header: "Bearer ", wantCode: http.StatusUnauthorized},
		{name: "no separator", header: "Bearer", wantCode: http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got string
			handler := BearerToken(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = BearerTokenFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/sync", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantCode, rec.Code)
			assert.Equal(t, tc.wantToken, got)
			if tc.wantCode == http.StatusUnauthorized {
				var resp httputil.Response
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
				require.NotNil(t, resp.Error)
				assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
			}
		})
	}
}

func TestBearerTokenFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, BearerTokenFromContext(req.Context()))
}
