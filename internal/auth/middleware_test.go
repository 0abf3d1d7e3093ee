package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireAuth(t *testing.T) {
	m := NewMiddleware(newValidator(t))

	var got *Principal
	h := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid", "Bearer " + sign(t, validClaims()), http.StatusNoContent, ""},
		{"lowercase scheme", "bearer " + sign(t, validClaims()), http.StatusNoContent, ""},
		{"missing", "", http.StatusUnauthorized, "authentication required"},
		{"basic auth", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, "authentication required"},
		{"expired", "Bearer " + sign(t, expired), http.StatusUnauthorized, "token has expired"},
		{"invalid", "Bearer abc", http.StatusUnauthorized, "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = nil
			req := httptest.NewRequest(http.MethodGet, "/workflows", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusNoContent {
				require.NotNil(t, got)
				assert.Equal(t, "user-1", got.Subject)
				return
			}
			assert.Nil(t, got)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
}

func TestExtractToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, ExtractToken(req))

	req.Header.Set("Authorization", "Bearer  abc ")
	assert.Equal(t, "abc", ExtractToken(req))
}

