package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type contextKey struct{}

// PrincipalFromContext returns the authenticated caller, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(contextKey{}).(*Principal)
	return p
}

func contextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// Middleware validates bearer tokens on every request.
type Middleware struct {
	validator *Validator
}

// NewMiddleware creates a new authentication middleware.
func NewMiddleware(validator *Validator) *Middleware {
	return &Middleware{validator: validator}
}

// RequireAuth rejects requests without a valid bearer token.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := m.validator.ValidateToken(r.Context(), ExtractToken(r))
		if err != nil {
			message := "invalid token"
			switch {
			case errors.Is(err, ErrMissingToken):
				message = "authentication required"
			case errors.Is(err, ErrExpiredToken),
				errors.Is(err, ErrInvalidIssuer),
				errors.Is(err, ErrInvalidAudience):
				message = err.Error()
			}
			writeJSONError(w, http.StatusUnauthorized, message)
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithPrincipal(r.Context(), p)))
	})
}

// ExtractToken returns the bearer token from the Authorization header.
func ExtractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message})
}
