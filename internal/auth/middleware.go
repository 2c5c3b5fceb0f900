//
//
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/radio-control/mavbridge/internal/config"
)

// Claims represents the parsed token claims.
type Claims struct {
	Subject string   `json:"sub"`
	Scopes  []string `json:"scopes"`
}

// HasScope reports whether the claims grant scope.
func (c *Claims) HasScope(scope string) bool {
	return c != nil && slices.Contains(c.Scopes, scope)
}

// ContextKey is used for storing claims in request context.
type ContextKey string

const (
	ClaimsKey ContextKey = "claims"
)

// Scope constants
const (
	ScopeTelemetry = "telemetry"
	ScopeControl   = "control"
)

// AccessTokenParam carries the token on WebSocket upgrades.
const AccessTokenParam = "access_token"

// Anonymous is attached to every request when authentication is disabled.
var Anonymous = &Claims{Subject: "anonymous", Scopes: []string{ScopeTelemetry, ScopeControl}}

// TokenVerifier turns a raw token into claims.
type TokenVerifier interface {
	VerifyToken(token string) (*Claims, error)
}

// Middleware handles authentication and authorization.
type Middleware struct {
	verifier TokenVerifier
}

// NewMiddleware creates auth middleware. A nil verifier disables
// authentication and treats every caller as Anonymous.
func NewMiddleware(verifier TokenVerifier) *Middleware {
	return &Middleware{verifier: verifier}
}

// NewMiddlewareFromConfig builds the middleware described by cfg.
func NewMiddlewareFromConfig(cfg config.AuthConfig) (*Middleware, error) {
	if !cfg.Enabled {
		return NewMiddleware(nil), nil
	}
	verifier, err := NewVerifier(VerifierConfigFrom(cfg))
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	return NewMiddleware(verifier), nil
}

// Enabled reports whether tokens are checked.
func (m *Middleware) Enabled() bool {
	return m.verifier != nil
}

// Authenticate extracts and verifies the caller's token.
func (m *Middleware) Authenticate(r *http.Request) (*Claims, error) {
	if m.verifier == nil {
		return Anonymous, nil
	}

	token, err := extractToken(r)
	if err != nil {
		return nil, err
	}
	return m.verifier.VerifyToken(token)
}

// RequireScope creates middleware that authenticates the caller and requires
// every listed scope. Claims are stored in the request context.
func (m *Middleware) RequireScope(requiredScopes ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, err := m.Authenticate(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}

			// Check if user has required scopes
			for _, scope := range requiredScopes {
				if !claims.HasScope(scope) {
					writeError(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
					return
				}
			}

			next(w, r.WithContext(WithClaims(r.Context(), claims)))
		}
	}
}

// extractToken reads the bearer token from the Authorization header, falling
// back to the access_token query parameter.
func extractToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if token := r.URL.Query().Get(AccessTokenParam); token != "" {
			return token, nil
		}
		return "", fmt.Errorf("missing Authorization header")
	}

	// Check for Bearer prefix
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", fmt.Errorf("invalid Authorization header format")
	}

	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", fmt.Errorf("empty token")
	}

	return token, nil
}

// WithClaims stores claims in ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// ClaimsFromContext extracts claims from ctx, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}

// writeError writes an error response in the API format.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]interface{}{
		"result":        "error",
		"code":          code,
		"message":       message,
		"correlationId": uuid.NewString(),
	}

	_ = json.NewEncoder(w).Encode(response)
}
