package auth

import (
	"crypto/rsa"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/radio-control/mavbridge/internal/config"
)

// Supported signing algorithms.
const (
	AlgorithmHS256 = "HS256"
	AlgorithmRS256 = "RS256"
)

// VerifierConfig holds configuration for JWT verification.
type VerifierConfig struct {
	// Algorithm preference, "RS256" or "HS256"
	Algorithm string

	// RS256 configuration
	PublicKeyPEM string

	// HS256 configuration
	SecretKey string
}

// VerifierConfigFrom maps the auth section of the bridge configuration.
func VerifierConfigFrom(cfg config.AuthConfig) VerifierConfig {
	return VerifierConfig{
		Algorithm:    cfg.Algorithm,
		PublicKeyPEM: cfg.PublicKeyPEM,
		SecretKey:    cfg.Secret,
	}
}

// Verifier handles JWT token verification.
type Verifier struct {
	config    VerifierConfig
	publicKey *rsa.PublicKey
}

// NewVerifier creates a new JWT verifier.
func NewVerifier(config VerifierConfig) (*Verifier, error) {
	v := &Verifier{config: config}

	// Initialize based on algorithm
	switch config.Algorithm {
	case AlgorithmRS256:
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(config.PublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("failed to load public key from PEM: %w", err)
		}
		v.publicKey = key
	case AlgorithmHS256:
		if config.SecretKey == "" {
			return nil, fmt.Errorf("HS256 requires secret key")
		}
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", config.Algorithm)
	}

	return v, nil
}

// VerifyToken verifies a JWT token and returns the claims.
func (v *Verifier) VerifyToken(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("token cannot be empty")
	}

	mapClaims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, mapClaims, v.keyFunc,
		jwt.WithValidMethods([]string{v.config.Algorithm}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return extractClaims(mapClaims)
}

func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	if v.config.Algorithm == AlgorithmRS256 {
		return v.publicKey, nil
	}
	return []byte(v.config.SecretKey), nil
}

// extractClaims extracts and validates claims from JWT MapClaims.
func extractClaims(claims jwt.MapClaims) (*Claims, error) {
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("missing or invalid 'sub' claim")
	}

	scopes, err := extractScopes(claims)
	if err != nil {
		return nil, err
	}
	for _, scope := range scopes {
		if scope != ScopeTelemetry && scope != ScopeControl {
			return nil, fmt.Errorf("invalid scope: %q", scope)
		}
	}

	return &Claims{Subject: sub, Scopes: scopes}, nil
}

// extractScopes accepts either a "scopes" array or a space separated "scope"
// string.
func extractScopes(claims jwt.MapClaims) ([]string, error) {
	if s, ok := claims["scope"].(string); ok {
		return strings.Fields(s), nil
	}

	value, ok := claims["scopes"]
	if !ok {
		return nil, fmt.Errorf("missing claim: scopes")
	}

	items, ok := value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid scopes claim: not a string array")
	}
	scopes := make([]string, len(items))
	for i, item := range items {
		str, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("invalid scopes claim: not a string")
		}
		scopes[i] = str
	}
	return scopes, nil
}
