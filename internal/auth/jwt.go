package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AdminRole may inspect every community.
const AdminRole = "admin"

// Principal is an authenticated caller.
type Principal struct {
	Subject     string
	Roles       []string
	Communities []string
	ExpiresAt   time.Time
}

// HasRole checks if the principal has the specified role.
func (p *Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

// CanAccess reports whether the principal may read the community's workflows.
func (p *Principal) CanAccess(communityID string) bool {
	return p.HasRole(AdminRole) || slices.Contains(p.Communities, communityID)
}

// Config holds JWT validation configuration.
type Config struct {
	Issuer   string `mapstructure:"issuer"`
	Audience string `mapstructure:"audience"`
	// Secret verifies HS256/HS384/HS512 tokens.
	Secret string `mapstructure:"secret"`
	// PublicKey is a PEM-encoded RSA key for RS256/RS384/RS512 tokens.
	PublicKey        string        `mapstructure:"public_key"`
	RolesClaim       string        `mapstructure:"roles_claim"`
	CommunitiesClaim string        `mapstructure:"communities_claim"`
	Leeway           time.Duration `mapstructure:"leeway"`
}

// DefaultConfig returns the claim names used by hivemind tokens.
func DefaultConfig() Config {
	return Config{
		RolesClaim:       "roles",
		CommunitiesClaim: "communities",
		Leeway:           30 * time.Second,
	}
}

// Enabled reports whether any verification key is configured.
func (c Config) Enabled() bool {
	return c.Secret != "" || c.PublicKey != ""
}

// Validator validates JWTs and extracts the principal.
type Validator struct {
	config    Config
	publicKey *rsa.PublicKey
	parser    *jwt.Parser
	logger    *slog.Logger
}

// NewValidator creates a new JWT validator with the given configuration.
func NewValidator(config Config, logger *slog.Logger) (*Validator, error) {
	if !config.Enabled() {
		return nil, ErrNoKeyConfigured
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.RolesClaim == "" {
		config.RolesClaim = "roles"
	}
	if config.CommunitiesClaim == "" {
		config.CommunitiesClaim = "communities"
	}

	v := &Validator{
		config: config,
		logger: logger.With("component", "jwt-validator"),
	}
	if config.PublicKey != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(config.PublicKey))
		if err != nil {
			return nil, fmt.Errorf("invalid public key: %w", err)
		}
		v.publicKey = key
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512", "RS256", "RS384", "RS512"}),
		jwt.WithLeeway(config.Leeway),
		jwt.WithExpirationRequired(),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}
	v.parser = jwt.NewParser(opts...)
	return v, nil
}

// ValidateToken validates a JWT string and returns the principal.
func (v *Validator) ValidateToken(_ context.Context, tokenStr string) (*Principal, error) {
	if tokenStr == "" {
		return nil, ErrMissingToken
	}

	claims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(tokenStr, claims, v.key)
	if err != nil {
		v.logger.Debug("token validation failed", "error", err)
		return nil, mapError(err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	p := &Principal{
		Roles:       stringList(claims, v.config.RolesClaim),
		Communities: stringList(claims, v.config.CommunitiesClaim),
	}
	p.Subject, _ = claims.GetSubject()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		p.ExpiresAt = exp.Time
	}
	return p, nil
}

func (v *Validator) key(t *jwt.Token) (any, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if v.config.Secret == "" {
			return nil, ErrNoKeyConfigured
		}
		return []byte(v.config.Secret), nil
	case *jwt.SigningMethodRSA:
		if v.publicKey == nil {
			return nil, ErrNoKeyConfigured
		}
		return v.publicKey, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, t.Method.Alg())
}

func mapError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpiredToken
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrInvalidIssuer
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrInvalidAudience
	}
	return ErrInvalidToken
}

// stringList reads a claim given as a list or a space separated string.
func stringList(claims jwt.MapClaims, key string) []string {
	switch v := claims[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		return strings.Fields(v)
	}
	return nil
}
