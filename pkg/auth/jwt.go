// Package auth validates bearer tokens and bridges their claims into the
// user context consumed by the restriction engine.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/crudcore/crudcore/pkg/observability/logger"
)

// Validator validates a bearer token and extracts its claims.
type Validator interface {
	Validate(ctx context.Context, token string) (*Claims, error)
}

// Claims represents the extracted claims from a validated token.
type Claims struct {
	Subject   string                 // Subject (sub) - the user id
	Issuer    string                 // Issuer (iss)
	ExpiresAt time.Time              // Expiration time (exp)
	IssuedAt  time.Time              // Issued at (iat)
	TokenID   string                 // Token identifier (jti)
	Roles     []string               // Roles from role/roles claims
	Custom    map[string]interface{} // Everything else
}

// LegacyJWTValidator validates HMAC-SHA256 signed tokens against a shared
// secret. It is the terminal fallback of a hybrid chain so that sessions
// minted before an identity-provider migration keep working.
type LegacyJWTValidator struct {
	secret []byte
	issuer string
	logger logger.Logger
}

// NewLegacyJWTValidator creates a validator over a shared HMAC secret.
func NewLegacyJWTValidator(secret, issuer string, log logger.Logger) (*LegacyJWTValidator, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if log == nil {
		log = logger.Noop{}
	}
	return &LegacyJWTValidator{secret: []byte(secret), issuer: issuer, logger: log}, nil
}

// Validate checks the signature, expiration and issuer, then extracts claims.
func (v *LegacyJWTValidator) Validate(_ context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, err := extractClaims(token)
	if err != nil {
		return nil, fmt.Errorf("failed to extract claims: %w", err)
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, fmt.Errorf("invalid issuer: expected %s, got %s", v.issuer, claims.Issuer)
	}

	v.logger.Debug("token validated", "subject", claims.Subject)
	return claims, nil
}

// Mint signs a new token for a subject. Exposed for session issuance and for
// seeding integration environments.
func (v *LegacyJWTValidator) Mint(subject string, roles []string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"jti": uuid.NewString(),
	}
	if v.issuer != "" {
		claims["iss"] = v.issuer
	}
	if len(roles) > 0 {
		claims["roles"] = roles
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// HybridValidator tries each provider in order and returns the first success.
// The legacy shared-secret validator is conventionally placed last.
type HybridValidator struct {
	providers []Validator
	logger    logger.Logger
}

// NewHybridValidator chains validators. Order is significant.
func NewHybridValidator(log logger.Logger, providers ...Validator) *HybridValidator {
	if log == nil {
		log = logger.Noop{}
	}
	return &HybridValidator{providers: providers, logger: log}
}

// Validate returns the claims from the first provider accepting the token.
func (v *HybridValidator) Validate(ctx context.Context, token string) (*Claims, error) {
	var lastErr error
	for _, provider := range v.providers {
		claims, err := provider.Validate(ctx, token)
		if err == nil {
			return claims, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no token providers configured")
	}
	return nil, lastErr
}

func extractClaims(token *jwt.Token) (*Claims, error) {
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("failed to parse claims")
	}

	claims := &Claims{Custom: make(map[string]interface{})}

	if sub, ok := mapClaims["sub"].(string); ok {
		claims.Subject = strings.TrimSpace(sub)
	}
	if iss, ok := mapClaims["iss"].(string); ok {
		claims.Issuer = strings.TrimSpace(iss)
	}
	if jti, ok := mapClaims["jti"].(string); ok {
		claims.TokenID = strings.TrimSpace(jti)
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}

	for _, key := range []string{"roles", "role"} {
		if raw, ok := mapClaims[key]; ok {
			claims.Roles = append(claims.Roles, stringList(raw)...)
		}
	}
	claims.Roles = dedupeStrings(claims.Roles)

	standard := map[string]bool{
		"sub": true, "iss": true, "aud": true, "exp": true,
		"iat": true, "nbf": true, "jti": true, "roles": true, "role": true,
	}
	for key, value := range mapClaims {
		if !standard[key] {
			claims.Custom[key] = value
		}
	}
	return claims, nil
}

func stringList(raw interface{}) []string {
	switch typed := raw.(type) {
	case string:
		return strings.Fields(typed)
	case []string:
		return typed
	case []interface{}:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

// claimsContextKey is the context key for storing claims.
type claimsContextKey struct{}

// WithClaims stores claims in the context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// GetClaims retrieves claims from the context.
// Returns nil if no claims are found.
func GetClaims(ctx context.Context) *Claims {
	if claims, ok := ctx.Value(claimsContextKey{}).(*Claims); ok {
		return claims
	}
	return nil
}
