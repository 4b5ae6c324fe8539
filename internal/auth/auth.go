package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"soundoff.org/internal/guard"
)

const (
	issuer            = "soundoff"
	secretEnvVariable = "SOUNDOFF_AUTH_SECRET"
)

var (
	errMissingSecret = errors.New("auth secret is not configured")

	secretMu sync.Mutex
	secret   cachedSecret
)

type cachedSecret struct {
	value []byte
	err   error
	ready bool
}

// ErrInvalidToken indicates the token failed validation.
var ErrInvalidToken = errors.New("invalid token")

// Claims represents JWT claims used across the service.
type Claims struct {
	Membership     string   `json:"membership"`
	Permissions    []string `json:"permissions"`
	OrganizationID string   `json:"organization_id,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken signs a JWT for the given actor using HS256.
func GenerateToken(actor guard.Actor, ttl time.Duration) (string, error) {
	if strings.TrimSpace(actor.ID) == "" {
		return "", errors.New("actor id is required")
	}
	if !actor.Membership.Valid() {
		return "", fmt.Errorf("unknown membership class %q", actor.Membership)
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be greater than zero")
	}
	secretBytes, err := loadSecret()
	if err != nil {
		return "", err
	}

	perms := make([]string, 0, len(actor.Permissions))
	for _, p := range actor.Permissions {
		perms = append(perms, string(p))
	}

	now := time.Now().UTC()
	claims := Claims{
		Membership:     string(actor.Membership),
		Permissions:    perms,
		OrganizationID: actor.OrganizationID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secretBytes)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseAndValidate verifies the token signature and required claims.
func ParseAndValidate(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	secretBytes, err := loadSecret()
	if err != nil {
		return nil, err
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secretBytes, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := validateClaims(claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Actor converts verified claims into the guard's actor value. Unknown
// permission strings are dropped rather than carried along.
func (c *Claims) Actor() guard.Actor {
	perms := make([]guard.Permission, 0, len(c.Permissions))
	for _, raw := range c.Permissions {
		if p, ok := guard.ParsePermission(raw); ok {
			perms = append(perms, p)
		}
	}
	return guard.Actor{
		ID:             c.Subject,
		Membership:     guard.Membership(c.Membership),
		Permissions:    perms,
		OrganizationID: c.OrganizationID,
	}
}

func validateClaims(claims *Claims) error {
	if claims.Issuer != issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if !guard.Membership(claims.Membership).Valid() {
		return fmt.Errorf("unknown membership class: %s", claims.Membership)
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := time.Now().UTC()
	if now.After(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	if claims.IssuedAt.Time.After(now.Add(time.Minute)) {
		return errors.New("token issued in the future")
	}
	return nil
}

func loadSecret() ([]byte, error) {
	secretMu.Lock()
	defer secretMu.Unlock()
	if secret.ready {
		return secret.value, secret.err
	}
	raw := strings.TrimSpace(os.Getenv(secretEnvVariable))
	if raw == "" {
		secret = cachedSecret{err: errMissingSecret, ready: true}
		return nil, errMissingSecret
	}
	secret = cachedSecret{value: []byte(raw), ready: true}
	return secret.value, nil
}

// ResetSecretForTests clears the cached signing secret so tests can swap it.
func ResetSecretForTests() {
	secretMu.Lock()
	defer secretMu.Unlock()
	secret = cachedSecret{}
}
