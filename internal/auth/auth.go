// Package auth issues and verifies the HS256 bearer tokens that guard
// the API surface, and carries the authenticated party identity through
// request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer            = "pactum"
	secretEnvVariable = "PACTUM_AUTH_SECRET"

	// leeway tolerates small clock drift between token issuer and verifier.
	leeway = 5 * time.Second
)

// Party roles known to the contract domain. Tokens may carry any subset.
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleNotary = "notary"
	RoleAgent  = "agent"
)

// ErrInvalidToken indicates the token failed validation.
var ErrInvalidToken = errors.New("invalid token")

var errMissingSecret = errors.New("auth secret is not configured")

var (
	secretOnce sync.Once
	secretVal  []byte
	secretErr  error
)

func signingSecret() ([]byte, error) {
	secretOnce.Do(func() {
		raw := strings.TrimSpace(os.Getenv(secretEnvVariable))
		if raw == "" {
			secretErr = errMissingSecret
			return
		}
		secretVal = []byte(raw)
	})
	return secretVal, secretErr
}

// ResetSecretForTests clears the cached secret value. Only intended for test use.
func ResetSecretForTests() {
	secretOnce = sync.Once{}
	secretVal = nil
	secretErr = nil
}

// Claims are the JWT claims carried by API bearer tokens.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for the given party.
func IssueToken(partyID string, roles []string, ttl time.Duration) (string, error) {
	partyID = strings.TrimSpace(partyID)
	if partyID == "" {
		return "", errors.New("partyID is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be greater than zero")
	}
	key, err := signingSecret()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	claims := Claims{
		Roles: normalizeRoles(roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   partyID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken checks the signature and registered claims of a bearer token.
func VerifyToken(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	key, err := signingSecret()
	if err != nil {
		return nil, err
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{},
		func(t *jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	claims.Roles = normalizeRoles(claims.Roles)
	return claims, nil
}

func normalizeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	var out []string
	for _, role := range roles {
		role = strings.TrimSpace(strings.ToLower(role))
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

type ctxKey string

const (
	partyIDKey ctxKey = "auth_party_id"
	rolesKey   ctxKey = "auth_roles"
)

// ContextWithParty stores the authenticated party in the context.
func ContextWithParty(ctx context.Context, partyID string, roles []string) context.Context {
	ctx = context.WithValue(ctx, partyIDKey, strings.TrimSpace(partyID))
	if len(roles) > 0 {
		ctx = context.WithValue(ctx, rolesKey, normalizeRoles(roles))
	}
	return ctx
}

// PartyIDFromContext extracts the authenticated party ID from the context.
func PartyIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(partyIDKey).(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// RolesFromContext returns roles stored in the context, lower-cased.
func RolesFromContext(ctx context.Context) []string {
	v, ok := ctx.Value(rolesKey).([]string)
	if !ok || len(v) == 0 {
		return nil
	}
	out := make([]string, len(v))
	copy(out, v)
	return out
}

// HasRole reports whether the context carries the given role.
func HasRole(ctx context.Context, role string) bool {
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		return false
	}
	for _, r := range RolesFromContext(ctx) {
		if r == role {
			return true
		}
	}
	return false
}
