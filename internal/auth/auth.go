// Package auth verifies bearer credentials and resolves the calling
// principal and its admin standing.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"zlot-parking/internal/models"
	"zlot-parking/internal/store"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrNotAdmin     = errors.New("admin access required")
)

const roleAdmin = "admin"

// Principal is the identity resolved from a bearer token.
type Principal struct {
	ID           string
	Email        string
	UserMetadata map[string]any
	AppMetadata  map[string]any
}

// IsAdminClaims reports whether the token claims carry the admin role.
// user_metadata.role wins over app_metadata.role, then account_type in the
// same order.
func (p *Principal) IsAdminClaims() bool {
	role := firstNonEmpty(
		claimString(p.UserMetadata, "role"),
		claimString(p.AppMetadata, "role"),
		claimString(p.UserMetadata, "account_type"),
		claimString(p.AppMetadata, "account_type"),
	)
	return role == roleAdmin
}

// IsAdminProfile reports whether the profile row grants admin access.
func IsAdminProfile(p *models.Profile) bool {
	if p == nil {
		return false
	}
	if p.IsAdmin {
		return true
	}
	return firstNonEmpty(normalizeRole(p.Role.String), normalizeRole(p.AccountType.String)) == roleAdmin
}

// Verifier checks HS256 tokens issued by the identity provider.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates tokenString and returns its principal.
func (v *Verifier) Verify(tokenString string) (*Principal, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	p := &Principal{ID: sub}
	p.Email, _ = claims["email"].(string)
	p.UserMetadata, _ = claims["user_metadata"].(map[string]any)
	p.AppMetadata, _ = claims["app_metadata"].(map[string]any)
	return p, nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Gate authenticates requests, consulting profile rows for the admin
// check when token claims are not enough.
type Gate struct {
	Verifier *Verifier
	Profiles store.ProfileStore
}

func NewGate(v *Verifier, profiles store.ProfileStore) *Gate {
	return &Gate{Verifier: v, Profiles: profiles}
}

func (g *Gate) Authenticate(r *http.Request) (*Principal, error) {
	token := BearerToken(r)
	if token == "" {
		return nil, ErrMissingToken
	}
	return g.Verifier.Verify(token)
}

// AuthenticateAdmin returns the principal and, when the claims alone did
// not prove admin, the profile row that did.
func (g *Gate) AuthenticateAdmin(r *http.Request) (*Principal, *models.Profile, error) {
	p, err := g.Authenticate(r)
	if err != nil {
		return nil, nil, err
	}
	if p.IsAdminClaims() {
		return p, nil, nil
	}

	profile, err := g.Profiles.GetProfile(r.Context(), p.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrNotAdmin
	}
	if err != nil {
		return nil, nil, fmt.Errorf("unable to validate admin profile role: %w", err)
	}
	if !IsAdminProfile(profile) {
		return nil, nil, ErrNotAdmin
	}
	return p, profile, nil
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by the auth middleware.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

func claimString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return normalizeRole(s)
}

func normalizeRole(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
