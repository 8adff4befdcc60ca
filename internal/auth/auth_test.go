package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"zlot-parking/internal/models"
	"zlot-parking/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/guregu/null.v4"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

type fakeProfiles struct {
	profile *models.Profile
	err     error
}

func (f *fakeProfiles) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.profile == nil {
		return nil, store.ErrNotFound
	}
	return f.profile, nil
}

func (f *fakeProfiles) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	return nil, nil
}

func TestVerify(t *testing.T) {
	v := NewVerifier(testSecret)
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{
			name:  "valid",
			token: signToken(t, testSecret, jwt.MapClaims{"sub": "u1", "email": "a@b.c", "exp": exp}),
		},
		{
			name:    "wrong secret",
			token:   signToken(t, "other", jwt.MapClaims{"sub": "u1", "exp": exp}),
			wantErr: true,
		},
		{
			name:    "expired",
			token:   signToken(t, testSecret, jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Minute).Unix()}),
			wantErr: true,
		},
		{
			name:    "missing subject",
			token:   signToken(t, testSecret, jwt.MapClaims{"exp": exp}),
			wantErr: true,
		},
		{
			name:    "garbage",
			token:   "not-a-jwt",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := v.Verify(tt.token)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidToken) {
					t.Errorf("got err %v, want ErrInvalidToken", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.ID != "u1" || p.Email != "a@b.c" {
				t.Errorf("unexpected principal %+v", p)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"Basic abc", ""},
		{"abc", ""},
		{"", ""},
	}

	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		if got := BearerToken(r); got != tt.want {
			t.Errorf("BearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestIsAdminClaims(t *testing.T) {
	tests := []struct {
		name string
		p    Principal
		want bool
	}{
		{"user metadata role", Principal{UserMetadata: map[string]any{"role": " Admin "}}, true},
		{"app metadata role", Principal{AppMetadata: map[string]any{"role": "admin"}}, true},
		{"account type", Principal{AppMetadata: map[string]any{"account_type": "admin"}}, true},
		{"user role shadows app role", Principal{UserMetadata: map[string]any{"role": "driver"}, AppMetadata: map[string]any{"role": "admin"}}, false},
		{"no claims", Principal{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.IsAdminClaims(); got != tt.want {
				t.Errorf("IsAdminClaims() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthenticateAdmin(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	dbErr := errors.New("connection refused")

	tests := []struct {
		name     string
		claims   jwt.MapClaims
		profiles *fakeProfiles
		wantErr  error
		wantProf bool
	}{
		{
			name:     "admin by claims",
			claims:   jwt.MapClaims{"sub": "u1", "exp": exp, "app_metadata": map[string]any{"role": "admin"}},
			profiles: &fakeProfiles{err: dbErr},
		},
		{
			name:     "admin by profile flag",
			claims:   jwt.MapClaims{"sub": "u1", "exp": exp},
			profiles: &fakeProfiles{profile: &models.Profile{ID: "u1", IsAdmin: true}},
			wantProf: true,
		},
		{
			name:     "admin by profile role",
			claims:   jwt.MapClaims{"sub": "u1", "exp": exp},
			profiles: &fakeProfiles{profile: &models.Profile{ID: "u1", AccountType: null.StringFrom("ADMIN")}},
			wantProf: true,
		},
		{
			name:     "no profile",
			claims:   jwt.MapClaims{"sub": "u1", "exp": exp},
			profiles: &fakeProfiles{},
			wantErr:  ErrNotAdmin,
		},
		{
			name:     "driver profile",
			claims:   jwt.MapClaims{"sub": "u1", "exp": exp},
			profiles: &fakeProfiles{profile: &models.Profile{ID: "u1", Role: null.StringFrom("driver")}},
			wantErr:  ErrNotAdmin,
		},
		{
			name:     "profile lookup fails",
			claims:   jwt.MapClaims{"sub": "u1", "exp": exp},
			profiles: &fakeProfiles{err: dbErr},
			wantErr:  dbErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(NewVerifier(testSecret), tt.profiles)
			r := httptest.NewRequest("GET", "/admin/me", nil)
			r.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, tt.claims))

			p, profile, err := g.AuthenticateAdmin(r)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("got err %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.ID != "u1" {
				t.Errorf("got principal %s, want u1", p.ID)
			}
			if (profile != nil) != tt.wantProf {
				t.Errorf("profile returned = %v, want %v", profile != nil, tt.wantProf)
			}
		})
	}
}

func TestAuthenticate_MissingToken(t *testing.T) {
	g := NewGate(NewVerifier(testSecret), &fakeProfiles{})
	_, err := g.Authenticate(httptest.NewRequest("GET", "/", nil))
	if !errors.Is(err, ErrMissingToken) {
		t.Errorf("got err %v, want ErrMissingToken", err)
	}
}
