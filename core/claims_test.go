package core

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Requirement: the role is derived from claims on every credential adoption.
// The admin claim may arrive as a bool, string, or number.
func TestRoleFromClaims(t *testing.T) {
	tests := []struct {
		name   string
		claims map[string]any
		want   Role
	}{
		{name: "nil claims", claims: nil, want: RoleAnonymous},
		{name: "empty claims", claims: map[string]any{}, want: RoleUser},
		{name: "admin bool", claims: map[string]any{"admin": true}, want: RoleAdmin},
		{name: "admin string", claims: map[string]any{"admin": "TRUE"}, want: RoleAdmin},
		{name: "admin numeric", claims: map[string]any{"admin": float64(1)}, want: RoleAdmin},
		{name: "admin false", claims: map[string]any{"admin": false}, want: RoleUser},
		{name: "admin zero", claims: map[string]any{"admin": float64(0)}, want: RoleUser},
		{name: "admin garbage", claims: map[string]any{"admin": []string{"x"}}, want: RoleUser},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := RoleFromClaims(test.claims); got != test.want {
				t.Errorf("RoleFromClaims() = %v, want %v", got, test.want)
			}
		})
	}
}

// Requirement: identity resolution prefers the provider's user_id claim and
// falls back to the standard subject.
func TestIdentityFromClaims(t *testing.T) {
	tests := []struct {
		name   string
		claims map[string]any
		want   Identity
	}{
		{
			name:   "user_id preferred",
			claims: map[string]any{"user_id": "uid-1", "sub": "sub-1", "email": "a@x.com"},
			want:   Identity{UserID: "uid-1", Email: "a@x.com"},
		},
		{
			name:   "sub fallback",
			claims: map[string]any{"sub": "sub-1"},
			want:   Identity{UserID: "sub-1"},
		},
		{
			name:   "empty claims",
			claims: map[string]any{},
			want:   Identity{},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IdentityFromClaims(test.claims); got != test.want {
				t.Errorf("IdentityFromClaims() = %+v, want %+v", got, test.want)
			}
		})
	}
}

// Requirement: claims are read from the bearer token payload without
// signature verification; malformed tokens fail.
func TestParseClaims(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "uid-9",
		"email": "ada@example.com",
		"admin": true,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("any-key"))
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	claims, err := ParseClaims(token)
	if err != nil {
		t.Fatalf("ParseClaims() error = %v", err)
	}
	if claims["sub"] != "uid-9" || claims["email"] != "ada@example.com" {
		t.Errorf("claims = %v, want sub and email", claims)
	}
	if RoleFromClaims(claims) != RoleAdmin {
		t.Error("admin claim should survive the round trip")
	}

	if _, err := ParseClaims("not-a-token"); err == nil {
		t.Error("ParseClaims() should reject a malformed token")
	}
}
