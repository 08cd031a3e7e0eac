package core

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// adminClaimKey is the custom claim the provider sets on promoted accounts.
const adminClaimKey = "admin"

// RoleFromClaims derives the authorization role from a claims payload.
// No claims means no credential: Anonymous.
func RoleFromClaims(claims map[string]any) Role {
	if claims == nil {
		return RoleAnonymous
	}
	if truthy(claims[adminClaimKey]) {
		return RoleAdmin
	}
	return RoleUser
}

// RoleOf derives the role for a credential. A nil credential is Anonymous.
func RoleOf(cred *Credential) Role {
	if cred == nil {
		return RoleAnonymous
	}
	return RoleFromClaims(cred.Claims)
}

// truthy interprets a boolean-convertible claim value. Providers serialize
// the admin flag as bool, string, or number depending on the SDK that set it.
func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return strings.EqualFold(val, "true") || val == "1"
	case float64:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	default:
		return false
	}
}

// IdentityFromClaims recovers the stable identity embedded in a claims
// payload. Providers emit the user id as "user_id" or standard "sub".
func IdentityFromClaims(claims map[string]any) Identity {
	id := Identity{}
	if v, ok := claims["user_id"].(string); ok && v != "" {
		id.UserID = v
	} else if v, ok := claims["sub"].(string); ok {
		id.UserID = v
	}
	if v, ok := claims["email"].(string); ok {
		id.Email = v
	}
	return id
}

// ParseClaims decodes the claims payload of a bearer token without verifying
// its signature. Verification is the provider's job; the client only reads
// back claims it was handed by the provider itself.
func ParseClaims(token string) (map[string]any, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return map[string]any(claims), nil
}
