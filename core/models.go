package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// Credential is a short-lived bearer token issued by the identity provider.
//
// This is the "proof" - how an authenticated identity is presented to APIs
type Credential struct {
	Token        string         `json:"token"`
	RefreshToken string         `json:"-"` // Never expose in JSON
	IssuedAt     time.Time      `json:"issuedAt"`
	ExpiresAt    time.Time      `json:"expiresAt"`
	Claims       map[string]any `json:"claims,omitempty"`
}

// Expired reports whether the credential may no longer be attached to a
// request. A credential whose expiry equals now is already expired.
func (c *Credential) Expired(now time.Time) bool {
	if c == nil {
		return true
	}
	return !now.Before(c.ExpiresAt)
}

// TTL returns the remaining lifetime, zero if already expired.
func (c *Credential) TTL(now time.Time) time.Duration {
	if c.Expired(now) {
		return 0
	}
	return c.ExpiresAt.Sub(now)
}

// Identity is the stable part of a session: who the credential belongs to.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// Role is the authorization level derived from the current credential's
// claims. It is never cached independently of the credential it came from.
type Role string

const (
	RoleAnonymous Role = "anonymous"
	RoleUser      Role = "user"
	RoleAdmin     Role = "admin"
)

// State is the session lifecycle state.
type State string

const (
	StateAnonymous      State = "anonymous"
	StateAuthenticating State = "authenticating"
	StateAuthenticated  State = "authenticated"
	StateRefreshing     State = "refreshing"
	StateError          State = "error"
)

// Session is an immutable snapshot of the manager's state, handed to
// observers and reactive accessors.
type Session struct {
	State        State       `json:"state"`
	Identity     Identity    `json:"identity"`
	Credential   *Credential `json:"-"` // Never expose in JSON
	Role         Role        `json:"role"`
	ExpiringSoon bool        `json:"expiringSoon"`
	Err          error       `json:"-"`
}

// Authenticated reports whether the snapshot carries a live credential.
func (s Session) Authenticated() bool {
	return s.State == StateAuthenticated || s.State == StateRefreshing
}

// Loading reports whether an operation is in flight: establishing a session
// or refreshing its credential. UIs render a spinner on this.
func (s Session) Loading() bool {
	return s.State == StateAuthenticating || s.State == StateRefreshing
}

// CredentialRecord is what a CredentialStore persists: the credential itself
// plus an optional cached profile blob.
type CredentialRecord struct {
	Credential Credential      `json:"credential"`
	Profile    json.RawMessage `json:"profile,omitempty"`
}

// Store entry keys. Every adapter persists exactly these three string-keyed
// entries and must write and clear them together, never partially.
const (
	EntryCredential = "credential"
	EntryClaims     = "claims"
	EntryProfile    = "profile"
)

// credentialEntry is the serialized form of the EntryCredential value. Claims
// are carried separately under EntryClaims.
type credentialEntry struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	IssuedAt     time.Time `json:"issuedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// EncodeEntries flattens a record into the three store entries.
func EncodeEntries(rec *CredentialRecord) (map[string]string, error) {
	cred, err := json.Marshal(credentialEntry{
		Token:        rec.Credential.Token,
		RefreshToken: rec.Credential.RefreshToken,
		IssuedAt:     rec.Credential.IssuedAt,
		ExpiresAt:    rec.Credential.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode credential entry: %w", err)
	}

	claims := rec.Credential.Claims
	if claims == nil {
		claims = map[string]any{}
	}
	claimsBlob, err := json.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to encode claims entry: %w", err)
	}

	entries := map[string]string{
		EntryCredential: string(cred),
		EntryClaims:     string(claimsBlob),
	}
	if len(rec.Profile) > 0 {
		entries[EntryProfile] = string(rec.Profile)
	}
	return entries, nil
}

// DecodeEntries rebuilds a record from store entries. A missing credential
// entry means nothing is persisted.
func DecodeEntries(entries map[string]string) (*CredentialRecord, error) {
	raw, ok := entries[EntryCredential]
	if !ok || raw == "" {
		return nil, ErrCredentialMissing
	}

	var ce credentialEntry
	if err := json.Unmarshal([]byte(raw), &ce); err != nil {
		return nil, fmt.Errorf("failed to decode credential entry: %w", err)
	}

	rec := &CredentialRecord{
		Credential: Credential{
			Token:        ce.Token,
			RefreshToken: ce.RefreshToken,
			IssuedAt:     ce.IssuedAt,
			ExpiresAt:    ce.ExpiresAt,
		},
	}

	if claims, ok := entries[EntryClaims]; ok && claims != "" {
		parsed := map[string]any{}
		if err := json.Unmarshal([]byte(claims), &parsed); err != nil {
			return nil, fmt.Errorf("failed to decode claims entry: %w", err)
		}
		rec.Credential.Claims = parsed
	}
	if profile, ok := entries[EntryProfile]; ok && profile != "" {
		rec.Profile = json.RawMessage(profile)
	}
	return rec, nil
}
