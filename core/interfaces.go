package core

import (
	"context"
)

// Ports define interfaces for external collaborators

// ============================================
// IDENTITY PROVIDER PORT
// ============================================

// IdentityProvider is the narrow surface of the external identity service.
// Credential issuance, password policy, and account storage all live on the
// provider side; the manager only orchestrates calls against it.
type IdentityProvider interface {
	// CreateAccount registers a new account and returns its first credential.
	CreateAccount(ctx context.Context, email, secret string) (*Credential, error)

	// Authenticate exchanges email and secret for a credential.
	Authenticate(ctx context.Context, email, secret string) (*Credential, error)

	// Invalidate revokes the credential with the provider. Best-effort from
	// the manager's perspective; failures never block sign-out.
	Invalidate(ctx context.Context, cred *Credential) error

	// CurrentCredential returns a credential for the already-authenticated
	// identity, refreshing when forced or when the given one is stale.
	CurrentCredential(ctx context.Context, cred *Credential, force bool) (*Credential, error)

	// Claims returns the claims payload associated with the credential.
	Claims(ctx context.Context, cred *Credential) (map[string]any, error)
}

// ProviderChange is an out-of-band notification that the provider's locally
// known identity changed (login or logout detected outside the manager).
type ProviderChange struct {
	SignedIn   bool
	Credential *Credential
}

// ChangeNotifier is an optional IdentityProvider extension. When implemented,
// the manager consumes the stream and mirrors out-of-band changes.
type ChangeNotifier interface {
	CredentialChanges() <-chan ProviderChange
}

// ============================================
// CREDENTIAL STORE PORT
// ============================================

// CredentialStore is durable, process-local persistence for the current
// credential. Save and Clear cover all three entries atomically. Written only
// by the manager; read by the pipeline and bootstrap hydration.
type CredentialStore interface {
	Save(ctx context.Context, rec *CredentialRecord) error
	Load(ctx context.Context) (*CredentialRecord, error)
	Clear(ctx context.Context) error
}

// ============================================
// AUDIT PORT
// ============================================

// AuditSink transports audit events to a collector. Implementations may be
// remote (HTTP) or local (memory); delivery guarantees are at-most-once.
type AuditSink interface {
	Write(ctx context.Context, event Event) error
}
