// Package core implements the client-side session and authorization
// lifecycle: the session state machine, the background refresh scheduler,
// the credential-enriching request pipeline, and best-effort audit emission.
// External collaborators (identity provider, credential store, audit
// collector) are consumed through the ports in interfaces.go.
package core

import "time"

// DefaultCredentialLifetime is the provider's fixed credential lifetime.
// Adapters fall back to it when the provider omits an expiry.
const DefaultCredentialLifetime = time.Hour
