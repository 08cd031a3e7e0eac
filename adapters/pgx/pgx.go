// Package pgx persists the cached session credential in PostgreSQL via
// pgxpool, keyed by a fixed principal so several processes sharing one
// service identity also share one session.
package pgx

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/indexador/sessionkit/core"
)

// Schema is the table the adapter reads and writes. Apply it with
// EnsureSchema or through your own migration tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS session_credentials (
	principal  TEXT PRIMARY KEY,
	credential TEXT NOT NULL,
	claims     TEXT NOT NULL DEFAULT '',
	profile    TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const defaultPrincipal = "default"

type Adapter struct {
	pool      *pgxpool.Pool
	principal string
}

var _ core.CredentialStore = (*Adapter)(nil)

func New(pool *pgxpool.Pool) *Adapter {
	return &Adapter{
		pool:      pool,
		principal: defaultPrincipal,
	}
}

// WithPrincipal returns a copy of the adapter scoped to a different row.
func (a *Adapter) WithPrincipal(principal string) *Adapter {
	return &Adapter{pool: a.pool, principal: principal}
}

func (a *Adapter) EnsureSchema(ctx context.Context) error {
	_, err := a.pool.Exec(ctx, Schema)
	return err
}

func (a *Adapter) Save(ctx context.Context, rec *core.CredentialRecord) error {
	entries, err := core.EncodeEntries(rec)
	if err != nil {
		return err
	}

	query := `INSERT INTO session_credentials (principal, credential, claims, profile, updated_at)
	          VALUES ($1, $2, $3, $4, now())
	          ON CONFLICT (principal) DO UPDATE
	          SET credential = EXCLUDED.credential,
	              claims = EXCLUDED.claims,
	              profile = EXCLUDED.profile,
	              updated_at = now()`

	_, err = a.pool.Exec(ctx, query,
		a.principal,
		entries[core.EntryCredential],
		entries[core.EntryClaims],
		entries[core.EntryProfile],
	)
	return err
}

func (a *Adapter) Load(ctx context.Context) (*core.CredentialRecord, error) {
	query := `SELECT credential, claims, profile
	          FROM session_credentials WHERE principal = $1`

	var credential, claims, profile string
	err := a.pool.QueryRow(ctx, query, a.principal).Scan(&credential, &claims, &profile)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrCredentialMissing
		}
		return nil, err
	}

	entries := map[string]string{
		core.EntryCredential: credential,
		core.EntryClaims:     claims,
		core.EntryProfile:    profile,
	}
	return core.DecodeEntries(entries)
}

func (a *Adapter) Clear(ctx context.Context) error {
	_, err := a.pool.Exec(ctx, `DELETE FROM session_credentials WHERE principal = $1`, a.principal)
	return err
}
