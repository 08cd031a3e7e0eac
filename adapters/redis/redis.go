// Package redis persists the cached session credential in a Redis hash. The
// hash expires alongside the credential, so stale sessions clean themselves
// up without a sweeper.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/indexador/sessionkit/core"
)

const defaultKey = "sessionkit:credential"

type Adapter struct {
	client redis.UniversalClient
	key    string
}

var _ core.CredentialStore = (*Adapter)(nil)

func New(client redis.UniversalClient) *Adapter {
	return &Adapter{
		client: client,
		key:    defaultKey,
	}
}

// WithKey returns a copy of the adapter writing under a different hash key,
// for hosts that run more than one session.
func (a *Adapter) WithKey(key string) *Adapter {
	return &Adapter{client: a.client, key: key}
}

func (a *Adapter) Save(ctx context.Context, rec *core.CredentialRecord) error {
	entries, err := core.EncodeEntries(rec)
	if err != nil {
		return err
	}

	fields := make(map[string]any, len(entries))
	for k, v := range entries {
		fields[k] = v
	}

	pipe := a.client.TxPipeline()
	pipe.Del(ctx, a.key)
	pipe.HSet(ctx, a.key, fields)
	if !rec.Credential.ExpiresAt.IsZero() {
		// Keep the hash one refresh window past expiry so hydration can
		// still see the refresh token of a just-expired credential.
		pipe.ExpireAt(ctx, a.key, rec.Credential.ExpiresAt.Add(time.Hour))
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (a *Adapter) Load(ctx context.Context) (*core.CredentialRecord, error) {
	entries, err := a.client.HGetAll(ctx, a.key).Result()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, core.ErrCredentialMissing
	}
	return core.DecodeEntries(entries)
}

func (a *Adapter) Clear(ctx context.Context) error {
	return a.client.Del(ctx, a.key).Err()
}
