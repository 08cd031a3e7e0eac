// Package store provides process-local CredentialStore implementations: a
// volatile in-memory store and a sealed file store that survives restarts.
package store

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/indexador/sessionkit/core"
)

// MemoryStats are simple counters for store behavior, intended for
// diagnostics and tests.
type MemoryStats struct {
	Loads  int64 `json:"loads"`
	Misses int64 `json:"misses"`
	Saves  int64 `json:"saves"`
	Clears int64 `json:"clears"`
}

// Memory is a volatile CredentialStore. Sessions do not survive a process
// restart with it; use File for durable persistence.
type Memory struct {
	mu  sync.RWMutex
	rec *core.CredentialRecord

	// counters
	loads  int64
	misses int64
	saves  int64
	clears int64
}

var _ core.CredentialStore = (*Memory)(nil)

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Save(ctx context.Context, rec *core.CredentialRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *rec
	m.rec = &clone
	atomic.AddInt64(&m.saves, 1)
	return nil
}

func (m *Memory) Load(ctx context.Context) (*core.CredentialRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	atomic.AddInt64(&m.loads, 1)
	if m.rec == nil {
		atomic.AddInt64(&m.misses, 1)
		return nil, core.ErrCredentialMissing
	}
	clone := *m.rec
	return &clone, nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = nil
	atomic.AddInt64(&m.clears, 1)
	return nil
}

func (m *Memory) Stats() MemoryStats {
	return MemoryStats{
		Loads:  atomic.LoadInt64(&m.loads),
		Misses: atomic.LoadInt64(&m.misses),
		Saves:  atomic.LoadInt64(&m.saves),
		Clears: atomic.LoadInt64(&m.clears),
	}
}
