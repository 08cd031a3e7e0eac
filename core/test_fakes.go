package core

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// FakeProvider is a test-only fake implementing IdentityProvider. It issues
// scripted credentials and exposes error fields for behavior injection plus
// call counters for single-flight assertions.
type FakeProvider struct {
	mu sync.Mutex

	// scripted behavior
	Lifetime     time.Duration
	NextClaims   map[string]any
	CreateErr    error
	AuthErr      error
	RefreshErr   error
	ClaimsErr    error
	InvalidErr   error
	RefreshDelay time.Duration
	RefreshGate  chan struct{} // when set, refresh blocks until it closes

	// counters
	CreateCalls  int
	AuthCalls    int
	RefreshCalls int
	ClaimsCalls  int
	InvalidCalls int

	seq     int
	now     func() time.Time
	changes chan ProviderChange
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		Lifetime: time.Hour,
		now:      time.Now,
	}
}

// WithClock pins credential timestamps to a fake clock.
func (f *FakeProvider) WithClock(now func() time.Time) *FakeProvider {
	f.now = now
	return f
}

// WithChanges makes the fake a ChangeNotifier.
func (f *FakeProvider) WithChanges() *FakeProvider {
	f.changes = make(chan ProviderChange, 4)
	return f
}

func (f *FakeProvider) CredentialChanges() <-chan ProviderChange { return f.changes }

func (f *FakeProvider) PushChange(change ProviderChange) { f.changes <- change }

func (f *FakeProvider) issue(email string) *Credential {
	f.seq++
	now := f.now()
	claims := map[string]any{
		"user_id": "uid-1",
		"email":   email,
	}
	for k, v := range f.NextClaims {
		claims[k] = v
	}
	return &Credential{
		Token:        "tok-" + strconv.Itoa(f.seq),
		RefreshToken: "refresh-" + strconv.Itoa(f.seq),
		IssuedAt:     now,
		ExpiresAt:    now.Add(f.Lifetime),
		Claims:       claims,
	}
}

func (f *FakeProvider) CreateAccount(ctx context.Context, email, secret string) (*Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateCalls++
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	return f.issue(email), nil
}

func (f *FakeProvider) Authenticate(ctx context.Context, email, secret string) (*Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AuthCalls++
	if f.AuthErr != nil {
		return nil, f.AuthErr
	}
	return f.issue(email), nil
}

func (f *FakeProvider) Invalidate(ctx context.Context, cred *Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.InvalidCalls++
	return f.InvalidErr
}

func (f *FakeProvider) CurrentCredential(ctx context.Context, cred *Credential, force bool) (*Credential, error) {
	f.mu.Lock()
	f.RefreshCalls++
	err := f.RefreshErr
	gate := f.RefreshGate
	delay := f.RefreshDelay
	var next *Credential
	if err == nil {
		email, _ := cred.Claims["email"].(string)
		if email == "" {
			email = "hydrated@example.com"
		}
		next = f.issue(email)
	}
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (f *FakeProvider) Claims(ctx context.Context, cred *Credential) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ClaimsCalls++
	if f.ClaimsErr != nil {
		return nil, f.ClaimsErr
	}
	return cred.Claims, nil
}

// Refreshes returns the provider call count for the refresh surface.
func (f *FakeProvider) Refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.RefreshCalls
}

// FakeStore is a test-only in-memory CredentialStore with injectable errors.
type FakeStore struct {
	mu       sync.Mutex
	rec      *CredentialRecord
	SaveErr  error
	LoadErr  error
	ClearErr error

	Saves  int
	Clears int
}

func NewFakeStore() *FakeStore { return &FakeStore{} }

func (s *FakeStore) Save(ctx context.Context, rec *CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	clone := *rec
	s.rec = &clone
	s.Saves++
	return nil
}

func (s *FakeStore) Load(ctx context.Context) (*CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	if s.rec == nil {
		return nil, ErrCredentialMissing
	}
	clone := *s.rec
	return &clone, nil
}

func (s *FakeStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ClearErr != nil {
		return s.ClearErr
	}
	s.rec = nil
	s.Clears++
	return nil
}

// Empty reports whether nothing is persisted.
func (s *FakeStore) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec == nil
}

// Seed installs a record directly, bypassing Save counters.
func (s *FakeStore) Seed(rec *CredentialRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = rec
}

// FakeSink is a test-only AuditSink recording every event it receives.
type FakeSink struct {
	mu       sync.Mutex
	events   []Event
	WriteErr error
}

func NewFakeSink() *FakeSink { return &FakeSink{} }

func (s *FakeSink) Write(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return s.WriteErr
	}
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of everything recorded.
func (s *FakeSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// CountKind counts recorded events of one kind.
func (s *FakeSink) CountKind(kind Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
