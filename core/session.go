package core

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ManagerConfig configures the session manager.
type ManagerConfig struct {
	Provider IdentityProvider
	Store    CredentialStore

	// Optional
	Emitter     *Emitter
	Logger      *slog.Logger
	Clock       func() time.Time
	StaleWindow time.Duration // non-forced refresh triggers inside this window, default 5m
}

// Manager owns the authentication lifecycle: sign-up, sign-in, sign-out,
// credential refresh, claim-derived authorization, and failure
// classification. It is the only component allowed to write the credential
// store, and all session transitions commit under a single-writer lock.
type Manager struct {
	provider    IdentityProvider
	store       CredentialStore
	emitter     *Emitter
	log         *slog.Logger
	now         func() time.Time
	staleWindow time.Duration

	// notifyMu serializes commits and observer callbacks so listeners see
	// transitions in commit order. Listeners must not call back into the
	// manager synchronously.
	notifyMu sync.Mutex

	mu           sync.Mutex
	state        State
	identity     Identity
	cred         *Credential
	role         Role
	lastErr      error
	expiringSoon bool
	profile      json.RawMessage
	epoch        uint64
	signingOut   bool
	listeners    map[int]func(Session)
	nextListener int

	group singleflight.Group

	watchStop chan struct{}
	watchDone chan struct{}
	closeOnce sync.Once
}

// NewManager validates the configuration, hydrates any persisted session,
// and begins consuming the provider's change stream when one is offered.
func NewManager(config ManagerConfig) (*Manager, error) {
	if config.Provider == nil {
		return nil, ErrProviderRequired
	}
	if config.Store == nil {
		return nil, ErrStoreRequired
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.StaleWindow <= 0 {
		config.StaleWindow = 5 * time.Minute
	}

	m := &Manager{
		provider:    config.Provider,
		store:       config.Store,
		emitter:     config.Emitter,
		log:         config.Logger.With("component", "session"),
		now:         config.Clock,
		staleWindow: config.StaleWindow,
		state:       StateAnonymous,
		role:        RoleAnonymous,
		listeners:   make(map[int]func(Session)),
	}

	hydrateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m.hydrate(hydrateCtx)

	if notifier, ok := config.Provider.(ChangeNotifier); ok {
		m.watchStop = make(chan struct{})
		m.watchDone = make(chan struct{})
		go m.watch(notifier.CredentialChanges())
	}

	return m, nil
}

// Close stops the provider change watcher. It does not sign the session out.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		if m.watchStop != nil {
			close(m.watchStop)
			<-m.watchDone
		}
	})
}

// ============================================
// REACTIVE ACCESSORS
// ============================================

// Snapshot returns the current session state.
func (m *Manager) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) State() State       { return m.Snapshot().State }
func (m *Manager) Role() Role         { return m.Snapshot().Role }
func (m *Manager) Identity() Identity { return m.Snapshot().Identity }
func (m *Manager) ExpiringSoon() bool { return m.Snapshot().ExpiringSoon }
func (m *Manager) Err() error         { return m.Snapshot().Err }

// Profile returns the cached profile blob persisted alongside the credential.
func (m *Manager) Profile() json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profile
}

// OnSessionChange registers a listener invoked synchronously after each
// committed state transition. The returned function unsubscribes it.
func (m *Manager) OnSessionChange(listener func(Session)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = listener
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// ============================================
// SIGN-UP / SIGN-IN
// ============================================

type authFlow int

const (
	flowSignUp authFlow = iota
	flowSignIn
)

// SignUp registers a new account with the identity provider and establishes
// an authenticated session for it.
func (m *Manager) SignUp(ctx context.Context, email, secret string) (Session, error) {
	return m.establish(ctx, email, secret, flowSignUp)
}

// SignIn authenticates an existing account. Failures are classified so the
// caller can render an actionable message without seeing provider internals.
func (m *Manager) SignIn(ctx context.Context, email, secret string) (Session, error) {
	return m.establish(ctx, email, secret, flowSignIn)
}

func (m *Manager) establish(ctx context.Context, email, secret string, flow authFlow) (Session, error) {
	okKind, failKind := KindLogin, KindLoginFailed
	if flow == flowSignUp {
		okKind, failKind = KindSignUp, KindSignUpFailed
	}

	if err := validateCredentials(email, secret); err != nil {
		ae := Classify(err)
		m.emit(failKind, "", SeverityWarning, map[string]any{"email": email, "reason": string(ae.Code)})
		return m.Snapshot(), ae
	}

	var epoch uint64
	snap, ok := m.commit(func() bool {
		if m.state == StateAuthenticating || m.cred != nil {
			return false
		}
		epoch = m.epoch
		m.state = StateAuthenticating
		m.lastErr = nil
		return true
	})
	if !ok {
		return snap, NewAuthError(CodeInvalidInput, ErrSessionActive)
	}

	var cred *Credential
	var err error
	if flow == flowSignUp {
		cred, err = m.provider.CreateAccount(ctx, email, secret)
	} else {
		cred, err = m.provider.Authenticate(ctx, email, secret)
	}
	if err == nil {
		// Force-refresh immediately after issuance so the claims reflect
		// custom claims set during account provisioning.
		cred, err = m.provider.CurrentCredential(ctx, cred, true)
	}
	if err == nil {
		err = m.attachClaims(ctx, cred)
	}

	if err != nil {
		ae := Classify(err)
		snap, _ = m.commit(func() bool {
			if m.epoch != epoch {
				return false
			}
			if ae.Code.Transient() || ae.Code == CodeUnknown {
				m.state = StateError
				m.lastErr = ae
			} else {
				// The caller can correct and retry; no session existed, so
				// none is destroyed and the state machine stays put.
				m.state = StateAnonymous
				m.lastErr = nil
			}
			return true
		})
		m.emit(failKind, "", SeverityWarning, map[string]any{"email": email, "reason": string(ae.Code)})
		return snap, ae
	}

	identity := IdentityFromClaims(cred.Claims)
	snap, ok = m.commit(func() bool {
		if m.epoch != epoch {
			return false
		}
		m.adoptLocked(identity, cred)
		return true
	})
	if !ok {
		return m.Snapshot(), NewAuthError(CodeUnknown, ErrRefreshDiscarded)
	}

	m.persist(ctx, cred)
	m.emit(okKind, identity.UserID, SeverityInfo, map[string]any{"email": identity.Email})
	return snap, nil
}

// ============================================
// SIGN-OUT
// ============================================

// SignOut tears the session down: the LOGOUT event is attempted before local
// state is wiped, the provider invalidation is best-effort, and the store is
// cleared atomically. Calling it with no active session is a no-op.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	if m.cred == nil || m.signingOut {
		m.mu.Unlock()
		return nil
	}
	m.signingOut = true
	cred := m.cred
	subject := m.identity.UserID
	m.mu.Unlock()

	// Fire-before-clear: attempted before the wipe, never blocking it.
	m.emit(KindLogout, subject, SeverityInfo, nil)

	if err := m.provider.Invalidate(ctx, cred); err != nil {
		m.log.Warn("provider invalidate failed", "error", err)
		m.emit(KindLogoutFailed, subject, SeverityWarning, map[string]any{"reason": string(CodeOf(err))})
	}

	m.commit(func() bool {
		m.epoch++
		m.signingOut = false
		m.resetLocked(nil)
		return true
	})

	// The commit above may cancel the caller's context (a scheduler-driven
	// sign-out cancels the scheduler), but the wipe must still happen.
	clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	m.clearStore(clearCtx)
	return nil
}

// InvalidateLocal clears the session without calling the identity provider.
// This is the 401 path: the provider already rejected the credential, so the
// cleanup must not depend on it being reachable.
func (m *Manager) InvalidateLocal(reason string) {
	m.mu.Lock()
	active := m.cred != nil
	m.mu.Unlock()
	if !active {
		return
	}

	m.commit(func() bool {
		if m.cred == nil {
			return false
		}
		m.epoch++
		m.resetLocked(nil)
		return true
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.clearStore(ctx)
	m.log.Info("session invalidated locally", "reason", reason)
}

// ============================================
// REFRESH
// ============================================

// Refresh obtains a current credential. Non-forced calls return the held
// credential unchanged while it is fresh. Concurrent calls share a single
// provider call. A transient failure leaves the session intact; a fatal one
// (credential revoked or expired at the provider) forces sign-out. A result
// arriving after the session was cleared is discarded.
func (m *Manager) Refresh(ctx context.Context, force bool) (*Credential, error) {
	m.mu.Lock()
	if m.cred == nil {
		m.mu.Unlock()
		return nil, Classify(ErrNotAuthenticated)
	}
	cred := m.cred
	subject := m.identity.UserID
	epoch := m.epoch
	if !force && !m.staleLocked(cred) {
		m.mu.Unlock()
		return cred, nil
	}
	m.mu.Unlock()

	m.commit(func() bool {
		if m.epoch != epoch || m.state != StateAuthenticated {
			return false
		}
		m.state = StateRefreshing
		return true
	})

	// Only the caller whose closure ran owns the post-adoption side effects.
	// Deduped callers share the result but must not persist or emit again.
	executed := false
	v, err, _ := m.group.Do("refresh", func() (any, error) {
		executed = true
		next, err := m.provider.CurrentCredential(ctx, cred, force)
		if err != nil {
			return nil, err
		}
		if err := m.attachClaims(ctx, next); err != nil {
			return nil, err
		}
		return next, nil
	})

	if err != nil {
		ae := Classify(err)
		if ae.Code.Fatal() {
			m.emit(KindTokenRefreshFailed, subject, SeverityError,
				map[string]any{"reason": string(ae.Code), "fatal": true})
			if signOutErr := m.SignOut(ctx); signOutErr != nil {
				m.log.Warn("forced sign-out after fatal refresh failed", "error", signOutErr)
			}
			return nil, ae
		}
		// Transient: the prior authenticated state survives. A network blip
		// during a scheduled refresh must not log the user out.
		m.commit(func() bool {
			if m.epoch != epoch || m.state != StateRefreshing {
				return false
			}
			m.state = StateAuthenticated
			return true
		})
		m.emit(KindTokenRefreshFailed, subject, SeverityWarning,
			map[string]any{"reason": string(ae.Code)})
		return nil, ae
	}

	next := v.(*Credential)
	_, ok := m.commit(func() bool {
		if m.epoch != epoch {
			return false
		}
		m.adoptLocked(IdentityFromClaims(next.Claims), next)
		return true
	})
	if !ok {
		return nil, NewAuthError(CodeUnknown, ErrRefreshDiscarded)
	}

	if executed {
		m.persist(ctx, next)
		m.emit(KindTokenRefreshed, subject, SeverityInfo, nil)
	}
	return next, nil
}

// FreshCredential returns a credential guaranteed fresh at the time of the
// call, refreshing first only when the held one is stale.
func (m *Manager) FreshCredential(ctx context.Context) (*Credential, error) {
	return m.Refresh(ctx, false)
}

// CacheProfile persists an opaque profile blob alongside the credential so
// it survives restarts with the session.
func (m *Manager) CacheProfile(ctx context.Context, profile json.RawMessage) error {
	m.mu.Lock()
	if m.cred == nil {
		m.mu.Unlock()
		return Classify(ErrNotAuthenticated)
	}
	m.profile = profile
	cred := *m.cred
	m.mu.Unlock()

	return m.store.Save(ctx, &CredentialRecord{Credential: cred, Profile: profile})
}

// ============================================
// INTERNALS
// ============================================

// commit applies mutate under the single-writer discipline and synchronously
// notifies observers of the committed snapshot. mutate runs with the state
// lock held, must not block, and returns false to abandon the commit (stale
// epoch, precondition no longer true).
func (m *Manager) commit(mutate func() bool) (Session, bool) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if !mutate() {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, false
	}
	snap := m.snapshotLocked()
	listeners := make([]func(Session), 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
	return snap, true
}

func (m *Manager) snapshotLocked() Session {
	return Session{
		State:        m.state,
		Identity:     m.identity,
		Credential:   m.cred,
		Role:         m.role,
		ExpiringSoon: m.expiringSoon,
		Err:          m.lastErr,
	}
}

// adoptLocked installs a credential and recomputes everything derived from
// it. Role is always derived here, from these claims, never reused.
func (m *Manager) adoptLocked(identity Identity, cred *Credential) {
	m.identity = identity
	m.cred = cred
	m.role = RoleOf(cred)
	m.state = StateAuthenticated
	m.lastErr = nil
	m.expiringSoon = false
}

func (m *Manager) resetLocked(err error) {
	m.identity = Identity{}
	m.cred = nil
	m.role = RoleAnonymous
	m.expiringSoon = false
	m.profile = nil
	m.lastErr = err
	if err != nil {
		m.state = StateError
	} else {
		m.state = StateAnonymous
	}
}

func (m *Manager) staleLocked(cred *Credential) bool {
	now := m.now()
	return cred.Expired(now) || now.Add(m.staleWindow).After(cred.ExpiresAt)
}

// updateExpiringSoon recomputes the advisory expiring-soon flag. Called by
// the scheduler's check timer; it never triggers a refresh itself.
func (m *Manager) updateExpiringSoon(threshold time.Duration) {
	m.mu.Lock()
	if m.cred == nil {
		m.mu.Unlock()
		return
	}
	soon := m.now().Add(threshold).After(m.cred.ExpiresAt)
	changed := soon != m.expiringSoon
	m.mu.Unlock()
	if !changed {
		return
	}

	m.commit(func() bool {
		if m.cred == nil {
			return false
		}
		m.expiringSoon = soon
		return true
	})
}

func (m *Manager) attachClaims(ctx context.Context, cred *Credential) error {
	claims, err := m.provider.Claims(ctx, cred)
	if err != nil {
		return err
	}
	cred.Claims = claims
	return nil
}

func (m *Manager) persist(ctx context.Context, cred *Credential) {
	m.mu.Lock()
	profile := m.profile
	m.mu.Unlock()

	rec := &CredentialRecord{Credential: *cred, Profile: profile}
	if err := m.store.Save(ctx, rec); err != nil {
		m.log.Warn("credential store save failed", "error", err)
	}
}

func (m *Manager) clearStore(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		m.log.Warn("credential store clear failed", "error", err)
	}
}

func (m *Manager) emit(kind Kind, subject string, severity Severity, details map[string]any) {
	if m.emitter == nil {
		return
	}
	m.emitter.Emit(Event{
		Kind:     kind,
		Subject:  subject,
		Severity: severity,
		Details:  details,
		Source:   SourceClient,
	})
}

// hydrate restores a persisted, non-expired session at construction time.
// Runs before any observer can subscribe, so it commits without notifying.
func (m *Manager) hydrate(ctx context.Context) {
	rec, err := m.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrCredentialMissing) {
			m.log.Warn("credential store load failed", "error", err)
		}
		return
	}

	cred := rec.Credential
	if cred.Expired(m.now()) {
		m.clearStore(ctx)
		return
	}

	m.mu.Lock()
	m.profile = rec.Profile
	m.adoptLocked(IdentityFromClaims(cred.Claims), &cred)
	m.mu.Unlock()
}

func (m *Manager) watch(changes <-chan ProviderChange) {
	defer close(m.watchDone)
	for {
		select {
		case <-m.watchStop:
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			m.handleProviderChange(change)
		}
	}
}

// handleProviderChange mirrors an out-of-band provider transition: a
// sign-out elsewhere clears this session locally, a sign-in adopts the
// credential the provider already holds.
func (m *Manager) handleProviderChange(change ProviderChange) {
	if !change.SignedIn {
		m.InvalidateLocal("provider reported sign-out")
		return
	}
	cred := change.Credential
	if cred == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if cred.Claims == nil {
		if err := m.attachClaims(ctx, cred); err != nil {
			m.log.Warn("claims fetch for provider change failed", "error", err)
			return
		}
	}

	_, ok := m.commit(func() bool {
		m.adoptLocked(IdentityFromClaims(cred.Claims), cred)
		return true
	})
	if ok {
		m.persist(ctx, cred)
	}
}

func validateCredentials(email, secret string) error {
	if email == "" {
		return ErrEmailRequired
	}
	if !strings.Contains(email, "@") {
		return ErrInvalidEmail
	}
	if secret == "" {
		return ErrPasswordRequired
	}
	return nil
}
