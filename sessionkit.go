package sessionkit

import (
	"context"
	"log/slog"
	"time"

	"github.com/indexador/sessionkit/core"
)

// interfaces
type (
	IdentityProvider = core.IdentityProvider
	CredentialStore  = core.CredentialStore
	AuditSink        = core.AuditSink
	ChangeNotifier   = core.ChangeNotifier
)

// structs
type (
	Manager   = core.Manager
	Scheduler = core.Scheduler
	Pipeline  = core.Pipeline
	Emitter   = core.Emitter

	ManagerConfig   = core.ManagerConfig
	SchedulerConfig = core.SchedulerConfig
	PipelineConfig  = core.PipelineConfig
	EmitterConfig   = core.EmitterConfig
)

type (
	Credential       = core.Credential
	CredentialRecord = core.CredentialRecord
	Identity         = core.Identity
	Session          = core.Session
	Role             = core.Role
	State            = core.State
	Event            = core.Event
	APIError         = core.APIError
	AuthError        = core.AuthError
	Code             = core.Code
)

const (
	RoleAnonymous = core.RoleAnonymous
	RoleUser      = core.RoleUser
	RoleAdmin     = core.RoleAdmin
)

// Constructors & helpers (convenience re-exports)
var (
	DefaultSchedulerConfig = core.DefaultSchedulerConfig
	Classify               = core.Classify
	CodeOf                 = core.CodeOf
	RoleFromClaims         = core.RoleFromClaims
)

var (
	ErrAccountExists   = core.ErrAccountExists
	ErrAccountNotFound = core.ErrAccountNotFound
	ErrWrongSecret     = core.ErrWrongSecret
	ErrAccountDisabled = core.ErrAccountDisabled
	ErrWeakCredential  = core.ErrWeakCredential
	ErrRateLimited     = core.ErrRateLimited
)

var (
	ErrNotAuthenticated  = core.ErrNotAuthenticated
	ErrCredentialExpired = core.ErrCredentialExpired
	ErrCredentialRevoked = core.ErrCredentialRevoked
	ErrCredentialMissing = core.ErrCredentialMissing
)

var (
	ErrProviderRequired = core.ErrProviderRequired
	ErrStoreRequired    = core.ErrStoreRequired
)

// Config wires a complete client: the session manager plus its scheduler,
// request pipeline, and audit emitter.
type Config struct {
	Provider IdentityProvider
	Store    CredentialStore

	// Optional config
	Audit     AuditSink
	Scheduler *SchedulerConfig
	Pipeline  *PipelineConfig
	Emitter   *EmitterConfig
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Client bundles the session manager with the component stack built around
// it. All pieces share one credential store and one clock.
type Client struct {
	Manager   *Manager
	Scheduler *Scheduler
	Pipeline  *Pipeline
	Emitter   *Emitter
}

// New validates the configuration and assembles the stack. The scheduler is
// live immediately: a hydrated session starts its timers before New returns.
func New(config Config) (*Client, error) {
	if config.Provider == nil {
		return nil, ErrProviderRequired
	}
	if config.Store == nil {
		return nil, ErrStoreRequired
	}

	var emitter *Emitter
	if config.Audit != nil {
		emitterConfig := core.EmitterConfig{Logger: config.Logger}
		if config.Emitter != nil {
			emitterConfig = *config.Emitter
			if emitterConfig.Logger == nil {
				emitterConfig.Logger = config.Logger
			}
		}
		emitter = core.NewEmitter(config.Audit, emitterConfig)
	}

	manager, err := core.NewManager(core.ManagerConfig{
		Provider: config.Provider,
		Store:    config.Store,
		Emitter:  emitter,
		Logger:   config.Logger,
		Clock:    config.Clock,
	})
	if err != nil {
		if emitter != nil {
			emitter.Close()
		}
		return nil, err
	}

	schedulerConfig := DefaultSchedulerConfig()
	if config.Scheduler != nil {
		schedulerConfig = *config.Scheduler
	}
	if schedulerConfig.Logger == nil {
		schedulerConfig.Logger = config.Logger
	}

	pipelineConfig := PipelineConfig{}
	if config.Pipeline != nil {
		pipelineConfig = *config.Pipeline
	}
	if pipelineConfig.Logger == nil {
		pipelineConfig.Logger = config.Logger
	}

	return &Client{
		Manager:   manager,
		Scheduler: core.NewScheduler(manager, schedulerConfig),
		Pipeline:  core.NewPipeline(manager, pipelineConfig),
		Emitter:   emitter,
	}, nil
}

// SignUp registers a new account and establishes a session.
func (c *Client) SignUp(ctx context.Context, email, secret string) (Session, error) {
	return c.Manager.SignUp(ctx, email, secret)
}

// SignIn authenticates an existing account.
func (c *Client) SignIn(ctx context.Context, email, secret string) (Session, error) {
	return c.Manager.SignIn(ctx, email, secret)
}

// SignOut tears down the session. Idempotent.
func (c *Client) SignOut(ctx context.Context) error {
	return c.Manager.SignOut(ctx)
}

// Close stops the scheduler, the provider watcher, and drains pending audit
// events. It does not sign the session out.
func (c *Client) Close() {
	c.Scheduler.Close()
	c.Manager.Close()
	if c.Emitter != nil {
		c.Emitter.Close()
	}
}
