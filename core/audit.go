package core

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Kind categorizes a session lifecycle event.
type Kind string

const (
	KindSignUp             Kind = "SIGNUP"
	KindSignUpFailed       Kind = "SIGNUP_FAILED"
	KindLogin              Kind = "LOGIN"
	KindLoginFailed        Kind = "LOGIN_FAILED"
	KindLogout             Kind = "LOGOUT"
	KindLogoutFailed       Kind = "LOGOUT_FAILED"
	KindTokenRefreshed     Kind = "TOKEN_REFRESHED"
	KindTokenRefreshFailed Kind = "TOKEN_REFRESH_FAILED"
)

// Severity ranks events for filtering and alerting.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "DEBUG"
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "INFO"
	}
}

// Event origin.
const (
	SourceClient    = "client"
	SourceSystem    = "system"
	SourceScheduler = "scheduler"
)

// Event is one immutable audit record. Append-only from the manager's
// perspective; duplicates and losses are acceptable, blocking is not.
type Event struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Subject   string         `json:"subject,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Severity  Severity       `json:"severityLevel"`
	Source    string         `json:"source"`
}

// EmitterConfig tunes the audit emitter.
type EmitterConfig struct {
	Buffer       int           // queued events before drops, default 64
	WriteTimeout time.Duration // per-delivery deadline, default 5s
	Logger       *slog.Logger
}

// Emitter delivers audit events to a sink without ever blocking or failing
// the operation being described. Events queue on a bounded channel consumed
// by a single worker; a full queue drops the event, a sink failure is logged
// and swallowed.
type Emitter struct {
	sink    AuditSink
	log     *slog.Logger
	timeout time.Duration
	events  chan Event
	quit    chan struct{}
	done    chan struct{}
	dropped atomic.Int64
	closed  atomic.Bool
	once    sync.Once
}

// NewEmitter starts the delivery worker. A nil sink yields a no-op emitter
// with no worker behind it.
func NewEmitter(sink AuditSink, config EmitterConfig) *Emitter {
	if sink == nil {
		return &Emitter{}
	}
	if config.Buffer <= 0 {
		config.Buffer = 64
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	e := &Emitter{
		sink:    sink,
		log:     config.Logger.With("component", "audit"),
		timeout: config.WriteTimeout,
		events:  make(chan Event, config.Buffer),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	go e.run()
	return e
}

// Emit queues an event for delivery. Safe on a nil emitter. Missing ID,
// timestamp, and source are stamped here so callers only describe the event.
func (e *Emitter) Emit(event Event) {
	if e == nil || e.sink == nil || e.closed.Load() {
		return
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Source == "" {
		event.Source = SourceClient
	}
	if event.Details == nil {
		event.Details = map[string]any{}
	}

	select {
	case e.events <- event:
	default:
		e.dropped.Add(1)
		e.log.Warn("audit queue full, event dropped", "kind", event.Kind)
	}
}

// Dropped returns how many events were discarded due to a full queue.
func (e *Emitter) Dropped() int64 {
	if e == nil {
		return 0
	}
	return e.dropped.Load()
}

// Close stops accepting events and drains the queue. Used at teardown and by
// tests that need deterministic delivery. The events channel is never closed;
// a late Emit racing Close at worst leaves an undelivered event behind.
func (e *Emitter) Close() {
	if e == nil || e.sink == nil {
		return
	}
	e.once.Do(func() {
		e.closed.Store(true)
		close(e.quit)
		<-e.done
	})
}

func (e *Emitter) run() {
	defer close(e.done)
	for {
		select {
		case event := <-e.events:
			e.deliver(event)
		case <-e.quit:
			for {
				select {
				case event := <-e.events:
					e.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (e *Emitter) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	if err := e.sink.Write(ctx, event); err != nil {
		e.log.Warn("audit delivery failed",
			"kind", event.Kind,
			"subject", event.Subject,
			"error", err,
		)
	}
}
