package core

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SchedulerConfig tunes the background refresh timers.
type SchedulerConfig struct {
	RefreshInterval time.Duration // proactive forced refresh cadence
	CheckInterval   time.Duration // expiring-soon evaluation cadence
	WarnThreshold   time.Duration // how close to expiry counts as "soon"
	Logger          *slog.Logger
}

// DefaultSchedulerConfig matches the provider's one-hour credential
// lifetime: refresh well before expiry, warn five minutes out.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		RefreshInterval: 50 * time.Minute,
		CheckInterval:   time.Minute,
		WarnThreshold:   5 * time.Minute,
	}
}

// Scheduler runs the two session timers: a refresh ticker that proactively
// forces a credential refresh, and a finer check ticker that raises the
// advisory expiring-soon flag. Its goroutine exists only while a session is
// authenticated; entering Anonymous or Error cancels it, so no timer can
// outlive the session it refreshes.
type Scheduler struct {
	manager *Manager
	config  SchedulerConfig
	log     *slog.Logger

	mu          sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
	unsubscribe func()
	closed      bool
}

// NewScheduler wires the scheduler to the manager's session transitions. If
// the manager already holds an authenticated session (hydration), the timers
// start immediately.
func NewScheduler(manager *Manager, config SchedulerConfig) *Scheduler {
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = 50 * time.Minute
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	if config.WarnThreshold <= 0 {
		config.WarnThreshold = 5 * time.Minute
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	s := &Scheduler{
		manager: manager,
		config:  config,
		log:     config.Logger.With("component", "scheduler"),
	}
	s.unsubscribe = manager.OnSessionChange(s.onSessionChange)

	if manager.Snapshot().Authenticated() {
		s.start()
	}
	return s
}

// Running reports whether the timer goroutine is alive. Teardown tests
// assert this goes false after sign-out.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Close detaches from the manager and stops the timers, waiting for the
// goroutine to exit.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubscribe := s.unsubscribe
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
		<-done
	}
}

// onSessionChange runs synchronously inside the manager's commit, so it only
// flips goroutine lifecycle and never calls back into the manager.
func (s *Scheduler) onSessionChange(session Session) {
	switch session.State {
	case StateAuthenticated, StateRefreshing:
		s.start()
	case StateAnonymous, StateError:
		s.stop()
	}
}

func (s *Scheduler) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
}

// stop cancels the timers without waiting: it may be called from the timer
// goroutine itself (a forced sign-out after a fatal refresh notifies the
// scheduler from inside its own refresh call).
func (s *Scheduler) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	refresh := time.NewTicker(s.config.RefreshInterval)
	defer refresh.Stop()
	check := time.NewTicker(s.config.CheckInterval)
	defer check.Stop()

	// Evaluate once up front so a hydrated near-expiry session warns without
	// waiting a full check interval.
	s.manager.updateExpiringSoon(s.config.WarnThreshold)

	for {
		select {
		case <-ctx.Done():
			return
		case <-refresh.C:
			if _, err := s.manager.Refresh(ctx, true); err != nil {
				// Transient failures keep the session; fatal ones force a
				// sign-out which cancels this goroutine via onSessionChange.
				s.log.Warn("scheduled refresh failed", "error", err)
			}
		case <-check.C:
			s.manager.updateExpiringSoon(s.config.WarnThreshold)
		}
	}
}
