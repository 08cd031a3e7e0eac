// Package auditmem is an in-memory AuditSink with filtered queries and
// aggregate statistics, for local inspection of session activity and for
// tests that assert on emitted events.
package auditmem

import (
	"context"
	"sync"
	"time"

	"github.com/indexador/sessionkit/core"
)

const defaultMaxEvents = 1000

// Sink retains the most recent events up to a cap, newest last.
type Sink struct {
	mu     sync.RWMutex
	events []core.Event
	max    int
}

var _ core.AuditSink = (*Sink)(nil)

// New creates a sink retaining at most max events (0 means the default cap).
func New(max int) *Sink {
	if max <= 0 {
		max = defaultMaxEvents
	}
	return &Sink{max: max}
}

func (s *Sink) Write(ctx context.Context, event core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if len(s.events) > s.max {
		s.events = s.events[len(s.events)-s.max:]
	}
	return nil
}

// Filter narrows a query. Zero values mean "any".
type Filter struct {
	Kind        core.Kind
	Subject     string
	MinSeverity core.Severity
	Since       time.Time
	Until       time.Time
	Limit       int
	Offset      int
}

// Query returns matching events, newest first.
func (s *Sink) Query(f Filter) []core.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []core.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if f.Kind != "" && e.Kind != f.Kind {
			continue
		}
		if f.Subject != "" && e.Subject != f.Subject {
			continue
		}
		if e.Severity < f.MinSeverity {
			continue
		}
		if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
			continue
		}
		matched = append(matched, e)
	}

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched
}

// Events returns everything retained, oldest first.
func (s *Sink) Events() []core.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Stats summarizes retained events.
type Stats struct {
	Total      int               `json:"total"`
	ByKind     map[core.Kind]int `json:"byKind"`
	BySeverity map[string]int    `json:"bySeverity"`
	Subjects   int               `json:"subjects"`
	ErrorRate  float64           `json:"errorRate"`
}

func (s *Sink) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		ByKind:     make(map[core.Kind]int),
		BySeverity: make(map[string]int),
	}
	subjects := map[string]struct{}{}
	errored := 0
	for _, e := range s.events {
		stats.ByKind[e.Kind]++
		stats.BySeverity[e.Severity.String()]++
		if e.Subject != "" {
			subjects[e.Subject] = struct{}{}
		}
		if e.Severity >= core.SeverityError {
			errored++
		}
	}
	stats.Total = len(s.events)
	stats.Subjects = len(subjects)
	if stats.Total > 0 {
		stats.ErrorRate = float64(errored) / float64(stats.Total)
	}
	return stats
}
