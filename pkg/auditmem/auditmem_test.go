package auditmem

import (
	"context"
	"testing"
	"time"

	"github.com/indexador/sessionkit/core"
)

func seed(t *testing.T, s *Sink, events ...core.Event) {
	t.Helper()
	for _, e := range events {
		if err := s.Write(context.Background(), e); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
}

// Requirement: queries filter on kind, subject, minimum severity, and time
// window, returning newest first with limit and offset paging.
func TestSink_Query(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s := New(0)
	seed(t, s,
		core.Event{ID: "1", Kind: core.KindSignUp, Subject: "uid-1", Severity: core.SeverityInfo, Timestamp: base},
		core.Event{ID: "2", Kind: core.KindLogin, Subject: "uid-1", Severity: core.SeverityInfo, Timestamp: base.Add(time.Minute)},
		core.Event{ID: "3", Kind: core.KindLoginFailed, Subject: "uid-2", Severity: core.SeverityWarning, Timestamp: base.Add(2 * time.Minute)},
		core.Event{ID: "4", Kind: core.KindTokenRefreshFailed, Subject: "uid-1", Severity: core.SeverityError, Timestamp: base.Add(3 * time.Minute)},
	)

	tests := []struct {
		name    string
		filter  Filter
		wantIDs []string
	}{
		{name: "no filter, newest first", filter: Filter{}, wantIDs: []string{"4", "3", "2", "1"}},
		{name: "by kind", filter: Filter{Kind: core.KindLogin}, wantIDs: []string{"2"}},
		{name: "by subject", filter: Filter{Subject: "uid-1"}, wantIDs: []string{"4", "2", "1"}},
		{name: "minimum severity", filter: Filter{MinSeverity: core.SeverityWarning}, wantIDs: []string{"4", "3"}},
		{name: "time window", filter: Filter{Since: base.Add(time.Minute), Until: base.Add(2 * time.Minute)}, wantIDs: []string{"3", "2"}},
		{name: "limit", filter: Filter{Limit: 2}, wantIDs: []string{"4", "3"}},
		{name: "offset pages past the newest", filter: Filter{Limit: 2, Offset: 2}, wantIDs: []string{"2", "1"}},
		{name: "offset beyond matches", filter: Filter{Offset: 10}, wantIDs: nil},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := s.Query(test.filter)
			if len(got) != len(test.wantIDs) {
				t.Fatalf("Query() returned %d events, want %d", len(got), len(test.wantIDs))
			}
			for i, want := range test.wantIDs {
				if got[i].ID != want {
					t.Errorf("Query()[%d].ID = %q, want %q", i, got[i].ID, want)
				}
			}
		})
	}
}

// Requirement: retention is capped; the oldest events are evicted first.
func TestSink_Eviction(t *testing.T) {
	s := New(3)
	seed(t, s,
		core.Event{ID: "1"},
		core.Event{ID: "2"},
		core.Event{ID: "3"},
		core.Event{ID: "4"},
	)

	events := s.Events()
	if len(events) != 3 {
		t.Fatalf("retained %d events, want 3", len(events))
	}
	if events[0].ID != "2" || events[2].ID != "4" {
		t.Errorf("retained IDs = %v, want oldest evicted", []string{events[0].ID, events[1].ID, events[2].ID})
	}
}

// Requirement: statistics aggregate by kind and severity, count distinct
// subjects, and report the share of error-severity events.
func TestSink_Stats(t *testing.T) {
	s := New(0)
	seed(t, s,
		core.Event{Kind: core.KindLogin, Subject: "uid-1", Severity: core.SeverityInfo},
		core.Event{Kind: core.KindLogin, Subject: "uid-2", Severity: core.SeverityInfo},
		core.Event{Kind: core.KindLoginFailed, Subject: "uid-2", Severity: core.SeverityWarning},
		core.Event{Kind: core.KindTokenRefreshFailed, Subject: "uid-1", Severity: core.SeverityError},
	)

	stats := s.Stats()
	if stats.Total != 4 {
		t.Errorf("Total = %d, want 4", stats.Total)
	}
	if stats.ByKind[core.KindLogin] != 2 {
		t.Errorf("ByKind[LOGIN] = %d, want 2", stats.ByKind[core.KindLogin])
	}
	if stats.BySeverity["INFO"] != 2 || stats.BySeverity["ERROR"] != 1 {
		t.Errorf("BySeverity = %v", stats.BySeverity)
	}
	if stats.Subjects != 2 {
		t.Errorf("Subjects = %d, want 2", stats.Subjects)
	}
	if stats.ErrorRate != 0.25 {
		t.Errorf("ErrorRate = %v, want 0.25", stats.ErrorRate)
	}

	if empty := New(0).Stats(); empty.Total != 0 || empty.ErrorRate != 0 {
		t.Errorf("empty stats = %+v, want zeros", empty)
	}
}
