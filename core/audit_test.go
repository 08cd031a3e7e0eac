package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// Requirement: emitted events are stamped with an ID, a timestamp, and a
// source before delivery.
func TestEmitter_StampsEvents(t *testing.T) {
	sink := NewFakeSink()
	emitter := NewEmitter(sink, EmitterConfig{})

	emitter.Emit(Event{Kind: KindLogin, Subject: "uid-1", Severity: SeverityInfo})
	emitter.Close()

	events := sink.Events()
	if len(events) != 1 {
		t.Fatalf("delivered events = %d, want 1", len(events))
	}
	e := events[0]
	if e.ID == "" {
		t.Error("event ID should be stamped")
	}
	if e.Timestamp.IsZero() {
		t.Error("event timestamp should be stamped")
	}
	if e.Source != SourceClient {
		t.Errorf("source = %q, want %q", e.Source, SourceClient)
	}
}

// Requirement: delivery is best-effort. A failing sink is logged and
// swallowed; the caller never sees the failure.
func TestEmitter_SinkFailureSwallowed(t *testing.T) {
	sink := NewFakeSink()
	sink.WriteErr = errors.New("collector down")
	emitter := NewEmitter(sink, EmitterConfig{})

	emitter.Emit(Event{Kind: KindLogin})
	emitter.Close()

	if got := len(sink.Events()); got != 0 {
		t.Errorf("recorded events = %d, want 0", got)
	}
}

// Requirement: a full queue drops events instead of blocking the operation
// being described, and counts the drops.
func TestEmitter_FullQueueDrops(t *testing.T) {
	block := make(chan struct{})
	sink := &blockingSink{release: block}
	emitter := NewEmitter(sink, EmitterConfig{Buffer: 1, WriteTimeout: time.Minute})

	// First event occupies the worker, second fills the buffer, the rest drop.
	for i := 0; i < 5; i++ {
		emitter.Emit(Event{Kind: KindLogin})
	}

	deadline := time.Now().Add(2 * time.Second)
	for emitter.Dropped() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected drops on a full queue")
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(block)
	emitter.Close()
}

// Requirement: Emit racing Close never panics; queued events flowing in while
// the emitter shuts down are either delivered or silently lost.
func TestEmitter_CloseDuringEmit(t *testing.T) {
	sink := NewFakeSink()
	emitter := NewEmitter(sink, EmitterConfig{Buffer: 4})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				emitter.Emit(Event{Kind: KindLogin, Subject: "uid-1"})
			}
		}()
	}

	time.Sleep(time.Millisecond)
	emitter.Close()
	wg.Wait()

	// Close after the storm must stay idempotent.
	emitter.Close()
}

// Requirement: Close delivers everything already queued before returning, so
// teardown never loses accepted events.
func TestEmitter_CloseDrainsQueue(t *testing.T) {
	sink := NewFakeSink()
	emitter := NewEmitter(sink, EmitterConfig{Buffer: 16})

	const queued = 8
	for i := 0; i < queued; i++ {
		emitter.Emit(Event{Kind: KindLogout})
	}
	emitter.Close()

	if got := sink.CountKind(KindLogout); got != queued {
		t.Errorf("delivered events = %d, want %d", got, queued)
	}
	if emitter.Dropped() != 0 {
		t.Errorf("dropped = %d, want 0", emitter.Dropped())
	}
}

// Requirement: a nil sink yields a no-op emitter with no worker to stop;
// Emit and Close stay safe.
func TestEmitter_NilSink(t *testing.T) {
	emitter := NewEmitter(nil, EmitterConfig{})
	emitter.Emit(Event{Kind: KindLogin})
	emitter.Close()
	if emitter.Dropped() != 0 {
		t.Error("nil-sink emitter should report zero drops")
	}
}

// Requirement: Emit on a nil emitter is a safe no-op, so callers never guard
// the audit path.
func TestEmitter_NilSafe(t *testing.T) {
	var emitter *Emitter
	emitter.Emit(Event{Kind: KindLogin})
	emitter.Close()
	if emitter.Dropped() != 0 {
		t.Error("nil emitter should report zero drops")
	}
}

// Requirement: severities carry stable names and are ordered for filtering.
func TestSeverity(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "DEBUG"},
		{SeverityInfo, "INFO"},
		{SeverityWarning, "WARNING"},
		{SeverityError, "ERROR"},
		{SeverityCritical, "CRITICAL"},
	}
	for _, test := range tests {
		if got := test.severity.String(); got != test.want {
			t.Errorf("Severity(%d).String() = %q, want %q", test.severity, got, test.want)
		}
	}
	if !(SeverityDebug < SeverityInfo && SeverityInfo < SeverityWarning &&
		SeverityWarning < SeverityError && SeverityError < SeverityCritical) {
		t.Error("severity ranks must be ordered")
	}
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Write(ctx context.Context, event Event) error {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil
}
