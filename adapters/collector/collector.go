// Package collector ships audit events to a remote collector endpoint as
// JSON over HTTP. Delivery is at-most-once; the emitter swallows failures.
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/indexador/sessionkit/core"
	"github.com/indexador/sessionkit/pkg/crypto"
)

// Config configures the collector sink.
type Config struct {
	Endpoint string

	// Optional
	HTTPClient *http.Client
	Headers    map[string]string // e.g. an Authorization header for the collector

	// HashSubjects replaces event subjects with their SHA-256 digest before
	// they leave the process, for collectors that must not see raw user IDs.
	HashSubjects bool
}

type Sink struct {
	endpoint     string
	http         *http.Client
	headers      map[string]string
	hashSubjects bool
}

var _ core.AuditSink = (*Sink)(nil)

var ErrEndpointRequired = fmt.Errorf("collector: endpoint is required")

func New(config Config) (*Sink, error) {
	if config.Endpoint == "" {
		return nil, ErrEndpointRequired
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Sink{
		endpoint:     config.Endpoint,
		http:         config.HTTPClient,
		headers:      config.Headers,
		hashSubjects: config.HashSubjects,
	}, nil
}

// wireEvent carries severity by name so the collector schema is stable even
// if the numeric ranks shift.
type wireEvent struct {
	ID        string         `json:"id"`
	Kind      core.Kind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Subject   string         `json:"subject,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Severity  string         `json:"severity"`
	Source    string         `json:"source"`
}

func (s *Sink) Write(ctx context.Context, event core.Event) error {
	subject := event.Subject
	if s.hashSubjects {
		subject = crypto.HashSubject(subject)
	}

	body, err := json.Marshal(wireEvent{
		ID:        event.ID,
		Kind:      event.Kind,
		Timestamp: event.Timestamp,
		Subject:   subject,
		Details:   event.Details,
		Severity:  event.Severity.String(),
		Source:    event.Source,
	})
	if err != nil {
		return fmt.Errorf("collector: failed to encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("collector: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("collector: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
