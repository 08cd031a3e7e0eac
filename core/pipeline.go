package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// APIError is the normalized shape of a failed pipeline call.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return "request failed: " + e.Message
	}
	return fmt.Sprintf("request failed: %d %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// PipelineConfig configures the enriched HTTP client.
type PipelineConfig struct {
	Client *http.Client

	// DefaultTimeout applies to ordinary calls, UploadTimeout to calls whose
	// path contains UploadMarker (binary payloads need more headroom).
	DefaultTimeout time.Duration // default 30s
	UploadTimeout  time.Duration // default 5m
	UploadMarker   string        // default "upload"

	// OnAuthExpired is the redirect signal raised after a 401 cleared the
	// session: the UI should route to the authentication entry point.
	OnAuthExpired func()

	Logger *slog.Logger
}

// Pipeline wraps an HTTP client so callers never handle credentials by hand:
// every outbound request without an explicit Authorization header gets the
// current non-expired bearer credential attached, and every response is
// classified exactly once. A 401 invalidates the session locally without
// touching the identity provider.
type Pipeline struct {
	manager *Manager
	store   CredentialStore
	client  *http.Client
	config  PipelineConfig
	log     *slog.Logger
	now     func() time.Time
}

// NewPipeline builds the pipeline around a manager. The store and clock come
// from the manager so enrichment reads the same persisted credential the
// manager writes.
func NewPipeline(manager *Manager, config PipelineConfig) *Pipeline {
	if config.Client == nil {
		config.Client = &http.Client{}
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = 30 * time.Second
	}
	if config.UploadTimeout <= 0 {
		config.UploadTimeout = 5 * time.Minute
	}
	if config.UploadMarker == "" {
		config.UploadMarker = "upload"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Pipeline{
		manager: manager,
		store:   manager.store,
		client:  config.Client,
		config:  config,
		log:     config.Logger.With("component", "pipeline"),
		now:     manager.now,
	}
}

// Do executes the request through the enrichment and classification stages.
// On success the caller owns the response body. On failure the body is
// consumed and the error is an *APIError.
func (p *Pipeline) Do(req *http.Request) (*http.Response, error) {
	req, cancel := p.applyTimeout(req)

	p.enrich(req)

	resp, err := p.client.Do(req)
	if err != nil {
		cancel()
		return nil, &APIError{
			Status:  0,
			Code:    string(CodeNetworkUnavailable),
			Message: CodeNetworkUnavailable.Message(),
			Err:     err,
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	}

	apiErr := p.classify(resp)
	cancel()

	if resp.StatusCode == http.StatusUnauthorized {
		// Sole non-manager-initiated path that can end a session. Pure local
		// cleanup: the provider may be the thing that is failing.
		p.manager.InvalidateLocal("401 response from " + req.URL.Path)
		if p.config.OnAuthExpired != nil {
			p.config.OnAuthExpired()
		}
	}
	return nil, apiErr
}

// Get issues an enriched GET.
func (p *Pipeline) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return p.Do(req)
}

// Post issues an enriched POST.
func (p *Pipeline) Post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return p.Do(req)
}

// applyTimeout picks the deadline class for the request. A deadline already
// present on the request context wins.
func (p *Pipeline) applyTimeout(req *http.Request) (*http.Request, context.CancelFunc) {
	if _, ok := req.Context().Deadline(); ok {
		return req, func() {}
	}
	timeout := p.config.DefaultTimeout
	if strings.Contains(req.URL.Path, p.config.UploadMarker) {
		timeout = p.config.UploadTimeout
	}
	ctx, cancel := context.WithTimeout(req.Context(), timeout)
	return req.WithContext(ctx), cancel
}

// enrich attaches the persisted credential as a bearer token unless the
// caller set an explicit Authorization header. Expired or absent credentials
// leave the request unauthenticated; the provider-side rejection is the
// authorization decision, not a client-side block.
func (p *Pipeline) enrich(req *http.Request) {
	if req.Header.Get("Authorization") != "" {
		return
	}

	rec, err := p.store.Load(req.Context())
	if err != nil {
		if !errors.Is(err, ErrCredentialMissing) {
			p.log.Warn("credential store read failed", "error", err)
		}
		return
	}

	cred := rec.Credential
	if cred.Token == "" || cred.Expired(p.now()) {
		return
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
}

// classify maps a non-2xx response to the normalized error shape, consuming
// the body. Error payloads are expected as {"error": {"message", "code"}} or
// flat {"error", "message", "code"}.
func (p *Pipeline) classify(resp *http.Response) *APIError {
	defer resp.Body.Close()

	apiErr := &APIError{
		Status:  resp.StatusCode,
		Message: http.StatusText(resp.StatusCode),
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || len(body) == 0 {
		return apiErr
	}

	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Code    string          `json:"code"`
	}
	if json.Unmarshal(body, &envelope) != nil {
		return apiErr
	}

	if envelope.Message != "" {
		apiErr.Message = envelope.Message
	}
	apiErr.Code = envelope.Code

	if len(envelope.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		}
		if json.Unmarshal(envelope.Error, &nested) == nil && nested.Message != "" {
			apiErr.Message = nested.Message
			if nested.Code != "" {
				apiErr.Code = nested.Code
			}
		} else {
			var plain string
			if json.Unmarshal(envelope.Error, &plain) == nil && plain != "" {
				apiErr.Message = plain
			}
		}
	}
	return apiErr
}

// cancelOnClose releases the request's timeout context when the caller
// finishes with the body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
