// Package firebase implements core.IdentityProvider against the Google
// Identity Toolkit and Secure Token REST APIs, the surface a browser-keyed
// client is allowed to use: account creation, password sign-in, and refresh
// token exchange, authenticated by an API key.
package firebase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/indexador/sessionkit/core"
)

const (
	defaultEndpoint      = "https://identitytoolkit.googleapis.com/v1"
	defaultTokenEndpoint = "https://securetoken.googleapis.com/v1"
)

// Config configures the provider client.
type Config struct {
	APIKey string

	// Optional
	Endpoint      string // Identity Toolkit base URL
	TokenEndpoint string // Secure Token base URL
	HTTPClient    *http.Client
	Clock         func() time.Time
}

// Client talks to the identity provider. It is stateless; the credential it
// is handed carries everything a call needs.
type Client struct {
	apiKey        string
	endpoint      string
	tokenEndpoint string
	http          *http.Client
	now           func() time.Time
}

var _ core.IdentityProvider = (*Client)(nil)

var ErrAPIKeyRequired = fmt.Errorf("firebase: API key is required")

func New(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrAPIKeyRequired
	}
	if config.Endpoint == "" {
		config.Endpoint = defaultEndpoint
	}
	if config.TokenEndpoint == "" {
		config.TokenEndpoint = defaultTokenEndpoint
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &Client{
		apiKey:        config.APIKey,
		endpoint:      strings.TrimRight(config.Endpoint, "/"),
		tokenEndpoint: strings.TrimRight(config.TokenEndpoint, "/"),
		http:          config.HTTPClient,
		now:           config.Clock,
	}, nil
}

type signInResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
}

// CreateAccount registers an email/password account and returns its first
// credential.
func (c *Client) CreateAccount(ctx context.Context, email, secret string) (*core.Credential, error) {
	var out signInResponse
	err := c.post(ctx, c.endpoint+"/accounts:signUp", map[string]any{
		"email":             email,
		"password":          secret,
		"returnSecureToken": true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return c.credential(out.IDToken, out.RefreshToken, out.ExpiresIn)
}

// Authenticate exchanges email/password for a credential.
func (c *Client) Authenticate(ctx context.Context, email, secret string) (*core.Credential, error) {
	var out signInResponse
	err := c.post(ctx, c.endpoint+"/accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          secret,
		"returnSecureToken": true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return c.credential(out.IDToken, out.RefreshToken, out.ExpiresIn)
}

// Invalidate is a local no-op: the API-key surface offers no server-side
// revocation, credentials simply age out at their fixed lifetime.
func (c *Client) Invalidate(ctx context.Context, cred *core.Credential) error {
	return nil
}

// CurrentCredential exchanges the refresh token for a fresh credential.
// Without force, a credential that is not yet stale is returned unchanged.
func (c *Client) CurrentCredential(ctx context.Context, cred *core.Credential, force bool) (*core.Credential, error) {
	if cred == nil || cred.RefreshToken == "" {
		return nil, core.ErrCredentialRevoked
	}
	if !force && c.now().Add(5*time.Minute).Before(cred.ExpiresAt) {
		return cred, nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.tokenEndpoint+"/token?key="+url.QueryEscape(c.apiKey),
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrNetwork, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, mapProviderError(resp.StatusCode, body)
	}

	var out struct {
		IDToken      string `json:"id_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    string `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("firebase: failed to decode token response: %w", err)
	}
	return c.credential(out.IDToken, out.RefreshToken, out.ExpiresIn)
}

// Claims decodes the claims payload carried by the ID token. Custom claims
// like "admin" sit at the root of the payload.
func (c *Client) Claims(ctx context.Context, cred *core.Credential) (map[string]any, error) {
	if cred == nil || cred.Token == "" {
		return nil, core.ErrCredentialRevoked
	}
	claims, err := core.ParseClaims(cred.Token)
	if err != nil {
		return nil, fmt.Errorf("firebase: failed to parse ID token: %w", err)
	}
	return claims, nil
}

func (c *Client) credential(token, refreshToken, expiresIn string) (*core.Credential, error) {
	if token == "" {
		return nil, fmt.Errorf("firebase: provider returned no ID token")
	}
	lifetime := core.DefaultCredentialLifetime
	if expiresIn != "" {
		if secs, err := strconv.Atoi(expiresIn); err == nil && secs > 0 {
			lifetime = time.Duration(secs) * time.Second
		}
	}
	now := c.now()
	return &core.Credential{
		Token:        token,
		RefreshToken: refreshToken,
		IssuedAt:     now,
		ExpiresAt:    now.Add(lifetime),
	}, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload map[string]any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		endpoint+"?key="+url.QueryEscape(c.apiKey), strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrNetwork, err)
	}
	if resp.StatusCode != http.StatusOK {
		return mapProviderError(resp.StatusCode, raw)
	}
	return json.Unmarshal(raw, out)
}
