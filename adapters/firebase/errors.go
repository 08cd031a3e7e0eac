package firebase

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/indexador/sessionkit/core"
)

// providerError is the envelope both the Identity Toolkit and Secure Token
// APIs use for failures.
type providerError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// mapProviderError translates the provider's string error codes into the
// shared sentinel set so callers never switch on provider-specific text.
func mapProviderError(status int, body []byte) error {
	var envelope providerError
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error.Message == "" {
		if status == http.StatusTooManyRequests {
			return core.ErrRateLimited
		}
		if status >= 500 {
			return fmt.Errorf("%w: provider returned status %d", core.ErrNetwork, status)
		}
		return fmt.Errorf("firebase: unexpected status %d", status)
	}

	// Messages can carry a detail suffix, e.g.
	// "WEAK_PASSWORD : Password should be at least 6 characters".
	code, _, _ := strings.Cut(envelope.Error.Message, " : ")
	code = strings.TrimSpace(code)

	switch code {
	case "EMAIL_EXISTS":
		return core.ErrAccountExists
	case "EMAIL_NOT_FOUND", "USER_NOT_FOUND":
		return core.ErrAccountNotFound
	case "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS":
		return core.ErrWrongSecret
	case "USER_DISABLED":
		return core.ErrAccountDisabled
	case "WEAK_PASSWORD":
		return core.ErrWeakCredential
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return core.ErrRateLimited
	case "TOKEN_EXPIRED":
		return core.ErrCredentialExpired
	case "INVALID_REFRESH_TOKEN", "MISSING_REFRESH_TOKEN":
		return core.ErrCredentialRevoked
	case "INVALID_EMAIL", "MISSING_EMAIL":
		return core.ErrInvalidEmail
	case "MISSING_PASSWORD":
		return core.ErrPasswordRequired
	default:
		return fmt.Errorf("firebase: %s (status %d)", envelope.Error.Message, status)
	}
}
