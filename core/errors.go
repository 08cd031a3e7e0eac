package core

import (
	"context"
	"errors"
	"net"
	"net/url"
)

// Provider-classified errors
var (
	ErrAccountExists   = errors.New("account already exists")             // 409 Conflict
	ErrAccountNotFound = errors.New("account not found")                  // 404 Not Found
	ErrWrongSecret     = errors.New("invalid email or password")          // 401 Unauthorized
	ErrAccountDisabled = errors.New("account has been disabled")          // 403 Forbidden
	ErrWeakCredential  = errors.New("password does not meet policy")      // 400 Bad Request
	ErrRateLimited     = errors.New("too many attempts, try again later") // 429
	ErrNetwork         = errors.New("identity provider unreachable")      // transport
)

// Session errors
var (
	ErrNotAuthenticated  = errors.New("no active session")
	ErrSessionActive     = errors.New("a session is already active")
	ErrCredentialExpired = errors.New("credential expired")
	ErrCredentialRevoked = errors.New("credential revoked")
	ErrCredentialMissing = errors.New("no persisted credential")
	ErrRefreshDiscarded  = errors.New("refresh result discarded, session was cleared")
)

// Validation errors (caller input)
var (
	ErrEmailRequired    = errors.New("email is required")
	ErrInvalidEmail     = errors.New("invalid email format")
	ErrPasswordRequired = errors.New("password is required")
)

// Config errors
var (
	ErrProviderRequired = errors.New("identity provider is required")
	ErrStoreRequired    = errors.New("credential store is required")
)

// Code is the normalized failure taxonomy. Every provider-raised error is
// classified into exactly one code before it reaches a caller.
type Code string

const (
	CodeInvalidInput       Code = "invalid_input"
	CodeAccountConflict    Code = "account_conflict"
	CodeWeakCredential     Code = "weak_credential"
	CodeNotFound           Code = "not_found"
	CodeWrongSecret        Code = "wrong_secret"
	CodeAccountDisabled    Code = "account_disabled"
	CodeRateLimited        Code = "rate_limited"
	CodeNetworkUnavailable Code = "network_unavailable"
	CodeCredentialExpired  Code = "credential_expired"
	CodeCredentialRevoked  Code = "credential_revoked"
	CodeUnknown            Code = "unknown"
)

// Transient reports whether retrying the same operation may succeed without
// user action. The UI offers "retry" for these and "sign in again" for the
// credential-class codes.
func (c Code) Transient() bool {
	return c == CodeNetworkUnavailable || c == CodeRateLimited
}

// Fatal reports whether the code invalidates the session itself. A refresh
// failing with a fatal code forces sign-out.
func (c Code) Fatal() bool {
	return c == CodeCredentialExpired || c == CodeCredentialRevoked
}

// Message returns the stable, human-readable message for the code.
func (c Code) Message() string {
	switch c {
	case CodeInvalidInput:
		return "The email or password is malformed."
	case CodeAccountConflict:
		return "An account with this email already exists."
	case CodeWeakCredential:
		return "The password does not meet the minimum requirements."
	case CodeNotFound:
		return "No account exists for this email."
	case CodeWrongSecret:
		return "The email or password is incorrect."
	case CodeAccountDisabled:
		return "This account has been disabled."
	case CodeRateLimited:
		return "Too many attempts. Please try again later."
	case CodeNetworkUnavailable:
		return "The service is unreachable. Check your connection and retry."
	case CodeCredentialExpired:
		return "Your session has expired. Please sign in again."
	case CodeCredentialRevoked:
		return "Your session is no longer valid. Please sign in again."
	default:
		return "Something went wrong. Please try again."
	}
}

// AuthError is the classified error surfaced to callers. Raw provider errors
// never escape the manager; they are wrapped here with a taxonomy code.
type AuthError struct {
	Code    Code
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// NewAuthError wraps err under the given code with the code's stable message.
func NewAuthError(code Code, err error) *AuthError {
	return &AuthError{Code: code, Message: code.Message(), Err: err}
}

// sentinelCodes maps the sentinel errors adapters return onto the taxonomy.
var sentinelCodes = []struct {
	err  error
	code Code
}{
	{ErrAccountExists, CodeAccountConflict},
	{ErrAccountNotFound, CodeNotFound},
	{ErrWrongSecret, CodeWrongSecret},
	{ErrAccountDisabled, CodeAccountDisabled},
	{ErrWeakCredential, CodeWeakCredential},
	{ErrRateLimited, CodeRateLimited},
	{ErrNetwork, CodeNetworkUnavailable},
	{ErrCredentialExpired, CodeCredentialExpired},
	{ErrCredentialRevoked, CodeCredentialRevoked},
	{ErrNotAuthenticated, CodeCredentialExpired},
	{ErrSessionActive, CodeInvalidInput},
	{ErrEmailRequired, CodeInvalidInput},
	{ErrInvalidEmail, CodeInvalidInput},
	{ErrPasswordRequired, CodeInvalidInput},
}

// Classify maps any error onto an AuthError. Already-classified errors pass
// through unchanged; transport failures become CodeNetworkUnavailable.
func Classify(err error) *AuthError {
	if err == nil {
		return nil
	}

	var ae *AuthError
	if errors.As(err, &ae) {
		return ae
	}

	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			return NewAuthError(s.code, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewAuthError(CodeNetworkUnavailable, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return NewAuthError(CodeNetworkUnavailable, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewAuthError(CodeNetworkUnavailable, err)
	}

	return NewAuthError(CodeUnknown, err)
}

// CodeOf returns the taxonomy code for err, CodeUnknown if unclassified.
func CodeOf(err error) Code {
	if ae := Classify(err); ae != nil {
		return ae.Code
	}
	return CodeUnknown
}
