package vision

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

type Kind int

const (
	MissingCredentials Kind = iota + 1
	InvalidCredentials
	RateLimitedOrForbidden
	NetworkError
	UpstreamError
	InvalidUpstreamResponse
)

func (k Kind) String() string {
	switch k {
	case MissingCredentials:
		return "missing_credentials"
	case InvalidCredentials:
		return "invalid_credentials"
	case RateLimitedOrForbidden:
		return "rate_limited_or_forbidden"
	case NetworkError:
		return "network_error"
	case UpstreamError:
		return "upstream_error"
	case InvalidUpstreamResponse:
		return "invalid_upstream_response"
	default:
		return "unknown"
	}
}

// Error is a classified provider failure. Every Kind is fatal to a run.
type Error struct {
	Kind     Kind
	Provider string
	Status   int
	Message  string
	Err      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case MissingCredentials:
		return fmt.Sprintf("%s: API key is not set", e.Provider)
	case InvalidCredentials:
		return fmt.Sprintf("%s: invalid API key", e.Provider)
	case RateLimitedOrForbidden:
		return fmt.Sprintf("%s %d: %s", e.Provider, e.Status, e.Message)
	case NetworkError:
		return fmt.Sprintf("%s: network error: %v", e.Provider, e.Err)
	case UpstreamError:
		return fmt.Sprintf("%s %d: %s", e.Provider, e.Status, e.Message)
	default:
		if e.Message != "" {
			return fmt.Sprintf("%s: invalid response: %s", e.Provider, e.Message)
		}
		return fmt.Sprintf("%s: invalid response", e.Provider)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of a classified error, or 0.
func KindOf(err error) Kind {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return 0
}

// FromStatus classifies a non-2xx provider response.
func FromStatus(provider string, status int, body string) *Error {
	e := &Error{Provider: provider, Status: status, Message: body}
	switch {
	case status == http.StatusUnauthorized:
		e.Kind = InvalidCredentials
	case status == http.StatusForbidden || status == http.StatusTooManyRequests:
		e.Kind = RateLimitedOrForbidden
	default:
		e.Kind = UpstreamError
	}
	return e
}

// Network wraps a transport-level failure.
func Network(provider string, err error) *Error {
	return &Error{Kind: NetworkError, Provider: provider, Err: err}
}

// Invalid reports a response without the expected text.
func Invalid(provider, msg string) *Error {
	return &Error{Kind: InvalidUpstreamResponse, Provider: provider, Message: msg}
}

// IsNetworkError reports whether err came from the transport rather than the
// remote service.
func IsNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue)
}
