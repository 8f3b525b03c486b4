package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Transport error kinds reported by provider clients
var (
	ErrTimeout          = errors.New("provider timeout")
	ErrRateLimited      = errors.New("provider rate limited")
	ErrAuthFailure      = errors.New("provider authentication failed")
	ErrTransientNetwork = errors.New("transient network error")
	ErrUnavailable      = errors.New("provider unavailable")
)

// Pipeline errors
var (
	ErrParse         = errors.New("unparseable provider response")
	ErrConfiguration = errors.New("pipeline configuration error")
	ErrUnknownTask   = errors.New("unknown prompt task")
	ErrUnknownSchema = errors.New("unknown schema kind")
	ErrInvalidAgents = errors.New("invalid agent specs")
)

// ProviderError wraps a provider failure with its error kind
type ProviderError struct {
	Provider   string
	Kind       error
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %v (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Provider, e.Kind, e.Err)
}

// Unwrap exposes both the kind sentinel and the underlying cause to errors.Is
func (e *ProviderError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// ErrorKind returns the transport kind sentinel of err, or nil if err carries none
func ErrorKind(err error) error {
	for _, kind := range []error{ErrTimeout, ErrRateLimited, ErrAuthFailure, ErrTransientNetwork, ErrUnavailable} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// kindName is the short label used in attempt logs
func kindName(kind error) string {
	switch kind {
	case ErrTimeout:
		return "timeout"
	case ErrRateLimited:
		return "rate_limited"
	case ErrAuthFailure:
		return "auth_failure"
	case ErrTransientNetwork:
		return "transient_network"
	case ErrUnavailable:
		return "unavailable"
	case ErrParse:
		return "parse_failure"
	default:
		return "unknown"
	}
}

// ClassifyHTTPStatus maps an HTTP status code to a transport error kind
func ClassifyHTTPStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrAuthFailure
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return ErrTimeout
	default:
		// 5xx and unexpected 4xx responses
		return ErrTransientNetwork
	}
}

// classifyTransportError maps a non-HTTP failure (context, net) to a kind
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return ErrTransientNetwork
}

// newProviderError builds a ProviderError, classifying err by its wrapped kind,
// the HTTP status or the transport cause in that order
func newProviderError(provider string, status int, err error) *ProviderError {
	kind := ErrorKind(err)
	switch {
	case kind != nil:
	case status > 0:
		kind = ClassifyHTTPStatus(status)
	default:
		kind = classifyTransportError(err)
	}
	return &ProviderError{Provider: provider, Kind: kind, StatusCode: status, Err: err}
}
