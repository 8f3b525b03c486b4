package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrAuthFailure},
		{http.StatusForbidden, ErrAuthFailure},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusRequestTimeout, ErrTimeout},
		{http.StatusGatewayTimeout, ErrTimeout},
		{http.StatusInternalServerError, ErrTransientNetwork},
		{http.StatusServiceUnavailable, ErrTransientNetwork},
		{http.StatusBadRequest, ErrTransientNetwork},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyHTTPStatus(tt.status))
		})
	}
}

func TestNewProviderErrorClassification(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name   string
		status int
		err    error
		want   error
	}{
		{"wrapped kind wins over status", http.StatusBadGateway, fmt.Errorf("%w: bad body", ErrRateLimited), ErrRateLimited},
		{"status", http.StatusTooManyRequests, cause, ErrRateLimited},
		{"deadline", 0, fmt.Errorf("send: %w", context.DeadlineExceeded), ErrTimeout},
		{"other transport", 0, cause, ErrTransientNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perr := newProviderError("openai", tt.status, tt.err)
			assert.Equal(t, tt.want, perr.Kind)
			assert.ErrorIs(t, perr, tt.want)
			assert.ErrorIs(t, perr, tt.err)
			assert.Equal(t, tt.want, ErrorKind(perr))
		})
	}
}

func TestProviderErrorMessage(t *testing.T) {
	perr := &ProviderError{Provider: "gemini", Kind: ErrAuthFailure, StatusCode: 401, Err: errors.New("invalid key")}
	assert.Equal(t, "gemini: provider authentication failed (status 401): invalid key", perr.Error())

	perr = &ProviderError{Provider: "compat", Kind: ErrTimeout, Err: errors.New("slow")}
	assert.Equal(t, "compat: provider timeout: slow", perr.Error())
}

func TestErrorKindAndName(t *testing.T) {
	assert.Nil(t, ErrorKind(errors.New("plain")))
	assert.Nil(t, ErrorKind(nil))
	assert.Equal(t, "timeout", kindName(ErrTimeout))
	assert.Equal(t, "parse_failure", kindName(ErrParse))
	assert.Equal(t, "unknown", kindName(nil))
}
