package relay

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorChaining(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(ErrUpstreamError, "provider unreachable").
		WithCause(cause).
		WithHTTPStatus(502).
		WithPlatform("deepseek").
		WithRetryable(true)

	assert.Contains(t, err.Error(), "UPSTREAM_ERROR")
	assert.Contains(t, err.Error(), "connection refused")
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, 502, err.HTTPStatus)
	assert.True(t, err.Retryable)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrAudio, CodeOf(NewError(ErrAudio, "too short")))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))

	wrapped := fmt.Errorf("outer: %w", NewError(ErrConfig, "no key"))
	assert.Equal(t, ErrConfig, CodeOf(wrapped))
}

func TestAsError(t *testing.T) {
	orig := NewError(ErrRateLimited, "slow down")
	assert.Same(t, orig, AsError(orig, ErrUpstreamError))

	foreign := errors.New("dial tcp: timeout")
	e := AsError(foreign, ErrUpstreamTimeout)
	require.NotNil(t, e)
	assert.Equal(t, ErrUpstreamTimeout, e.Code)
	assert.True(t, errors.Is(e, foreign))
}
