package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverloadedCarriesRetryHint(t *testing.T) {
	err := Overloaded("Queue is full. Service overloaded.", 2)

	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(err))
	assert.Equal(t, 2, RetryAfter(err))
	assert.Equal(t, Fatal, KindOf(err))
}

func TestHelpersWalkWrappedChain(t *testing.T) {
	base := NewRetryable("bedrock throttled", http.StatusTooManyRequests)
	wrapped := fmt.Errorf("generate: %w", base)

	assert.Equal(t, http.StatusTooManyRequests, StatusCode(wrapped))
	assert.Equal(t, Retryable, KindOf(wrapped))
	assert.Equal(t, 0, RetryAfter(wrapped))

	tagged, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, "bedrock throttled", tagged.Message)
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, Retryable, 0)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "connection reset", err.Error())
	assert.Nil(t, Wrap(nil, Fatal, 500))
}

func TestPlainErrorsAreUnclassified(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, Unclassified, KindOf(err))
	assert.Equal(t, 0, StatusCode(err))
}
