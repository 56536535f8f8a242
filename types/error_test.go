package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("openai")

	assert.Equal(t, ErrUpstreamError, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
	assert.True(t, errors.Is(err, root))
	assert.Contains(t, err.Error(), "root")
}

func TestError_WrappedLookup(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("ask: %w", NewIndexNotReadyError())

	assert.True(t, IsErrorCode(wrapped, ErrIndexNotReady))
	e, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, IndexNotReadyMessage, e.Message)
	assert.Equal(t, http.StatusConflict, e.HTTPStatus)
	assert.False(t, IsRetryable(wrapped))
}

func TestError_Constructors(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	tests := []struct {
		name      string
		err       *Error
		code      ErrorCode
		retryable bool
		status    int
	}{
		{"ingestion", NewIngestionError("a.pdf", cause), ErrIngestionFailure, false, http.StatusUnprocessableEntity},
		{"transient", NewTransientError("openai", "embed failed", cause), ErrTransientFailure, true, http.StatusServiceUnavailable},
		{"corrupt", NewCorruptIndexError("/tmp/idx", cause), ErrCorruptIndex, false, http.StatusInternalServerError},
		{"invalid", NewInvalidRequestError("question is required"), ErrInvalidRequest, false, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.retryable, tt.err.Retryable)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
		})
	}
}

func TestError_PlainErrors(t *testing.T) {
	t.Parallel()

	err := errors.New("plain")
	assert.False(t, IsRetryable(err))
	assert.Equal(t, ErrorCode(""), GetErrorCode(err))
	assert.False(t, IsErrorCode(nil, ErrInternalError))
}
