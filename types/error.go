package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across policyqa.
type ErrorCode string

// Pipeline error codes
const (
	ErrIndexNotReady      ErrorCode = "INDEX_NOT_READY"
	ErrIngestionFailure   ErrorCode = "INGESTION_FAILURE"
	ErrTransientFailure   ErrorCode = "TRANSIENT_CAPABILITY_FAILURE"
	ErrCorruptIndex       ErrorCode = "CORRUPT_INDEX"
	ErrDimensionMismatch  ErrorCode = "DIMENSION_MISMATCH"
	ErrUnsupportedFormat  ErrorCode = "UNSUPPORTED_FORMAT"
	ErrStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
)

// Transport and upstream error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// IndexNotReadyMessage is returned to callers asking before any policy was indexed.
const IndexNotReadyMessage = "No policies indexed yet. Please upload policies first."

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// =============================================================================
// 常用错误构造
// =============================================================================

// NewIndexNotReadyError 索引尚未建立（没有任何已索引的政策）
func NewIndexNotReadyError() *Error {
	return NewError(ErrIndexNotReady, IndexNotReadyMessage).WithHTTPStatus(http.StatusConflict)
}

// NewIngestionError 单个文档摄入失败
func NewIngestionError(source string, cause error) *Error {
	return NewError(ErrIngestionFailure, fmt.Sprintf("failed to ingest %s", source)).
		WithCause(cause).
		WithHTTPStatus(http.StatusUnprocessableEntity)
}

// NewTransientError 外部能力（embedding / generation）临时失败，可重试
func NewTransientError(provider, message string, cause error) *Error {
	return NewError(ErrTransientFailure, message).
		WithCause(cause).
		WithProvider(provider).
		WithRetryable(true).
		WithHTTPStatus(http.StatusServiceUnavailable)
}

// NewCorruptIndexError 持久化的索引数据无法读取
func NewCorruptIndexError(location string, cause error) *Error {
	return NewError(ErrCorruptIndex, fmt.Sprintf("persisted index at %s is unreadable", location)).
		WithCause(cause).
		WithHTTPStatus(http.StatusInternalServerError)
}

// NewInvalidRequestError 请求参数错误
func NewInvalidRequestError(message string) *Error {
	return NewError(ErrInvalidRequest, message).WithHTTPStatus(http.StatusBadRequest)
}

// =============================================================================
// 错误工具链
// =============================================================================

// AsError extracts a *Error from the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return err != nil && GetErrorCode(err) == code
}
