package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/policyqa/types"
)

// MapHTTPError 将上游 HTTP 状态码映射为统一的 types.Error
func MapHTTPError(status int, msg string, provider string) *types.Error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return types.NewError(types.ErrUnauthorized, msg).
			WithHTTPStatus(http.StatusBadGateway).
			WithProvider(provider)
	case status == http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, msg).
			WithHTTPStatus(http.StatusServiceUnavailable).
			WithRetryable(true).
			WithProvider(provider)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return types.NewError(types.ErrTimeout, msg).
			WithHTTPStatus(http.StatusGatewayTimeout).
			WithRetryable(true).
			WithProvider(provider)
	case status >= 500:
		return types.NewError(types.ErrUpstreamError, msg).
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(true).
			WithProvider(provider)
	case status >= 400:
		return types.NewError(types.ErrUpstreamError, msg).
			WithHTTPStatus(http.StatusBadGateway).
			WithProvider(provider)
	default:
		return types.NewError(types.ErrUpstreamError, msg).
			WithHTTPStatus(http.StatusBadGateway).
			WithProvider(provider)
	}
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// ReadErrorMessage 读取上游错误响应体，优先解析 {"error":{"message":...}}
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}
	var env errorEnvelope
	if json.Unmarshal(data, &env) == nil && env.Error.Message != "" {
		if env.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", env.Error.Message, env.Error.Type)
		}
		return env.Error.Message
	}
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		return http.StatusText(http.StatusBadGateway)
	}
	return msg
}

// NetworkError 包装传输层错误（连接失败、超时），默认可重试
func NetworkError(provider string, err error) *types.Error {
	if errors.Is(err, context.Canceled) {
		return types.NewError(types.ErrUpstreamError, "request cancelled").
			WithCause(err).
			WithProvider(provider)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrTimeout, "request timed out").
			WithCause(err).
			WithHTTPStatus(http.StatusGatewayTimeout).
			WithRetryable(true).
			WithProvider(provider)
	}
	return types.NewError(types.ErrUpstreamError, err.Error()).
		WithCause(err).
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(true).
		WithProvider(provider)
}

// IsTransient 判断错误是否属于瞬时故障（可重试或超时）
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if types.IsErrorCode(err, types.ErrTransientFailure) || types.IsErrorCode(err, types.ErrTimeout) {
		return true
	}
	return types.IsRetryable(err)
}
