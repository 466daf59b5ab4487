package relay

import (
	"errors"
	"fmt"
)

// ErrorCode 统一的调度错误码，用于对齐 HTTP 状态、可重试性与降级策略。
type ErrorCode string

const (
	ErrConfig          ErrorCode = "CONFIG_ERROR"     // 凭证缺失/无效，可触发降级
	ErrModelAPI        ErrorCode = "MODEL_API_ERROR"  // 上游非 2xx
	ErrAudio           ErrorCode = "AUDIO_ERROR"      // 音频下载/校验失败，不降级
	ErrNotFound        ErrorCode = "NOT_FOUND"        // 无匹配分发器，配置错误
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST"  // 参数/格式错误
	ErrUnauthorized    ErrorCode = "UNAUTHORIZED"     // 未授权或密钥失效
	ErrForbidden       ErrorCode = "FORBIDDEN"        // 权限或内容策略拒绝
	ErrRateLimited     ErrorCode = "RATE_LIMITED"     // 上游限流
	ErrQuotaExceeded   ErrorCode = "QUOTA_EXCEEDED"   // 额度/配额用尽
	ErrUpstreamTimeout ErrorCode = "UPSTREAM_TIMEOUT" // 上游超时
	ErrUpstreamError   ErrorCode = "UPSTREAM_ERROR"   // 上游 5xx/网络错误
)

// Error is the structured error carried through the dispatch pipeline.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Platform   string    `json:"platform,omitempty"`
	Cause      error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

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

// WithPlatform sets the platform the error originated from.
func (e *Error) WithPlatform(platform string) *Error {
	e.Platform = platform
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// CodeOf extracts the error code from an error, or "" if it is not a *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// AsError normalizes any error into a *Error, wrapping foreign errors
// under the given default code.
func AsError(err error, code ErrorCode) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: code, Message: err.Error(), Cause: err}
}

// IsNotFound reports whether err is a registry NOT_FOUND error.
func IsNotFound(err error) bool { return CodeOf(err) == ErrNotFound }
