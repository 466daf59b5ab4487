// Package dispatchers provides the shared wire types and HTTP helpers
// used by the vendor adapter packages beneath it.
package dispatchers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/omniroute/relay"
	"github.com/BaSui01/omniroute/relay/convert"
)

// Request defaults applied by the OpenAI-compatible adapter when the
// caller does not override them.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 4000
)

// DefaultRequestTimeout bounds one upstream chat call, including the
// full stream read.
const DefaultRequestTimeout = 5 * time.Minute

// ErrorBodyLimit caps how much of an upstream error body is quoted in
// error messages.
const ErrorBodyLimit = 500

// ChatRequest 表示 OpenAI 兼容的聊天完成请求.
type ChatRequest struct {
	Model         string                  `json:"model"`
	Messages      []convert.OpenAIMessage `json:"messages"`
	Stream        bool                    `json:"stream,omitempty"`
	Temperature   *float64                `json:"temperature,omitempty"`
	MaxTokens     *int                    `json:"max_tokens,omitempty"`
	StreamOptions *StreamOptions          `json:"stream_options,omitempty"`
}

// StreamOptions 控制流式响应的附加帧.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// Float64 returns a pointer to v for optional request fields.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v for optional request fields.
func Int(v int) *int { return &v }

// MapHTTPError 将上游 HTTP 状态码映射为带有合适重试标记的 relay.Error.
func MapHTTPError(status int, msg string, platform string) *relay.Error {
	switch status {
	case http.StatusUnauthorized:
		return &relay.Error{
			Code:       relay.ErrUnauthorized,
			Message:    msg,
			HTTPStatus: status,
			Platform:   platform,
		}
	case http.StatusForbidden:
		return &relay.Error{
			Code:       relay.ErrForbidden,
			Message:    msg,
			HTTPStatus: status,
			Platform:   platform,
		}
	case http.StatusTooManyRequests:
		return &relay.Error{
			Code:       relay.ErrRateLimited,
			Message:    msg,
			HTTPStatus: status,
			Retryable:  true,
			Platform:   platform,
		}
	case http.StatusBadRequest:
		// 检查配额/信用关键字
		msgLower := strings.ToLower(msg)
		if strings.Contains(msgLower, "quota") ||
			strings.Contains(msgLower, "credit") ||
			strings.Contains(msgLower, "limit") {
			return &relay.Error{
				Code:       relay.ErrQuotaExceeded,
				Message:    msg,
				HTTPStatus: status,
				Platform:   platform,
			}
		}
		return &relay.Error{
			Code:       relay.ErrInvalidRequest,
			Message:    msg,
			HTTPStatus: status,
			Platform:   platform,
		}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return &relay.Error{
			Code:       relay.ErrUpstreamError,
			Message:    msg,
			HTTPStatus: status,
			Retryable:  true,
			Platform:   platform,
		}
	default:
		return &relay.Error{
			Code:       relay.ErrModelAPI,
			Message:    msg,
			HTTPStatus: status,
			Retryable:  status >= 500,
			Platform:   platform,
		}
	}
}

// ReadErrorPrefix 读取响应体中的错误消息，最多引用 ErrorBodyLimit 字节.
// 尝试解析 JSON 错误响应，失败则回退到原始文本前缀.
func ReadErrorPrefix(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, ErrorBodyLimit))
	if err != nil {
		return "failed to read error response"
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}

	return string(data)
}

// BearerHeaders 设置标准 Bearer token 认证 header.
func BearerHeaders(r *http.Request, apiKey string) {
	r.Header.Set("Authorization", "Bearer "+apiKey)
	r.Header.Set("Content-Type", "application/json")
}

// ChatCompletionsURL joins a provider base URL with the standard
// chat-completions path, tolerating trailing slashes.
func ChatCompletionsURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/chat/completions"
}

// Emit sends one event unless the context is cancelled first. Returns
// false when the consumer is gone and the producer should stop.
func Emit(ctx context.Context, ch chan<- relay.Event, ev relay.Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
