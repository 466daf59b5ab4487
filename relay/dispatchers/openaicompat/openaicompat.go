// Package openaicompat implements the default adapter for every
// provider that speaks the OpenAI chat-completions protocol. It sits
// at priority 0 so specialized adapters claim their models first.
package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/omniroute/internal/tlsutil"
	"github.com/BaSui01/omniroute/relay"
	"github.com/BaSui01/omniroute/relay/convert"
	"github.com/BaSui01/omniroute/relay/dispatchers"
	"github.com/BaSui01/omniroute/relay/stream"
)

// Dispatcher is the OpenAI-compatible chat adapter.
type Dispatcher struct {
	client *http.Client
	logger *zap.Logger
}

// New creates the adapter. A nil logger is replaced with a no-op
// logger.
func New(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		client: tlsutil.SecureHTTPClient(dispatchers.DefaultRequestTimeout),
		logger: logger.With(zap.String("dispatcher", "openai_compatible")),
	}
}

func (d *Dispatcher) Name() string  { return "openai_compatible" }
func (d *Dispatcher) Priority() int { return 0 }

// Supports accepts every non-Gemini chat request without audio. Audio
// belongs to the specialized adapters; an audio request no adapter
// claims must surface NOT_FOUND so the router can fall back, never
// land here with the clip dropped.
func (d *Dispatcher) Supports(platform, model string, hasAudio bool) bool {
	if hasAudio {
		return false
	}
	return !strings.Contains(strings.ToLower(model), "gemini")
}

// IsSpeechModel reports whether the model id names a dedicated
// speech endpoint rather than a chat model.
func IsSpeechModel(model string) bool {
	m := strings.ToLower(model)
	return strings.HasPrefix(m, "tts") || strings.HasPrefix(m, "whisper")
}

// Call builds the default request body and performs it.
func (d *Dispatcher) Call(ctx context.Context, cfg relay.ProviderConfig, msgs []relay.Message, streaming bool, opts relay.CallOptions) (<-chan relay.Event, error) {
	body := dispatchers.ChatRequest{
		Model:       cfg.Model,
		Messages:    convert.ToOpenAI(msgs),
		Stream:      streaming,
		Temperature: dispatchers.Float64(dispatchers.DefaultTemperature),
		MaxTokens:   dispatchers.Int(dispatchers.DefaultMaxTokens),
	}
	return d.Do(ctx, cfg, body)
}

// Do performs a prepared chat-completions request. Other adapters
// reuse it when their endpoint is protocol-compatible but the body
// needs vendor-specific fields.
func (d *Dispatcher) Do(ctx context.Context, cfg relay.ProviderConfig, body dispatchers.ChatRequest) (<-chan relay.Event, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, relay.NewError(relay.ErrInvalidRequest, "failed to encode request").WithCause(err)
	}

	url := dispatchers.ChatCompletionsURL(cfg.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, relay.NewError(relay.ErrInvalidRequest, "failed to build request").WithCause(err)
	}
	dispatchers.BearerHeaders(req, cfg.APIKey)
	if body.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, relay.NewError(relay.ErrUpstreamError, "request failed").
			WithCause(err).WithPlatform(cfg.Platform).WithRetryable(true)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := dispatchers.ReadErrorPrefix(resp.Body)
		resp.Body.Close()
		d.logger.Warn("upstream returned error",
			zap.String("platform", cfg.Platform),
			zap.String("model", body.Model),
			zap.Int("status", resp.StatusCode))
		return nil, dispatchers.MapHTTPError(resp.StatusCode, msg, cfg.Platform)
	}

	ch := make(chan relay.Event)
	if body.Stream {
		go d.consumeStream(ctx, resp.Body, cfg, ch)
	} else {
		go d.consumeComplete(ctx, resp.Body, cfg, ch)
	}
	return ch, nil
}

// consumeStream reads the SSE body and forwards deltas as text events.
func (d *Dispatcher) consumeStream(ctx context.Context, body io.ReadCloser, cfg relay.ProviderConfig, ch chan<- relay.Event) {
	defer close(ch)
	defer body.Close()

	rec := stream.NewRecovery(d.logger)
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		payload, done, ok := stream.ParseOpenAILine(scanner.Text())
		if !ok {
			continue
		}
		if done {
			dispatchers.Emit(ctx, ch, relay.DoneEvent{})
			return
		}
		delta, err := stream.OpenAIDelta(payload)
		if err != nil {
			d.logger.Debug("skipping malformed chunk", zap.Error(err))
			continue
		}
		if delta == "" {
			continue
		}
		if !dispatchers.Emit(ctx, ch, relay.TextEvent{Content: delta}) {
			return
		}
		rec.Add(delta)
	}

	if err := scanner.Err(); err != nil {
		upstream := relay.NewError(relay.ErrUpstreamError, "stream read failed").
			WithCause(err).WithPlatform(cfg.Platform).WithRetryable(true)
		for _, ev := range rec.OnFailure("stream read failed", upstream) {
			if !dispatchers.Emit(ctx, ch, ev) {
				return
			}
		}
		return
	}
	// Clean EOF without [DONE]; some relays just close the connection.
	dispatchers.Emit(ctx, ch, relay.DoneEvent{})
}

// consumeComplete reads a non-streaming response and yields its
// content as a single text event.
func (d *Dispatcher) consumeComplete(ctx context.Context, body io.ReadCloser, cfg relay.ProviderConfig, ch chan<- relay.Event) {
	defer close(ch)
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		dispatchers.Emit(ctx, ch, relay.ErrorEvent{
			Err: relay.NewError(relay.ErrUpstreamError, "response read failed").
				WithCause(err).WithPlatform(cfg.Platform).WithRetryable(true),
		})
		return
	}
	content, err := stream.OpenAIContent(data)
	if err != nil {
		dispatchers.Emit(ctx, ch, relay.ErrorEvent{
			Err: relay.NewError(relay.ErrModelAPI, "unparseable response body").
				WithCause(err).WithPlatform(cfg.Platform),
		})
		return
	}
	if content != "" {
		if !dispatchers.Emit(ctx, ch, relay.TextEvent{Content: content}) {
			return
		}
	}
	dispatchers.Emit(ctx, ch, relay.DoneEvent{})
}
