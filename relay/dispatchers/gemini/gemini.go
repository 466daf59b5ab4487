// Package gemini adapts Gemini models. Requests against the native
// Google endpoint use the generateContent wire format; Gemini models
// served through OpenAI-compatible relays are delegated to the default
// adapter with the model-specific routing kept here.
package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/omniroute/internal/tlsutil"
	"github.com/BaSui01/omniroute/relay"
	"github.com/BaSui01/omniroute/relay/convert"
	"github.com/BaSui01/omniroute/relay/dispatchers"
	"github.com/BaSui01/omniroute/relay/dispatchers/openaicompat"
	"github.com/BaSui01/omniroute/relay/stream"
)

// nativeHost marks the official Google endpoint, which speaks the
// generateContent protocol instead of chat completions.
const nativeHost = "generativelanguage.googleapis.com"

type generateRequest struct {
	Contents          []convert.GeminiContent `json:"contents"`
	SystemInstruction *convert.GeminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig       `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

// Dispatcher is the Gemini chat adapter.
type Dispatcher struct {
	client *http.Client
	compat *openaicompat.Dispatcher
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
		compat: openaicompat.New(logger),
		logger: logger.With(zap.String("dispatcher", "gemini")),
	}
}

func (d *Dispatcher) Name() string  { return "gemini" }
func (d *Dispatcher) Priority() int { return 10 }

// Supports claims Gemini models without audio attachments; voice turns
// belong to the audio adapter.
func (d *Dispatcher) Supports(platform, model string, hasAudio bool) bool {
	return strings.Contains(strings.ToLower(model), "gemini") && !hasAudio
}

// IsNative reports whether the config targets the official Google
// endpoint rather than an OpenAI-compatible relay.
func IsNative(cfg relay.ProviderConfig) bool {
	return strings.Contains(cfg.BaseURL, nativeHost) || cfg.WireFormat == relay.WireGemini
}

func (d *Dispatcher) Call(ctx context.Context, cfg relay.ProviderConfig, msgs []relay.Message, streaming bool, opts relay.CallOptions) (<-chan relay.Event, error) {
	if !IsNative(cfg) {
		return d.compat.Call(ctx, cfg, msgs, streaming, opts)
	}
	contents, sys := convert.ToGemini(msgs)
	return d.callNative(ctx, cfg, generateRequest{
		Contents:          contents,
		SystemInstruction: sys,
		GenerationConfig: &generationConfig{
			Temperature:     dispatchers.DefaultTemperature,
			MaxOutputTokens: dispatchers.DefaultMaxTokens,
		},
	}, streaming)
}

func nativeURL(baseURL, model, apiKey string, streaming bool) string {
	verb := "generateContent"
	if streaming {
		verb = "streamGenerateContent"
	}
	u := fmt.Sprintf("%s/models/%s:%s?key=%s",
		strings.TrimRight(baseURL, "/"), model, verb, url.QueryEscape(apiKey))
	if streaming {
		u += "&alt=sse"
	}
	return u
}

// callNative performs a generateContent request against the Google
// endpoint. Shared with the audio adapter.
func (d *Dispatcher) callNative(ctx context.Context, cfg relay.ProviderConfig, body generateRequest, streaming bool) (<-chan relay.Event, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, relay.NewError(relay.ErrInvalidRequest, "failed to encode request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		nativeURL(cfg.BaseURL, cfg.Model, cfg.APIKey, streaming), bytes.NewReader(payload))
	if err != nil {
		return nil, relay.NewError(relay.ErrInvalidRequest, "failed to build request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, relay.NewError(relay.ErrUpstreamError, "request failed").
			WithCause(err).WithPlatform(cfg.Platform).WithRetryable(true)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := dispatchers.ReadErrorPrefix(resp.Body)
		resp.Body.Close()
		d.logger.Warn("upstream returned error",
			zap.String("model", cfg.Model),
			zap.Int("status", resp.StatusCode))
		return nil, dispatchers.MapHTTPError(resp.StatusCode, msg, cfg.Platform)
	}

	ch := make(chan relay.Event)
	if streaming {
		go d.consumeStream(ctx, resp.Body, cfg, ch)
	} else {
		go d.consumeComplete(ctx, resp.Body, cfg, ch)
	}
	return ch, nil
}

// consumeStream reads the alt=sse stream. Gemini sends no [DONE]
// sentinel; a clean EOF terminates the stream.
func (d *Dispatcher) consumeStream(ctx context.Context, body io.ReadCloser, cfg relay.ProviderConfig, ch chan<- relay.Event) {
	defer close(ch)
	defer body.Close()

	rec := stream.NewRecovery(d.logger)
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		payload, _, ok := stream.ParseOpenAILine(scanner.Text())
		if !ok {
			continue
		}
		text, err := stream.GeminiText(payload)
		if err != nil {
			d.logger.Debug("skipping malformed chunk", zap.Error(err))
			continue
		}
		if text == "" {
			continue
		}
		if !dispatchers.Emit(ctx, ch, relay.TextEvent{Content: text}) {
			return
		}
		rec.Add(text)
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
	dispatchers.Emit(ctx, ch, relay.DoneEvent{})
}

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
	text, err := stream.GeminiText(string(data))
	if err != nil {
		dispatchers.Emit(ctx, ch, relay.ErrorEvent{
			Err: relay.NewError(relay.ErrModelAPI, "unparseable response body").
				WithCause(err).WithPlatform(cfg.Platform),
		})
		return
	}
	if text != "" {
		if !dispatchers.Emit(ctx, ch, relay.TextEvent{Content: text}) {
			return
		}
	}
	dispatchers.Emit(ctx, ch, relay.DoneEvent{})
}
