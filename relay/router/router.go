// Package router classifies inbound messages, resolves the user's
// provider config, dispatches through the registry, and applies the
// single-fallback policy when the configured provider fails.
package router

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/omniroute/internal/metrics"
	"github.com/BaSui01/omniroute/relay"
)

// InboundMessage is one user message as received from the chat layer.
type InboundMessage struct {
	Text        string
	ImageURL    string
	ImageBase64 string
	VoiceURL    string
	// VoiceTranscript is set when the clip was already transcribed
	// upstream; such a message routes as plain text.
	VoiceTranscript string
}

// Classify determines the modality of an inbound message. Image plus
// text is multimodal, a bare image is image (both resolve to the
// multimodal config slot). Images take precedence over voice; a voice
// message with a transcript routes as plain text.
func Classify(m InboundMessage) relay.Modality {
	hasImage := m.ImageURL != "" || m.ImageBase64 != ""
	hasText := m.Text != "" || m.VoiceTranscript != ""
	switch {
	case hasImage && hasText:
		return relay.ModalityMultimodal
	case hasImage:
		return relay.ModalityImage
	case m.VoiceURL != "" && m.VoiceTranscript == "":
		return relay.ModalityVoice
	default:
		return relay.ModalityText
	}
}

// ConfigService resolves provider configs per user and modality slot.
type ConfigService interface {
	ModelFor(ctx context.Context, userID string, key relay.ConfigKey) (relay.ProviderConfig, error)
	FallbackFor(key relay.ConfigKey) relay.ProviderConfig
}

// Request is one routed conversation turn.
type Request struct {
	UserID       string
	Message      InboundMessage
	History      []relay.Message
	SystemPrompt string
	Stream       bool
}

// Options 配置 Router 的可选依赖.
type Options struct {
	Metrics *metrics.Collector
	Logger  *zap.Logger
}

// Router routes requests to dispatchers with at most one fallback to
// the system default per request.
type Router struct {
	registry *relay.Registry
	configs  ConfigService
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// New creates a Router.
func New(registry *relay.Registry, configs ConfigService, opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		registry: registry,
		configs:  configs,
		metrics:  opts.Metrics,
		logger:   logger.With(zap.String("component", "router")),
	}
}

// Route resolves the config and returns the uniform event stream for
// the request. The returned channel is always closed after a terminal
// event.
func (r *Router) Route(ctx context.Context, req Request) (<-chan relay.Event, error) {
	requestID := uuid.NewString()
	modality := Classify(req.Message)
	key := relay.ConfigKeyFor(modality)

	logger := r.logger.With(
		zap.String("request_id", requestID),
		zap.String("user_id", req.UserID),
		zap.String("modality", string(modality)))

	primary, err := r.configs.ModelFor(ctx, req.UserID, key)
	if err != nil {
		logger.Warn("config resolution failed, using system default", zap.Error(err))
		primary = r.configs.FallbackFor(key)
	}
	fallback := r.configs.FallbackFor(key)

	hasAudio := modality == relay.ModalityVoice
	opts := relay.CallOptions{
		UserID: req.UserID,
		TextConfig: func(ctx context.Context, userID string) (relay.ProviderConfig, error) {
			return r.configs.ModelFor(ctx, userID, relay.ConfigText)
		},
	}
	if hasAudio {
		opts.AudioURL = req.Message.VoiceURL
	}
	msgs := buildMessages(req)

	if r.metrics != nil {
		r.metrics.RecordRouteRequest(string(modality), primary.Platform)
	}
	logger.Info("routing request",
		zap.String("platform", primary.Platform),
		zap.String("model", primary.Model),
		zap.Bool("stream", req.Stream),
		zap.Bool("user_configured", primary.UserConfigured))

	out := make(chan relay.Event)
	go r.run(ctx, logger, primary, fallback, msgs, req.Stream, opts, out)
	return out, nil
}

// run executes the primary attempt and at most one fallback.
func (r *Router) run(ctx context.Context, logger *zap.Logger, primary, fallback relay.ProviderConfig, msgs []relay.Message, streaming bool, opts relay.CallOptions, out chan<- relay.Event) {
	defer close(out)

	samePlatform := primary.Same(fallback)

	if !primary.HasCredential() && !samePlatform {
		// No usable credential: skip the doomed attempt entirely.
		r.failover(ctx, logger, fallback, msgs, streaming, opts, out, "missing_credential")
		return
	}

	err := r.attempt(ctx, primary, msgs, streaming, opts, out)
	if err == nil {
		return
	}

	code := relay.CodeOf(err)
	if code == relay.ErrAudio || samePlatform {
		// Broken audio never improves on another provider, and a
		// fallback identical to the primary is a pointless retry.
		emit(ctx, out, relay.ErrorEvent{Err: relay.AsError(err, relay.ErrModelAPI)})
		return
	}

	logger.Warn("primary attempt failed, falling back",
		zap.String("platform", primary.Platform),
		zap.String("code", string(code)),
		zap.Error(err))
	r.failover(ctx, logger, fallback, msgs, streaming, opts, out, reasonFor(code))
}

// failover runs the single fallback attempt. The fallback never
// carries the audio attachment; audio failures are terminal before we
// get here, and the system default is a text-capable model.
func (r *Router) failover(ctx context.Context, logger *zap.Logger, fallback relay.ProviderConfig, msgs []relay.Message, streaming bool, opts relay.CallOptions, out chan<- relay.Event, reason string) {
	if r.metrics != nil {
		r.metrics.RecordFallback(reason)
	}
	if !emit(ctx, out, relay.FallbackNoticeEvent{Reason: reason}) {
		return
	}

	opts.AudioURL = ""
	err := r.attempt(ctx, fallback, msgs, streaming, opts, out)
	if err != nil {
		logger.Error("fallback attempt failed",
			zap.String("platform", fallback.Platform),
			zap.Error(err))
		emit(ctx, out, relay.ErrorEvent{Err: relay.AsError(err, relay.ErrModelAPI)})
	}
}

// attempt resolves a dispatcher and forwards its events. A failure
// before any content has been surfaced is returned to the caller
// instead of forwarded, so the caller can decide on fallback.
func (r *Router) attempt(ctx context.Context, cfg relay.ProviderConfig, msgs []relay.Message, streaming bool, opts relay.CallOptions, out chan<- relay.Event) error {
	d, err := r.registry.Resolve(cfg.Platform, cfg.Model, opts.AudioURL != "")
	if err != nil {
		return err
	}

	ch, err := d.Call(ctx, cfg, msgs, streaming, opts)
	if err != nil {
		return err
	}

	surfaced := false
	for ev := range ch {
		switch v := ev.(type) {
		case relay.ErrorEvent:
			if !surfaced {
				for range ch {
					// drain to release the producer
				}
				return v.Err
			}
		case relay.TextEvent:
			surfaced = true
		case relay.TranscriptionEvent:
			surfaced = true
			if r.metrics != nil {
				r.metrics.RecordTranscription(cfg.Platform)
			}
		case relay.StreamInterruptedEvent:
			if r.metrics != nil {
				r.metrics.RecordStreamInterruption(cfg.Platform)
			}
		}
		if !emit(ctx, out, ev) {
			return nil
		}
	}
	return nil
}

func emit(ctx context.Context, ch chan<- relay.Event, ev relay.Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// reasonFor maps an error code to a fallback reason label.
func reasonFor(code relay.ErrorCode) string {
	if code == "" {
		return "upstream_error"
	}
	return strings.ToLower(string(code))
}

// buildMessages assembles the dispatch conversation: system prompt,
// history, then the current turn. Audio travels out of band through
// CallOptions, never as a message part.
func buildMessages(req Request) []relay.Message {
	msgs := make([]relay.Message, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, relay.NewSystemMessage(req.SystemPrompt))
	}
	msgs = append(msgs, req.History...)

	text := req.Message.Text
	if t := req.Message.VoiceTranscript; t != "" {
		if text == "" {
			text = t
		} else {
			text = text + "\n\n[语音内容]: " + t
		}
	}

	var parts []relay.Part
	if text != "" {
		parts = append(parts, relay.TextPart{Text: text})
	}
	switch {
	case req.Message.ImageBase64 != "":
		parts = append(parts, relay.ImagePart{URL: "data:image/jpeg;base64," + req.Message.ImageBase64})
	case req.Message.ImageURL != "":
		parts = append(parts, relay.ImagePart{URL: req.Message.ImageURL})
	}
	if len(parts) == 0 {
		// Voice-only turn: the dispatcher substitutes its default
		// prompt for the empty caption.
		parts = append(parts, relay.TextPart{Text: ""})
	}

	return append(msgs, relay.Message{Role: relay.RoleUser, Parts: parts})
}
