package gemini

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/omniroute/relay"
	"github.com/BaSui01/omniroute/relay/audio"
	"github.com/BaSui01/omniroute/relay/convert"
	"github.com/BaSui01/omniroute/relay/dispatchers"
	"github.com/BaSui01/omniroute/relay/dispatchers/openaicompat"
)

// AudioDispatcher handles voice turns aimed at Gemini models. Three
// transports, picked by endpoint:
//
//   - native Google endpoint: the clip is referenced by URI, history
//     preserved, audio only in the final user turn
//   - openrouter.ai: the clip is inlined as base64 input_audio in
//     OpenAI part format
//   - any other relay: inline base64 with history reduced to text; a
//     failed download degrades to a text-only note instead of failing
type AudioDispatcher struct {
	chat       *Dispatcher
	compat     *openaicompat.Dispatcher
	downloader *audio.Downloader
	logger     *zap.Logger
}

// NewAudio creates the Gemini voice adapter. A nil logger is replaced
// with a no-op logger.
func NewAudio(logger *zap.Logger) *AudioDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AudioDispatcher{
		chat:       New(logger),
		compat:     openaicompat.New(logger),
		downloader: audio.NewDownloader(0, logger),
		logger:     logger.With(zap.String("dispatcher", "gemini_audio")),
	}
}

func (d *AudioDispatcher) Name() string  { return "gemini_audio" }
func (d *AudioDispatcher) Priority() int { return 20 }

func (d *AudioDispatcher) Supports(platform, model string, hasAudio bool) bool {
	return strings.Contains(strings.ToLower(model), "gemini") && hasAudio
}

func (d *AudioDispatcher) Call(ctx context.Context, cfg relay.ProviderConfig, msgs []relay.Message, streaming bool, opts relay.CallOptions) (<-chan relay.Event, error) {
	if opts.AudioURL == "" {
		return d.chat.Call(ctx, cfg, msgs, streaming, opts)
	}

	if IsNative(cfg) {
		return d.callNativeAudio(ctx, cfg, msgs, streaming, opts)
	}
	if strings.Contains(cfg.BaseURL, "openrouter.ai") {
		return d.callOpenRouter(ctx, cfg, msgs, streaming, opts)
	}
	return d.callGenericRelay(ctx, cfg, msgs, streaming, opts)
}

// callNativeAudio keeps the conversation history and attaches the clip
// by URI to the final user turn.
func (d *AudioDispatcher) callNativeAudio(ctx context.Context, cfg relay.ProviderConfig, msgs []relay.Message, streaming bool, opts relay.CallOptions) (<-chan relay.Event, error) {
	contents, sys := convert.ToGemini(msgs)

	prompt := convert.DefaultVoicePrompt
	if n := len(contents); n > 0 && contents[n-1].Role == "user" {
		for _, p := range contents[n-1].Parts {
			if p.Text != "" {
				prompt = p.Text
				break
			}
		}
		contents = contents[:n-1]
	}
	mime := audio.UploadMIME(audio.UploadFilename(opts.AudioURL))
	contents = append(contents, convert.GeminiContent{Role: "user", Parts: []convert.GeminiPart{
		{Text: prompt},
		{FileData: &convert.GeminiFileData{MimeType: mime, FileUri: opts.AudioURL}},
	}})

	return d.chat.callNative(ctx, cfg, generateRequest{
		Contents:          contents,
		SystemInstruction: sys,
		GenerationConfig: &generationConfig{
			Temperature:     dispatchers.DefaultTemperature,
			MaxOutputTokens: dispatchers.DefaultMaxTokens,
		},
	}, streaming)
}

// callOpenRouter inlines the clip as base64 input_audio.
func (d *AudioDispatcher) callOpenRouter(ctx context.Context, cfg relay.ProviderConfig, msgs []relay.Message, streaming bool, opts relay.CallOptions) (<-chan relay.Event, error) {
	data, contentType, err := d.downloader.Download(ctx, opts.AudioURL)
	if err != nil {
		return nil, err
	}
	if err := audio.Validate(data); err != nil {
		return nil, err
	}

	format := audio.DetectFormat(data, opts.AudioURL, contentType)
	body := dispatchers.ChatRequest{
		Model:       cfg.Model,
		Messages:    convert.AudioRelayMessages(msgs, audio.ToBase64(data), format),
		Stream:      streaming,
		Temperature: dispatchers.Float64(dispatchers.DefaultTemperature),
		MaxTokens:   dispatchers.Int(dispatchers.DefaultMaxTokens),
	}
	return d.compat.Do(ctx, cfg, body)
}

// callGenericRelay inlines the clip for unknown relays and degrades to
// a text-only note when the clip cannot be fetched.
func (d *AudioDispatcher) callGenericRelay(ctx context.Context, cfg relay.ProviderConfig, msgs []relay.Message, streaming bool, opts relay.CallOptions) (<-chan relay.Event, error) {
	data, contentType, err := d.downloader.Download(ctx, opts.AudioURL)
	if err == nil {
		err = audio.Validate(data)
	}
	if err != nil {
		d.logger.Warn("audio unavailable, degrading to text note",
			zap.String("url", opts.AudioURL),
			zap.Error(err))
		degraded := append(append([]relay.Message{}, msgs...),
			relay.NewUserMessage("（语音内容无法获取，请基于已有上下文回复）"))
		return d.compat.Call(ctx, cfg, degraded, streaming, opts)
	}

	format := audio.DetectFormat(data, opts.AudioURL, contentType)
	inlined := convert.WithInlineAudio(msgs, audio.ToBase64(data), format)
	body := dispatchers.ChatRequest{
		Model:       cfg.Model,
		Messages:    convert.ToOpenAI(inlined),
		Stream:      streaming,
		Temperature: dispatchers.Float64(dispatchers.DefaultTemperature),
		MaxTokens:   dispatchers.Int(dispatchers.DefaultMaxTokens),
	}
	return d.compat.Do(ctx, cfg, body)
}
