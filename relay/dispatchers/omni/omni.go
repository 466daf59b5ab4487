// Package omni adapts all-in-one multimodal models (Qwen-Omni family)
// that take text, images and audio through a single OpenAI-style chat
// endpoint, with no separate transcription stage.
package omni

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

// omniModelPatterns mark models with native audio understanding.
var omniModelPatterns = []string{"qwen-omni", "qwen2.5-omni", "qwen3-omni", "qwen-audio"}

// qwenPlatforms are the hosting platforms of the Qwen family.
var qwenPlatforms = []string{"qwen", "dashscope", "aliyun"}

// Dispatcher is the omni-model adapter.
type Dispatcher struct {
	compat     *openaicompat.Dispatcher
	downloader *audio.Downloader
	logger     *zap.Logger
}

// New creates the adapter. A nil logger is replaced with a no-op
// logger.
func New(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		compat:     openaicompat.New(logger),
		downloader: audio.NewDownloader(0, logger),
		logger:     logger.With(zap.String("dispatcher", "qwen_omni")),
	}
}

func (d *Dispatcher) Name() string  { return "qwen_omni" }
func (d *Dispatcher) Priority() int { return 15 }

// Supports claims omni models by id, and any audio request on a Qwen
// hosting platform whose model may be an undetected omni variant.
func (d *Dispatcher) Supports(platform, model string, hasAudio bool) bool {
	if IsOmniModel(model) {
		return true
	}
	if !hasAudio {
		return false
	}
	p := strings.ToLower(platform)
	for _, qp := range qwenPlatforms {
		if p == qp {
			return true
		}
	}
	return false
}

// IsOmniModel reports whether the model id names an omni variant.
func IsOmniModel(model string) bool {
	m := strings.ToLower(model)
	for _, pat := range omniModelPatterns {
		if strings.Contains(m, pat) {
			return true
		}
	}
	return false
}

// Call sends the conversation in one shot. Omni endpoints choke on
// temperature/max_tokens for audio input, so neither is set; streaming
// requests ask for the usage frame the Qwen backend requires.
func (d *Dispatcher) Call(ctx context.Context, cfg relay.ProviderConfig, msgs []relay.Message, streaming bool, opts relay.CallOptions) (<-chan relay.Event, error) {
	wire := msgs
	if opts.AudioURL != "" {
		data, contentType, err := d.downloader.Download(ctx, opts.AudioURL)
		if err == nil {
			err = audio.Validate(data)
		}
		if err != nil {
			return nil, relay.AsError(err, relay.ErrAudio)
		}
		format := audio.DetectFormat(data, opts.AudioURL, contentType)
		wire = convert.WithInlineAudio(msgs, audio.ToBase64(data), format)
		d.logger.Debug("audio inlined",
			zap.String("format", format),
			zap.Int("bytes", len(data)))
	}

	body := dispatchers.ChatRequest{
		Model:    cfg.Model,
		Messages: convert.ToOpenAI(wire),
		Stream:   streaming,
	}
	if streaming {
		body.StreamOptions = &dispatchers.StreamOptions{IncludeUsage: true}
	}
	return d.compat.Do(ctx, cfg, body)
}
