// Package stt implements the two-stage voice pipeline for dedicated
// speech models: transcribe the clip on the speech endpoint, then
// answer on the user's text model with the transcript substituted into
// the conversation.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/omniroute/internal/tlsutil"
	"github.com/BaSui01/omniroute/relay"
	"github.com/BaSui01/omniroute/relay/audio"
	"github.com/BaSui01/omniroute/relay/convert"
	"github.com/BaSui01/omniroute/relay/dispatchers"
	"github.com/BaSui01/omniroute/relay/dispatchers/openaicompat"
	"github.com/BaSui01/omniroute/relay/stream"
)

// uploadModel is pinned regardless of the configured model id; speech
// endpoints reject chat-style ids like "whisper-large" aliases.
const uploadModel = "whisper-1"

// downloadTimeout is longer than the chat default, voice clips can be
// large.
const downloadTimeout = 60 * time.Second

// Dispatcher runs the transcribe-then-chat pipeline.
type Dispatcher struct {
	client     *http.Client
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
		client:     tlsutil.SecureHTTPClient(dispatchers.DefaultRequestTimeout),
		compat:     openaicompat.New(logger),
		downloader: audio.NewDownloader(downloadTimeout, logger),
		logger:     logger.With(zap.String("dispatcher", "openai_stt")),
	}
}

func (d *Dispatcher) Name() string  { return "openai_stt" }
func (d *Dispatcher) Priority() int { return 15 }

func (d *Dispatcher) Supports(platform, model string, hasAudio bool) bool {
	return hasAudio && openaicompat.IsSpeechModel(model)
}

func (d *Dispatcher) Call(ctx context.Context, cfg relay.ProviderConfig, msgs []relay.Message, streaming bool, opts relay.CallOptions) (<-chan relay.Event, error) {
	if opts.AudioURL == "" {
		// A speech model without an attachment is just a chat request.
		return d.compat.Call(ctx, cfg, msgs, streaming, opts)
	}
	ch := make(chan relay.Event)
	go d.run(ctx, cfg, msgs, streaming, opts, ch)
	return ch, nil
}

func (d *Dispatcher) run(ctx context.Context, cfg relay.ProviderConfig, msgs []relay.Message, streaming bool, opts relay.CallOptions, ch chan<- relay.Event) {
	defer close(ch)

	data, contentType, err := d.downloader.Download(ctx, opts.AudioURL)
	if err == nil {
		err = audio.Validate(data)
	}
	if err != nil {
		dispatchers.Emit(ctx, ch, relay.ErrorEvent{Err: relay.AsError(err, relay.ErrAudio)})
		return
	}
	if audio.SniffFormat(data) == "" {
		// Unknown signature but plausible size: let the endpoint decide.
		d.logger.Warn("unrecognized audio signature",
			zap.String("url", opts.AudioURL),
			zap.Int("bytes", len(data)))
	}

	transcript, err := d.transcribe(ctx, cfg, data, opts.AudioURL, contentType)
	if err != nil {
		dispatchers.Emit(ctx, ch, relay.ErrorEvent{Err: relay.AsError(err, relay.ErrAudio)})
		return
	}
	if !dispatchers.Emit(ctx, ch, relay.TranscriptionEvent{Text: transcript}) {
		return
	}

	// The transcript has been surfaced; later failures end the stream
	// as a truncated success.
	rec := stream.NewRecovery(d.logger)
	rec.Add(transcript)

	textCfg := cfg
	if opts.TextConfig != nil {
		resolved, err := opts.TextConfig(ctx, opts.UserID)
		if err != nil {
			d.logger.Warn("text config unavailable, answering with speech credentials",
				zap.String("user_id", opts.UserID),
				zap.Error(err))
		} else {
			textCfg = resolved
		}
	}

	inner, err := d.compat.Call(ctx, textCfg, convert.SubstituteTranscript(msgs, transcript), streaming, opts)
	if err != nil {
		for _, ev := range rec.OnFailure("text stage failed", relay.AsError(err, relay.ErrModelAPI)) {
			if !dispatchers.Emit(ctx, ch, ev) {
				return
			}
		}
		return
	}
	for ev := range inner {
		if !dispatchers.Emit(ctx, ch, ev) {
			return
		}
	}
}

// transcribe uploads the clip as multipart form data and returns the
// recognized text. The file part carries the sniffed MIME type, some
// endpoints reject application/octet-stream uploads.
func (d *Dispatcher) transcribe(ctx context.Context, cfg relay.ProviderConfig, data []byte, audioURL, contentType string) (string, error) {
	filename := audio.UploadFilename(audioURL)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("model", uploadModel); err != nil {
		return "", relay.NewError(relay.ErrAudio, "failed to build upload").WithCause(err)
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", audio.DetectMIME(data, audioURL, contentType))
	fw, err := mw.CreatePart(header)
	if err != nil {
		return "", relay.NewError(relay.ErrAudio, "failed to build upload").WithCause(err)
	}
	if _, err := fw.Write(data); err != nil {
		return "", relay.NewError(relay.ErrAudio, "failed to build upload").WithCause(err)
	}
	if err := mw.Close(); err != nil {
		return "", relay.NewError(relay.ErrAudio, "failed to build upload").WithCause(err)
	}

	url := strings.TrimRight(cfg.BaseURL, "/") + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", relay.NewError(relay.ErrAudio, "failed to build upload request").WithCause(err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return "", relay.NewError(relay.ErrAudio, "transcription request failed").
			WithCause(err).WithPlatform(cfg.Platform)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := dispatchers.ReadErrorPrefix(resp.Body)
		return "", relay.NewError(relay.ErrAudio,
			fmt.Sprintf("transcription failed: %s", msg)).
			WithHTTPStatus(resp.StatusCode).WithPlatform(cfg.Platform)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", relay.NewError(relay.ErrAudio, "unparseable transcription response").WithCause(err)
	}
	d.logger.Debug("transcription complete",
		zap.String("filename", filename),
		zap.Int("chars", len(out.Text)))
	return out.Text, nil
}
