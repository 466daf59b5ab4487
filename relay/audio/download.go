package audio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/omniroute/internal/tlsutil"
	"github.com/BaSui01/omniroute/relay"
)

// DefaultDownloadTimeout bounds a single clip download.
const DefaultDownloadTimeout = 30 * time.Second

// maxDownloadBytes caps the payload read from the remote server.
const maxDownloadBytes = 64 << 20 // 64 MiB

// Downloader fetches audio clips over HTTPS and validates the result.
type Downloader struct {
	client *http.Client
	logger *zap.Logger
}

// NewDownloader creates a Downloader with a hardened HTTP client.
// A zero timeout uses DefaultDownloadTimeout; a nil logger is replaced
// with a no-op logger.
func NewDownloader(timeout time.Duration, logger *zap.Logger) *Downloader {
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		client: tlsutil.SecureHTTPClient(timeout),
		logger: logger.With(zap.String("component", "audio_downloader")),
	}
}

// Download fetches the clip and returns the payload together with the
// server's content type. Every failure is an AUDIO_ERROR so the router
// never falls back on a broken attachment.
func (d *Downloader) Download(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", relay.NewError(relay.ErrAudio, "invalid audio url").WithCause(err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", relay.NewError(relay.ErrAudio, "audio download failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", relay.NewError(relay.ErrAudio,
			fmt.Sprintf("audio download failed with status %d", resp.StatusCode)).
			WithHTTPStatus(resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, "", relay.NewError(relay.ErrAudio, "audio download truncated").WithCause(err)
	}

	contentType := resp.Header.Get("Content-Type")
	d.logger.Debug("audio downloaded",
		zap.Int("bytes", len(data)),
		zap.String("content_type", contentType))
	return data, contentType, nil
}

// Validate rejects payloads too short to be real audio. A payload with
// an unknown signature but sufficient size passes; the caller may log
// a warning but must not fail the request.
func Validate(data []byte) error {
	if len(data) < MinBytes {
		return relay.NewError(relay.ErrAudio,
			fmt.Sprintf("audio payload too small: %d bytes (min %d)", len(data), MinBytes))
	}
	return nil
}
