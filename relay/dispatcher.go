package relay

import "context"

// TextConfigFunc resolves the user's text-modality provider config.
// The speech dispatcher uses it to run the second stage of the voice
// pipeline on the user's text model without importing the config
// service.
type TextConfigFunc func(ctx context.Context, userID string) (ProviderConfig, error)

// CallOptions carries per-request data that is not part of the
// conversation itself.
type CallOptions struct {
	// UserID identifies the requesting user for logging and for
	// TextConfig resolution.
	UserID string
	// AudioURL is the voice attachment of the final user turn, passed
	// out of band so text-only dispatchers never see audio parts.
	AudioURL string
	// TextConfig is set by the router when the request may need a
	// second-stage text call (speech pipeline).
	TextConfig TextConfigFunc
}

// Dispatcher adapts one family of provider endpoints to the uniform
// event stream. Implementations must be safe for concurrent use.
type Dispatcher interface {
	// Name is a stable identifier used in logs.
	Name() string
	// Priority orders dispatchers in the registry. Higher wins.
	Priority() int
	// Supports reports whether this dispatcher can serve the given
	// platform/model pair, with hasAudio true when the request carries
	// a voice attachment.
	Supports(platform, model string, hasAudio bool) bool
	// Call performs the request and returns the event stream. A nil
	// channel with a non-nil error means the call failed before any
	// upstream work started. Once a channel is returned, all failures
	// are reported in band and the channel is always closed after the
	// terminal event.
	Call(ctx context.Context, cfg ProviderConfig, msgs []Message, stream bool, opts CallOptions) (<-chan Event, error)
}
