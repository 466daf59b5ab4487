// Package stream parses provider event streams and implements the
// mid-stream failure recovery rule: once any content has reached the
// consumer a failure becomes a truncated success, never an error.
package stream

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/BaSui01/omniroute/relay"
)

// ParseOpenAILine classifies one SSE line of an OpenAI-style stream.
// ok is false for blank lines, comments and non-data fields; done is
// true for the [DONE] sentinel.
func ParseOpenAILine(line string) (payload string, done, ok bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "data:") {
		return "", false, false
	}
	payload = strings.TrimSpace(line[len("data:"):])
	if payload == "" {
		return "", false, false
	}
	if payload == "[DONE]" {
		return "", true, true
	}
	return payload, false, true
}

// OpenAIDelta extracts the content delta from one OpenAI stream chunk.
// Chunks without a content delta (role headers, usage frames) yield "".
func OpenAIDelta(payload string) (string, error) {
	var chunk struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return "", err
	}
	if len(chunk.Choices) == 0 {
		return "", nil
	}
	return chunk.Choices[0].Delta.Content, nil
}

// OpenAIContent extracts the full message content from a non-streaming
// chat-completions response body.
func OpenAIContent(body []byte) (string, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// GeminiText extracts and joins the text parts of the first candidate
// in a Gemini generateContent payload (streaming chunk or full body).
func GeminiText(payload string) (string, error) {
	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", nil
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}

// Recovery tracks how much content a stream has surfaced so a failure
// can be reported correctly: as a plain error while nothing was shown,
// or as a stream_interrupted notice plus done once the consumer has
// already seen output.
type Recovery struct {
	surfaced int
	logger   *zap.Logger
}

// NewRecovery creates a Recovery. A nil logger is replaced with a
// no-op logger.
func NewRecovery(logger *zap.Logger) *Recovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recovery{logger: logger}
}

// Add records a surfaced chunk. Length is counted in characters, not
// bytes, so CJK output reports the same partial length the consumer
// saw.
func (r *Recovery) Add(s string) {
	r.surfaced += utf8.RuneCountInString(s)
}

// Surfaced returns the number of characters surfaced so far.
func (r *Recovery) Surfaced() int { return r.surfaced }

// OnFailure converts a stream failure into terminal events. With
// surfaced content the stream ends as a truncated success; otherwise
// the error propagates so the router may fall back.
func (r *Recovery) OnFailure(reason string, err *relay.Error) []relay.Event {
	if r.surfaced > 0 {
		r.logger.Warn("stream interrupted after partial content",
			zap.String("reason", reason),
			zap.Int("partial_length", r.surfaced),
			zap.Error(err))
		return []relay.Event{
			relay.StreamInterruptedEvent{Message: reason, PartialLength: r.surfaced},
			relay.DoneEvent{},
		}
	}
	return []relay.Event{relay.ErrorEvent{Err: err}}
}
