// Package convert holds the pure message conversion functions between
// the neutral relay message model and the provider wire formats. No
// function here performs I/O or mutates its input.
package convert

import (
	"strings"

	"github.com/BaSui01/omniroute/relay"
)

// DefaultVoicePrompt is the user text used when a voice turn carries
// no caption of its own.
const DefaultVoicePrompt = "请听取并回复这段语音内容"

// OpenAIMessage is one turn in OpenAI chat-completions wire format.
// Content is either a plain string or a []OpenAIPart.
type OpenAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// OpenAIPart is one element of a multi-part content list.
type OpenAIPart struct {
	Type       string            `json:"type"`
	Text       string            `json:"text,omitempty"`
	ImageURL   *OpenAIImageURL   `json:"image_url,omitempty"`
	InputAudio *OpenAIInputAudio `json:"input_audio,omitempty"`
}

// OpenAIImageURL wraps an image reference.
type OpenAIImageURL struct {
	URL string `json:"url"`
}

// OpenAIInputAudio carries inline base64 audio.
type OpenAIInputAudio struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

// ToOpenAI converts neutral messages to OpenAI wire format. Text-only
// turns keep plain string content so text-only endpoints that reject
// part lists still work; mixed turns become part lists. Audio parts
// without inline data are dropped, the relay passes audio URLs out of
// band.
func ToOpenAI(msgs []relay.Message) []OpenAIMessage {
	out := make([]OpenAIMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.IsTextOnly() {
			out = append(out, OpenAIMessage{Role: string(m.Role), Content: m.Text()})
			continue
		}
		parts := make([]OpenAIPart, 0, len(m.Parts))
		for _, p := range m.Parts {
			switch v := p.(type) {
			case relay.TextPart:
				if v.Text != "" {
					parts = append(parts, OpenAIPart{Type: "text", Text: v.Text})
				}
			case relay.ImagePart:
				parts = append(parts, OpenAIPart{Type: "image_url", ImageURL: &OpenAIImageURL{URL: v.URL}})
			case relay.AudioPart:
				if v.Data != "" {
					format := v.Format
					if format == "" {
						format = "mp3"
					}
					parts = append(parts, OpenAIPart{
						Type:       "input_audio",
						InputAudio: &OpenAIInputAudio{Data: v.Data, Format: format},
					})
				}
			}
		}
		out = append(out, OpenAIMessage{Role: string(m.Role), Content: parts})
	}
	return out
}

// ParseDataURL splits a data:<mime>;base64,<payload> URL into MIME
// type and payload. Only the first comma separates header and data.
func ParseDataURL(url string) (mime, data string, ok bool) {
	if !strings.HasPrefix(url, "data:") {
		return "", "", false
	}
	header, payload, found := strings.Cut(url[len("data:"):], ",")
	if !found {
		return "", "", false
	}
	mime = strings.TrimSuffix(header, ";base64")
	return mime, payload, true
}

// SubstituteTranscript returns a new message list where the voice
// attachment of the final user turn is replaced by its transcript.
// A final user turn with no text of its own (or only the default
// voice prompt) becomes the bare transcript; otherwise the transcript
// is appended so the user's caption is kept. Audio parts are removed.
func SubstituteTranscript(msgs []relay.Message, transcript string) []relay.Message {
	out := make([]relay.Message, len(msgs))
	copy(out, msgs)

	last := lastUserIndex(out)
	if last < 0 {
		return append(out, relay.NewUserMessage(transcript))
	}

	text := out[last].Text()
	if text == "" || text == DefaultVoicePrompt {
		text = transcript
	} else {
		text = text + "\n\n[语音内容]: " + transcript
	}
	out[last] = relay.NewUserMessage(text)
	return out
}

// AudioRelayMessages builds the OpenAI-wire message list for relays
// that accept inline audio (openrouter style): system and assistant
// turns keep their text, the final user turn carries the clip as an
// input_audio part with a text prompt.
func AudioRelayMessages(msgs []relay.Message, audioB64, format string) []OpenAIMessage {
	out := make([]OpenAIMessage, 0, len(msgs)+1)
	last := lastUserIndex(msgs)
	for i, m := range msgs {
		if i == last {
			continue
		}
		if text := m.Text(); text != "" {
			out = append(out, OpenAIMessage{Role: string(m.Role), Content: text})
		}
	}

	prompt := DefaultVoicePrompt
	if last >= 0 {
		if t := msgs[last].Text(); t != "" {
			prompt = t
		}
	}
	out = append(out, OpenAIMessage{Role: "user", Content: []OpenAIPart{
		{Type: "text", Text: prompt},
		{Type: "input_audio", InputAudio: &OpenAIInputAudio{Data: audioB64, Format: format}},
	}})
	return out
}

// WithInlineAudio returns a new neutral message list where history
// turns are reduced to their text and the final user turn carries the
// clip inline. Used by adapters whose endpoint takes base64 audio in
// OpenAI part lists.
func WithInlineAudio(msgs []relay.Message, audioB64, format string) []relay.Message {
	out := make([]relay.Message, 0, len(msgs)+1)
	last := lastUserIndex(msgs)
	for i, m := range msgs {
		if i == last {
			continue
		}
		if text := m.Text(); text != "" {
			out = append(out, relay.NewTextMessage(m.Role, text))
		}
	}

	prompt := DefaultVoicePrompt
	if last >= 0 {
		if t := msgs[last].Text(); t != "" {
			prompt = t
		}
	}
	out = append(out, relay.Message{Role: relay.RoleUser, Parts: []relay.Part{
		relay.TextPart{Text: prompt},
		relay.AudioPart{Data: audioB64, Format: format},
	}})
	return out
}

func lastUserIndex(msgs []relay.Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == relay.RoleUser {
			return i
		}
	}
	return -1
}
