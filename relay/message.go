package relay

import "strings"

// Role represents the role of a conversation participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType identifies a content part variant.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
	PartAudio PartType = "audio"
)

// Part is one element of a message's content. The set of variants is
// closed: TextPart, ImagePart, AudioPart. Converters switch over
// PartType exhaustively instead of probing loose maps.
type Part interface {
	PartType() PartType
}

// TextPart is a plain text segment.
type TextPart struct {
	Text string `json:"text"`
}

func (TextPart) PartType() PartType { return PartText }

// ImagePart references an image either by remote URL or by a
// data:<mime>;base64,<payload> URL.
type ImagePart struct {
	URL string `json:"url"`
}

func (ImagePart) PartType() PartType { return PartImage }

// IsDataURL reports whether the image is inlined as a data URL.
func (p ImagePart) IsDataURL() bool { return strings.HasPrefix(p.URL, "data:") }

// AudioPart references an audio clip either by a dereferenceable URL or
// by inline base64 data plus container format (mp3, wav, ...).
type AudioPart struct {
	URL    string `json:"url,omitempty"`
	Data   string `json:"data,omitempty"` // base64 encoded
	Format string `json:"format,omitempty"`
}

func (AudioPart) PartType() PartType { return PartAudio }

// Message is a single conversation turn. Parts keep their original
// order; converters never mutate a message in place.
type Message struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// NewTextMessage creates a message with a single text part.
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Parts: []Part{TextPart{Text: text}}}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(text string) Message { return NewTextMessage(RoleSystem, text) }

// NewUserMessage creates a user message.
func NewUserMessage(text string) Message { return NewTextMessage(RoleUser, text) }

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(text string) Message { return NewTextMessage(RoleAssistant, text) }

// Text joins the text parts of the message, ignoring non-text parts.
func (m Message) Text() string {
	var parts []string
	for _, p := range m.Parts {
		if t, ok := p.(TextPart); ok && t.Text != "" {
			parts = append(parts, t.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// HasImage reports whether the message carries an image part.
func (m Message) HasImage() bool {
	for _, p := range m.Parts {
		if p.PartType() == PartImage {
			return true
		}
	}
	return false
}

// HasAudio reports whether the message carries an audio part.
func (m Message) HasAudio() bool {
	for _, p := range m.Parts {
		if p.PartType() == PartAudio {
			return true
		}
	}
	return false
}

// IsTextOnly reports whether every part of the message is text.
func (m Message) IsTextOnly() bool {
	for _, p := range m.Parts {
		if p.PartType() != PartText {
			return false
		}
	}
	return true
}
