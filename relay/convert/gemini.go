package convert

import (
	"github.com/BaSui01/omniroute/relay"
)

// GeminiContent is one turn in Gemini generateContent wire format.
type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

// GeminiPart is one content element. Exactly one field is set.
type GeminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *GeminiInlineData `json:"inlineData,omitempty"`
	FileData   *GeminiFileData   `json:"fileData,omitempty"`
}

// GeminiInlineData carries inline base64 media.
type GeminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// GeminiFileData references media by URI.
type GeminiFileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileUri  string `json:"fileUri"`
}

// ToGemini converts neutral messages to Gemini wire format. System
// turns are pulled out into the systemInstruction (joined when there
// are several), assistant becomes role "model", data-URL images become
// inlineData and remote images fileData. Audio parts follow the same
// inline/reference split.
func ToGemini(msgs []relay.Message) (contents []GeminiContent, systemInstruction *GeminiContent) {
	var sysParts []GeminiPart
	for _, m := range msgs {
		if m.Role == relay.RoleSystem {
			if t := m.Text(); t != "" {
				sysParts = append(sysParts, GeminiPart{Text: t})
			}
			continue
		}

		role := "user"
		if m.Role == relay.RoleAssistant {
			role = "model"
		}

		var parts []GeminiPart
		for _, p := range m.Parts {
			switch v := p.(type) {
			case relay.TextPart:
				if v.Text != "" {
					parts = append(parts, GeminiPart{Text: v.Text})
				}
			case relay.ImagePart:
				if mime, data, ok := ParseDataURL(v.URL); ok {
					parts = append(parts, GeminiPart{InlineData: &GeminiInlineData{MimeType: mime, Data: data}})
				} else {
					parts = append(parts, GeminiPart{FileData: &GeminiFileData{FileUri: v.URL}})
				}
			case relay.AudioPart:
				switch {
				case v.Data != "":
					mime := "audio/" + v.Format
					if v.Format == "" {
						mime = "audio/mp3"
					}
					parts = append(parts, GeminiPart{InlineData: &GeminiInlineData{MimeType: mime, Data: v.Data}})
				case v.URL != "":
					parts = append(parts, GeminiPart{FileData: &GeminiFileData{FileUri: v.URL}})
				}
			}
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, GeminiContent{Role: role, Parts: parts})
	}

	if len(sysParts) > 0 {
		systemInstruction = &GeminiContent{Parts: sysParts}
	}
	return contents, systemInstruction
}

// FromGemini converts Gemini wire contents back to neutral messages.
// Inline media is reconstructed as a data URL so the original MIME
// type survives a round trip.
func FromGemini(contents []GeminiContent, systemInstruction *GeminiContent) []relay.Message {
	var out []relay.Message
	if systemInstruction != nil {
		for _, p := range systemInstruction.Parts {
			if p.Text != "" {
				out = append(out, relay.NewSystemMessage(p.Text))
			}
		}
	}
	for _, c := range contents {
		role := relay.RoleUser
		if c.Role == "model" {
			role = relay.RoleAssistant
		}
		var parts []relay.Part
		for _, p := range c.Parts {
			switch {
			case p.Text != "":
				parts = append(parts, relay.TextPart{Text: p.Text})
			case p.InlineData != nil:
				parts = append(parts, relay.ImagePart{
					URL: "data:" + p.InlineData.MimeType + ";base64," + p.InlineData.Data,
				})
			case p.FileData != nil:
				parts = append(parts, relay.ImagePart{URL: p.FileData.FileUri})
			}
		}
		if len(parts) == 0 {
			continue
		}
		out = append(out, relay.Message{Role: role, Parts: parts})
	}
	return out
}
