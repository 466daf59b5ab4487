package relay

// Modality classifies what an inbound message carries.
type Modality string

const (
	ModalityText       Modality = "text"
	ModalityImage      Modality = "image"
	ModalityVoice      Modality = "voice"
	ModalityMultimodal Modality = "multimodal"
)

// ConfigKey is the per-user configuration slot a modality resolves to.
// Image and multimodal requests share the multimodal slot.
type ConfigKey string

const (
	ConfigText       ConfigKey = "text"
	ConfigMultimodal ConfigKey = "multimodal"
	ConfigVoice      ConfigKey = "voice"
)

// ConfigKeyFor maps a request modality to its configuration slot.
func ConfigKeyFor(m Modality) ConfigKey {
	switch m {
	case ModalityImage, ModalityMultimodal:
		return ConfigMultimodal
	case ModalityVoice:
		return ConfigVoice
	default:
		return ConfigText
	}
}

// WireFormat hints which request encoding a provider endpoint speaks.
type WireFormat string

const (
	WireOpenAI WireFormat = "openai"
	WireGemini WireFormat = "gemini"
)

// ProviderConfig is the fully resolved target for one dispatch attempt:
// which platform, which model, where, and with what credential.
type ProviderConfig struct {
	Platform   string     `json:"platform"`
	Model      string     `json:"model"`
	BaseURL    string     `json:"base_url"`
	APIKey     string     `json:"-"`
	Modalities []Modality `json:"modalities,omitempty"`
	WireFormat WireFormat `json:"wire_format,omitempty"`

	// UserConfigured marks a config resolved from the user's own
	// settings rather than the system default.
	UserConfigured bool `json:"user_configured"`
	// Fallback marks the system-default config used after a failed
	// user-configured attempt.
	Fallback bool `json:"fallback"`
}

// HasCredential reports whether the config carries a usable API key.
func (c ProviderConfig) HasCredential() bool { return c.APIKey != "" }

// Same reports whether two configs target the identical endpoint, used
// to skip a pointless fallback retry against the same provider.
func (c ProviderConfig) Same(o ProviderConfig) bool {
	return c.Platform == o.Platform && c.Model == o.Model && c.BaseURL == o.BaseURL
}
