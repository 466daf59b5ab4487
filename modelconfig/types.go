// Package modelconfig resolves which provider and model serves a
// given user and modality. It layers per-user settings from the store
// over platform credentials and system defaults, with an in-process
// TTL cache and an optional Redis layer in front of the store.
package modelconfig

import "github.com/BaSui01/omniroute/relay"

// ModalitySetting 用户为单一模态选择的模型配置.
type ModalitySetting struct {
	ConfigID  string `json:"config_id"`
	Platform  string `json:"platform"`
	ModelID   string `json:"model_id"`
	ModelName string `json:"model_name,omitempty"`
	// ModelTypes 标记模型能力（text/multimodal/voice）.
	ModelTypes []string `json:"model_types,omitempty"`
	// APIKey/BaseURL 内嵌凭证，优先于平台级凭证.
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
}

// PlatformCredential 用户在某平台的凭证.
type PlatformCredential struct {
	Platform string `json:"platform"`
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url,omitempty"`
}

// CustomPlatform 用户自定义的 OpenAI 兼容平台.
type CustomPlatform struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
}

// UserDocument 单个用户的全部模型配置，按模态分槽.
type UserDocument struct {
	Modalities      map[relay.ConfigKey]ModalitySetting `json:"modalities,omitempty"`
	Credentials     []PlatformCredential                `json:"credentials,omitempty"`
	CustomPlatforms []CustomPlatform                    `json:"custom_platforms,omitempty"`
}

// Setting returns the user's setting for a config slot. The legacy
// "vision" slot name aliases to multimodal.
func (d *UserDocument) Setting(key relay.ConfigKey) (ModalitySetting, bool) {
	if d == nil || d.Modalities == nil {
		return ModalitySetting{}, false
	}
	if s, ok := d.Modalities[key]; ok {
		return s, true
	}
	if key == relay.ConfigMultimodal {
		if s, ok := d.Modalities["vision"]; ok {
			return s, true
		}
	}
	return ModalitySetting{}, false
}

// Credential returns the user's credential for a platform.
func (d *UserDocument) Credential(platform string) (PlatformCredential, bool) {
	if d == nil {
		return PlatformCredential{}, false
	}
	for _, c := range d.Credentials {
		if c.Platform == platform {
			return c, true
		}
	}
	return PlatformCredential{}, false
}

// Platform returns the user's custom platform by name.
func (d *UserDocument) Platform(name string) (CustomPlatform, bool) {
	if d == nil {
		return CustomPlatform{}, false
	}
	for _, p := range d.CustomPlatforms {
		if p.Name == name {
			return p, true
		}
	}
	return CustomPlatform{}, false
}
