package modelconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/omniroute/relay"
)

// BuiltinPlatforms 内置平台目录，平台名到默认 BaseURL.
var BuiltinPlatforms = map[string]string{
	"deepseek":    "https://api.deepseek.com/v1",
	"qwen":        "https://dashscope.aliyuncs.com/compatible-mode/v1",
	"zhipu":       "https://open.bigmodel.cn/api/paas/v4",
	"siliconflow": "https://api.siliconflow.cn/v1",
	"minimax":     "https://api.minimax.chat/v1",
	"openai":      "https://api.openai.com/v1",
	"gemini":      "https://generativelanguage.googleapis.com/v1beta",
}

// DefaultModel 系统默认模型的 YAML 形态.
type DefaultModel struct {
	Platform string `yaml:"platform"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url,omitempty"`
}

// Defaults 系统级默认配置，按模态槽位.
type Defaults struct {
	Text       DefaultModel `yaml:"text"`
	Multimodal DefaultModel `yaml:"multimodal"`
	Voice      DefaultModel `yaml:"voice"`
}

// BuiltinDefaults returns the hardcoded system defaults used when no
// config file overrides them.
func BuiltinDefaults() Defaults {
	return Defaults{
		Text:       DefaultModel{Platform: "deepseek", Model: "deepseek-chat"},
		Multimodal: DefaultModel{Platform: "zhipu", Model: "glm-4v-flash"},
		Voice:      DefaultModel{Platform: "siliconflow", Model: "FunAudioLLM/SenseVoiceSmall"},
	}
}

// LoadDefaults reads system defaults from a YAML file, filling missing
// slots from the builtin defaults.
func LoadDefaults(path string) (Defaults, error) {
	d := BuiltinDefaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return d, fmt.Errorf("failed to read defaults file: %w", err)
	}
	if err := yaml.Unmarshal(data, &d); err != nil {
		return BuiltinDefaults(), fmt.Errorf("failed to parse defaults file: %w", err)
	}
	return d, nil
}

// slot returns the default model for a config slot.
func (d Defaults) slot(key relay.ConfigKey) DefaultModel {
	switch key {
	case relay.ConfigMultimodal:
		return d.Multimodal
	case relay.ConfigVoice:
		return d.Voice
	default:
		return d.Text
	}
}

// Config materializes the system default for a slot. The API key is
// intentionally empty; deployments inject platform keys through the
// environment, and a missing key surfaces as CONFIG_ERROR at dispatch.
func (d Defaults) Config(key relay.ConfigKey) relay.ProviderConfig {
	m := d.slot(key)
	baseURL := m.BaseURL
	if baseURL == "" {
		baseURL = BuiltinPlatforms[m.Platform]
	}
	return relay.ProviderConfig{
		Platform: m.Platform,
		Model:    m.Model,
		BaseURL:  baseURL,
		APIKey:   os.Getenv(platformKeyEnv(m.Platform)),
	}
}

// platformKeyEnv names the environment variable carrying the system
// key for a platform, e.g. OMNIROUTE_DEEPSEEK_API_KEY.
func platformKeyEnv(platform string) string {
	upper := make([]rune, 0, len(platform))
	for _, r := range platform {
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			upper = append(upper, r)
		} else {
			upper = append(upper, '_')
		}
	}
	return "OMNIROUTE_" + string(upper) + "_API_KEY"
}
