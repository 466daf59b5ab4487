package omniroute

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/omniroute/relay"
)

func TestDefaultRegistryOrder(t *testing.T) {
	reg := NewDefaultRegistry(nil)
	ds := reg.Dispatchers()
	require.Len(t, ds, 5)

	names := make([]string, len(ds))
	for i, d := range ds {
		names[i] = d.Name()
	}
	assert.Equal(t, []string{"gemini_audio", "openai_stt", "qwen_omni", "gemini", "openai_compatible"}, names)
}

func TestDefaultRegistryResolution(t *testing.T) {
	reg := NewDefaultRegistry(nil)

	cases := []struct {
		platform string
		model    string
		hasAudio bool
		want     string
	}{
		{"deepseek", "deepseek-chat", false, "openai_compatible"},
		{"gemini", "gemini-2.0-flash", false, "gemini"},
		{"gemini", "gemini-2.0-flash", true, "gemini_audio"},
		{"openai", "whisper-1", true, "openai_stt"},
		{"openai", "tts-1", true, "openai_stt"},
		{"dashscope", "qwen-omni-turbo", false, "qwen_omni"},
		{"dashscope", "qwen2.5-omni-7b", true, "qwen_omni"},
		{"qwen", "unknown-model", true, "qwen_omni"},
	}
	for _, tc := range cases {
		d, err := reg.Resolve(tc.platform, tc.model, tc.hasAudio)
		require.NoError(t, err, "%s/%s audio=%v", tc.platform, tc.model, tc.hasAudio)
		assert.Equal(t, tc.want, d.Name(), "%s/%s audio=%v", tc.platform, tc.model, tc.hasAudio)
	}
}

func TestDefaultRegistryUnmatchedAudioIsNotFound(t *testing.T) {
	// Audio on a plain chat model has no adapter; the clip must never
	// be silently dropped by the default adapter.
	reg := NewDefaultRegistry(nil)

	for _, tc := range []struct{ platform, model string }{
		{"openai", "gpt-4o"},
		{"deepseek", "deepseek-chat"},
		{"siliconflow", "FunAudioLLM/SenseVoiceSmall"},
	} {
		_, err := reg.Resolve(tc.platform, tc.model, true)
		require.Error(t, err, "%s/%s", tc.platform, tc.model)
		assert.Equal(t, relay.ErrNotFound, relay.CodeOf(err), "%s/%s", tc.platform, tc.model)
	}
}
