package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/omniroute/relay"
)

func collect(t *testing.T, ch <-chan relay.Event) []relay.Event {
	t.Helper()
	var out []relay.Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func clipServer(t *testing.T) *httptest.Server {
	clip := append([]byte("ID3\x04\x00"), bytes.Repeat([]byte{0}, 1500)...)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(clip)
	}))
}

func TestSupports(t *testing.T) {
	d := New(nil)
	assert.True(t, d.Supports("openai", "whisper-1", true))
	assert.True(t, d.Supports("openai", "tts-1", true))
	assert.False(t, d.Supports("openai", "whisper-1", false))
	assert.False(t, d.Supports("openai", "gpt-4o", true))
}

func TestTwoStagePipeline(t *testing.T) {
	cdn := clipServer(t)
	defer cdn.Close()

	var uploadModelField, uploadFilename, uploadMIME string
	speech := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(16<<20))
		uploadModelField = r.FormValue("model")
		_, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		uploadFilename = hdr.Filename
		uploadMIME = hdr.Header.Get("Content-Type")
		fmt.Fprint(w, `{"text":"今天天气怎么样"}`)
	}))
	defer speech.Close()

	var chatBody map[string]any
	chat := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer text-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&chatBody))
		fmt.Fprint(w, `{"choices":[{"message":{"content":"晴天"}}]}`)
	}))
	defer chat.Close()

	d := New(nil)
	cfg := relay.ProviderConfig{Platform: "openai", Model: "whisper-large", BaseURL: speech.URL, APIKey: "stt-key"}
	opts := relay.CallOptions{
		UserID:   "u1",
		AudioURL: cdn.URL + "/voice.mp3",
		TextConfig: func(ctx context.Context, userID string) (relay.ProviderConfig, error) {
			assert.Equal(t, "u1", userID)
			return relay.ProviderConfig{Platform: "deepseek", Model: "deepseek-chat", BaseURL: chat.URL, APIKey: "text-key"}, nil
		},
	}
	ch, err := d.Call(context.Background(), cfg, []relay.Message{relay.NewUserMessage("")}, false, opts)
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 3)
	assert.Equal(t, relay.TranscriptionEvent{Text: "今天天气怎么样"}, events[0])
	assert.Equal(t, relay.TextEvent{Content: "晴天"}, events[1])
	assert.IsType(t, relay.DoneEvent{}, events[2])

	// The upload model is pinned, not the configured id.
	assert.Equal(t, "whisper-1", uploadModelField)
	assert.Equal(t, "voice.mp3", uploadFilename)
	// The file part carries the sniffed MIME, not octet-stream.
	assert.Equal(t, "audio/mp3", uploadMIME)

	// The text stage sees the transcript, not the audio.
	msgs := chatBody["messages"].([]any)
	assert.Equal(t, "今天天气怎么样", msgs[len(msgs)-1].(map[string]any)["content"])
	assert.Equal(t, "deepseek-chat", chatBody["model"])
}

func TestTooSmallClipIsAudioError(t *testing.T) {
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tiny"))
	}))
	defer cdn.Close()

	d := New(nil)
	cfg := relay.ProviderConfig{Platform: "openai", Model: "whisper-1", BaseURL: "http://unused.invalid", APIKey: "k"}
	ch, err := d.Call(context.Background(), cfg, []relay.Message{relay.NewUserMessage("")}, true,
		relay.CallOptions{AudioURL: cdn.URL + "/a.mp3"})
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 1)
	ev, ok := events[0].(relay.ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, relay.ErrAudio, ev.Err.Code)
}

func TestTranscriptionFailureIsAudioError(t *testing.T) {
	cdn := clipServer(t)
	defer cdn.Close()

	speech := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"unsupported format"}}`)
	}))
	defer speech.Close()

	d := New(nil)
	cfg := relay.ProviderConfig{Platform: "openai", Model: "whisper-1", BaseURL: speech.URL, APIKey: "k"}
	ch, err := d.Call(context.Background(), cfg, []relay.Message{relay.NewUserMessage("")}, true,
		relay.CallOptions{AudioURL: cdn.URL + "/a.mp3"})
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 1)
	ev, ok := events[0].(relay.ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, relay.ErrAudio, ev.Err.Code)
	assert.Contains(t, ev.Err.Message, "unsupported format")
}

func TestTextStageFailureAfterTranscriptIsInterrupted(t *testing.T) {
	cdn := clipServer(t)
	defer cdn.Close()

	speech := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"text":"transcript"}`)
	}))
	defer speech.Close()

	chat := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "bad gateway")
	}))
	defer chat.Close()

	d := New(nil)
	cfg := relay.ProviderConfig{Platform: "openai", Model: "whisper-1", BaseURL: speech.URL, APIKey: "k"}
	opts := relay.CallOptions{
		AudioURL: cdn.URL + "/a.mp3",
		TextConfig: func(ctx context.Context, userID string) (relay.ProviderConfig, error) {
			return relay.ProviderConfig{Platform: "openai", Model: "gpt-4o", BaseURL: chat.URL, APIKey: "k"}, nil
		},
	}
	ch, err := d.Call(context.Background(), cfg, []relay.Message{relay.NewUserMessage("")}, true, opts)
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 3)
	assert.IsType(t, relay.TranscriptionEvent{}, events[0])
	interrupted, ok := events[1].(relay.StreamInterruptedEvent)
	require.True(t, ok)
	assert.Equal(t, len("transcript"), interrupted.PartialLength)
	assert.IsType(t, relay.DoneEvent{}, events[2])
}

func TestNoAudioURLDelegates(t *testing.T) {
	chat := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		fmt.Fprint(w, `{"choices":[{"message":{"content":"plain"}}]}`)
	}))
	defer chat.Close()

	d := New(nil)
	cfg := relay.ProviderConfig{Platform: "openai", Model: "whisper-1", BaseURL: chat.URL, APIKey: "k"}
	ch, err := d.Call(context.Background(), cfg, []relay.Message{relay.NewUserMessage("hi")}, false, relay.CallOptions{})
	require.NoError(t, err)
	events := collect(t, ch)
	require.Len(t, events, 2)
	assert.Equal(t, relay.TextEvent{Content: "plain"}, events[0])
}
