package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

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

func sseChunk(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"delta": map[string]string{"content": content}}},
	})
	return "data: " + string(b) + "\n\n"
}

func TestSupports(t *testing.T) {
	d := New(nil)
	assert.True(t, d.Supports("deepseek", "deepseek-chat", false))
	assert.False(t, d.Supports("google", "gemini-2.0-flash", false))
	// Audio never lands on the default adapter; unclaimed audio must
	// surface NOT_FOUND at the registry instead.
	assert.False(t, d.Supports("openai", "gpt-4o", true))
	assert.False(t, d.Supports("openai", "whisper-1", true))
	assert.False(t, d.Supports("siliconflow", "FunAudioLLM/SenseVoiceSmall", true))
	// Speech model without audio attachment is plain chat.
	assert.True(t, d.Supports("openai", "whisper-1", false))
}

func TestCallStreaming(t *testing.T) {
	// goleak is registered first so it runs after the server and the
	// idle keep-alive connections are torn down.
	defer goleak.VerifyNone(t)

	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk("Hel"))
		fmt.Fprint(w, sseChunk("lo"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	d := New(nil)
	defer d.client.CloseIdleConnections()
	cfg := relay.ProviderConfig{Platform: "deepseek", Model: "deepseek-chat", BaseURL: srv.URL + "/v1", APIKey: "sk-test"}
	ch, err := d.Call(context.Background(), cfg, []relay.Message{relay.NewUserMessage("hi")}, true, relay.CallOptions{})
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 3)
	assert.Equal(t, relay.TextEvent{Content: "Hel"}, events[0])
	assert.Equal(t, relay.TextEvent{Content: "lo"}, events[1])
	assert.IsType(t, relay.DoneEvent{}, events[2])

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "deepseek-chat", gotBody["model"])
	assert.Equal(t, true, gotBody["stream"])
	assert.InDelta(t, 0.7, gotBody["temperature"].(float64), 0.001)
	assert.EqualValues(t, 4000, gotBody["max_tokens"])
	// Text-only history stays plain string content.
	msgs := gotBody["messages"].([]any)
	assert.Equal(t, "hi", msgs[0].(map[string]any)["content"])
}

func TestCallNonStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"full answer"}}]}`)
	}))
	defer srv.Close()

	d := New(nil)
	cfg := relay.ProviderConfig{Platform: "openai", Model: "gpt-4o", BaseURL: srv.URL, APIKey: "k"}
	ch, err := d.Call(context.Background(), cfg, []relay.Message{relay.NewUserMessage("hi")}, false, relay.CallOptions{})
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 2)
	assert.Equal(t, relay.TextEvent{Content: "full answer"}, events[0])
	assert.IsType(t, relay.DoneEvent{}, events[1])
}

func TestCallUpstreamErrorIsSync(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid api key"}}`)
	}))
	defer srv.Close()

	d := New(nil)
	cfg := relay.ProviderConfig{Platform: "openai", Model: "gpt-4o", BaseURL: srv.URL, APIKey: "bad"}
	ch, err := d.Call(context.Background(), cfg, []relay.Message{relay.NewUserMessage("hi")}, true, relay.CallOptions{})
	require.Error(t, err)
	assert.Nil(t, ch)
	assert.Equal(t, relay.ErrUnauthorized, relay.CodeOf(err))
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestCallMidStreamCutRecovers(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		// Promise more bytes than the body delivers: the client sees a
		// guaranteed unexpected EOF after the first chunk, no [DONE].
		w.Header().Set("Content-Length", "4096")
		fmt.Fprint(w, sseChunk("partial out"))
		w.(http.Flusher).Flush()
	}))
	defer srv.Close()

	d := New(nil)
	defer d.client.CloseIdleConnections()
	cfg := relay.ProviderConfig{Platform: "openai", Model: "gpt-4o", BaseURL: srv.URL, APIKey: "k"}
	ch, err := d.Call(context.Background(), cfg, []relay.Message{relay.NewUserMessage("hi")}, true, relay.CallOptions{})
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 3)
	assert.Equal(t, relay.TextEvent{Content: "partial out"}, events[0])

	// After surfaced content the failure must end as interrupted+done,
	// never as an error event.
	interrupted, ok := events[1].(relay.StreamInterruptedEvent)
	require.True(t, ok, "expected stream_interrupted, got %T", events[1])
	assert.Equal(t, len("partial out"), interrupted.PartialLength)
	assert.IsType(t, relay.DoneEvent{}, events[2])
}
