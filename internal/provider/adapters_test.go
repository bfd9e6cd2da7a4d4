package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/aman-churiwal/ai-gateway/internal/credential"
)

var sampleRequest = Request{
	SystemPrompt: "You are an emergency pet care assistant.",
	Messages: []Message{
		{Role: RoleUser, Text: "my dog ate chocolate"},
		{Role: RoleAssistant, Text: "how much?"},
		{Role: RoleUser, Text: "a whole bar"},
	},
	Temperature: 0.7,
	MaxTokens:   800,
}

func TestOpenAIAdapter_Complete(t *testing.T) {
	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "PawGuard", r.Header.Get("X-Title"))
		captured, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Call your vet now.  "}}]}`))
	}))
	defer srv.Close()

	a := NewOpenAIAdapter("deepseek", srv.URL, "deepseek-chat", map[string]string{"X-Title": "PawGuard"}, srv.Client())
	text, err := a.Complete(context.Background(), credential.Secret("sk-test"), sampleRequest)
	require.NoError(t, err)
	assert.Equal(t, "Call your vet now.", text)

	assert.Equal(t, "deepseek-chat", gjson.GetBytes(captured, "model").String())
	assert.Equal(t, "system", gjson.GetBytes(captured, "messages.0.role").String())
	assert.Equal(t, "a whole bar", gjson.GetBytes(captured, "messages.3.content").String())
	assert.Equal(t, int64(800), gjson.GetBytes(captured, "max_tokens").Int())
}

func TestOpenAIAdapter_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{"non-2xx", http.StatusTooManyRequests, `{"error":{"message":"rate limited"}}`, func(t *testing.T, err error) {
			var perr *ProviderError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, http.StatusTooManyRequests, perr.StatusCode)
			assert.Contains(t, perr.Reason, "rate limited")
		}},
		{"not json", http.StatusOK, `<html>oops</html>`, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrMalformedResponse)
		}},
		{"no choices", http.StatusOK, `{"choices":[]}`, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrMalformedResponse)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			a := NewOpenAIAdapter("openai", srv.URL, "gpt-4o-mini", nil, srv.Client())
			_, err := a.Complete(context.Background(), credential.Secret("sk-test"), sampleRequest)
			require.Error(t, err)
			assert.NotContains(t, err.Error(), "sk-test")
			tt.check(t, err)
		})
	}
}

func TestAnthropicAdapter_Complete(t *testing.T) {
	var captured anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ak-test", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Induce "},{"type":"tool_use","id":"x"},{"type":"text","text":"nothing; see a vet."}]}`))
	}))
	defer srv.Close()

	a := NewAnthropicAdapter("anthropic", srv.URL, "claude-3-haiku", nil, srv.Client())
	text, err := a.Complete(context.Background(), credential.Secret("ak-test"), sampleRequest)
	require.NoError(t, err)
	assert.Equal(t, "Induce nothing; see a vet.", text)

	assert.Equal(t, sampleRequest.SystemPrompt, captured.System)
	require.Len(t, captured.Messages, 3)
	assert.Equal(t, RoleUser, captured.Messages[0].Role)
}

func TestAnthropicMessages_Alternation(t *testing.T) {
	out := anthropicMessages([]Message{
		{Role: RoleAssistant, Text: "hello!"},
		{Role: RoleUser, Text: "a"},
		{Role: RoleUser, Text: "b"},
		{Role: RoleAssistant, Text: "c"},
	})
	assert.Equal(t, []anthropicMessage{
		{Role: RoleUser, Content: "a\n\nb"},
		{Role: RoleAssistant, Content: "c"},
	}, out)
}

func TestGeminiAdapter_Complete(t *testing.T) {
	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Grapes are toxic."}]}}]}`))
	}))
	defer srv.Close()

	a := NewGeminiAdapter("gemini", "gemini-2.5-flash", srv.URL)
	text, err := a.Complete(context.Background(), credential.Secret("g-test"), sampleRequest)
	require.NoError(t, err)
	assert.Equal(t, "Grapes are toxic.", text)
	assert.Equal(t, "model", gjson.GetBytes(captured, "contents.1.role").String())
}
