package provider

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/aman-churiwal/ai-gateway/internal/credential"
)

const anthropicVersion = "2023-06-01"

// AnthropicAdapter speaks the Messages API.
type AnthropicAdapter struct {
	id       string
	endpoint string
	model    string
	headers  map[string]string
	client   *http.Client
}

func NewAnthropicAdapter(id, endpoint, model string, headers map[string]string, client *http.Client) *AnthropicAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &AnthropicAdapter{id: id, endpoint: endpoint, model: model, headers: headers, client: client}
}

func (a *AnthropicAdapter) ID() string { return a.id }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float32            `json:"temperature"`
}

// anthropicMessages merges consecutive same-role turns and drops leading
// assistant turns; the Messages API requires alternation starting with user.
func anthropicMessages(in []Message) []anthropicMessage {
	out := make([]anthropicMessage, 0, len(in))
	for _, m := range in {
		role := RoleUser
		if m.Role == RoleAssistant {
			role = RoleAssistant
		}
		if len(out) == 0 && role == RoleAssistant {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n\n" + m.Text
			continue
		}
		out = append(out, anthropicMessage{Role: role, Content: m.Text})
	}
	return out
}

func (a *AnthropicAdapter) Complete(ctx context.Context, secret credential.Secret, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       a.model,
		System:      req.SystemPrompt,
		Messages:    anthropicMessages(req.Messages),
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &ProviderError{Provider: a.id, Reason: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", secret.Reveal())
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	for k, v := range a.headers {
		httpReq.Header.Set(k, v)
	}

	respBody, err := doJSON(a.client, httpReq, a.id)
	if err != nil {
		return "", err
	}

	var parts []string
	for _, r := range gjson.GetBytes(respBody, `content.#(type=="text")#.text`).Array() {
		parts = append(parts, r.String())
	}
	text := strings.TrimSpace(strings.Join(parts, ""))
	if text == "" {
		return "", &ProviderError{Provider: a.id, Reason: "no text content", Err: ErrMalformedResponse}
	}
	return text, nil
}
