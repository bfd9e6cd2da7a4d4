package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/aman-churiwal/ai-gateway/internal/credential"
)

// maxErrorSnippet bounds how much of an error body ends up in failure reasons.
const maxErrorSnippet = 200

// OpenAIAdapter speaks the chat-completions wire format shared by OpenAI,
// DeepSeek and OpenRouter.
type OpenAIAdapter struct {
	id       string
	endpoint string
	model    string
	headers  map[string]string
	client   *http.Client
}

func NewOpenAIAdapter(id, endpoint, model string, headers map[string]string, client *http.Client) *OpenAIAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAIAdapter{id: id, endpoint: endpoint, model: model, headers: headers, client: client}
}

func (a *OpenAIAdapter) ID() string { return a.id }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float32         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

func (a *OpenAIAdapter) Complete(ctx context.Context, secret credential.Secret, req Request) (string, error) {
	messages := make([]openAIMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, openAIMessage{Role: m.Role, Content: m.Text})
	}

	body, err := json.Marshal(openAIRequest{
		Model:       a.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &ProviderError{Provider: a.id, Reason: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+secret.Reveal())
	for k, v := range a.headers {
		httpReq.Header.Set(k, v)
	}

	respBody, err := doJSON(a.client, httpReq, a.id)
	if err != nil {
		return "", err
	}

	content := gjson.GetBytes(respBody, "choices.0.message.content")
	text := strings.TrimSpace(content.String())
	if !content.Exists() || text == "" {
		return "", &ProviderError{Provider: a.id, Reason: "no completion text", Err: ErrMalformedResponse}
	}
	return text, nil
}

// doJSON sends req and returns the body of a 2xx JSON response.
func doJSON(client *http.Client, req *http.Request, providerID string) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: providerID, Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &ProviderError{Provider: providerID, StatusCode: resp.StatusCode, Reason: "read body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProviderError{
			Provider:   providerID,
			StatusCode: resp.StatusCode,
			Reason:     snippet(body),
		}
	}

	if !gjson.ValidBytes(body) {
		return nil, &ProviderError{Provider: providerID, StatusCode: resp.StatusCode, Reason: "invalid json", Err: ErrMalformedResponse}
	}
	return body, nil
}

func snippet(body []byte) string {
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
		body = []byte(msg.String())
	}
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorSnippet {
		s = s[:maxErrorSnippet] + "..."
	}
	return fmt.Sprintf("%q", s)
}
