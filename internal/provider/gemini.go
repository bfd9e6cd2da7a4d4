package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/aman-churiwal/ai-gateway/internal/credential"
)

// GeminiAdapter calls Gemini through the genai SDK. One SDK client is kept
// per distinct secret so a rotated key gets a fresh client.
type GeminiAdapter struct {
	id      string
	model   string
	baseURL string

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewGeminiAdapter builds the adapter. baseURL may be empty for the public API.
func NewGeminiAdapter(id, model, baseURL string) *GeminiAdapter {
	return &GeminiAdapter{
		id:      id,
		model:   model,
		baseURL: baseURL,
		clients: make(map[string]*genai.Client),
	}
}

func (a *GeminiAdapter) ID() string { return a.id }

func (a *GeminiAdapter) client(ctx context.Context, secret credential.Secret) (*genai.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := secret.Reveal()
	if c, ok := a.clients[key]; ok {
		return c, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	}
	if a.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: a.baseURL}
	}

	c, err := genai.NewClient(context.WithoutCancel(ctx), cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	// Old keys are rotated out; keep only the current client.
	a.clients = map[string]*genai.Client{key: c}
	return c, nil
}

func (a *GeminiAdapter) Complete(ctx context.Context, secret credential.Secret, req Request) (string, error) {
	client, err := a.client(ctx, secret)
	if err != nil {
		return "", &ProviderError{Provider: a.id, Reason: "client init", Err: err}
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		var role genai.Role = genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	resp, err := client.Models.GenerateContent(ctx, a.model, contents, config)
	if err != nil {
		return "", &ProviderError{Provider: a.id, Reason: "generate content", Err: err}
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &ProviderError{Provider: a.id, Reason: "empty candidate", Err: ErrMalformedResponse}
	}
	return text, nil
}
