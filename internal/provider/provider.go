// Package provider adapts text-completion backends behind one interface and
// routes requests across them in a fixed priority order.
package provider

import (
	"context"

	"github.com/aman-churiwal/ai-gateway/internal/credential"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Request is the provider-neutral shape every adapter accepts.
type Request struct {
	SystemPrompt string
	Messages     []Message
	Temperature  float32
	MaxTokens    int
}

// Adapter hides one backend's wire format, model id and auth scheme.
type Adapter interface {
	ID() string
	Complete(ctx context.Context, secret credential.Secret, req Request) (string, error)
}
