// Package llm defines the chat backend used by agent phases.
package llm

import (
	"context"
	"errors"
	"time"
)

// Roles used in a conversation.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a single chat completion request.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
}

// ChatResponse is the assistant reply.
type ChatResponse struct {
	Content  string
	Model    string
	Duration time.Duration
}

// Provider is a chat completion backend.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ErrEmptyResponse is returned when the backend answers without content.
var ErrEmptyResponse = errors.New("empty response from chat backend")

// RetryConfig bounds transient-error retries in the backend client.
type RetryConfig struct {
	MaxRetries  int
	InitBackoff time.Duration
	MaxBackoff  time.Duration
}
