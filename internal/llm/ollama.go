package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultBaseURL is the local Ollama endpoint.
const DefaultBaseURL = "http://localhost:11434"

// OllamaClient talks to an Ollama-compatible /api/chat endpoint.
type OllamaClient struct {
	BaseURL string
	Client  *http.Client
	Retry   RetryConfig
}

// NewOllamaClient creates a client with a fixed per-request timeout.
func NewOllamaClient(baseURL string, timeout time.Duration, retry RetryConfig) *OllamaClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &OllamaClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
		Retry:   retry,
	}
}

type ollamaRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	Options  ollamaOptions `json:"options"`
	Stream   bool          `json:"stream"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaResponse struct {
	Model   string  `json:"model"`
	Message Message `json:"message"`
	Error   string  `json:"error"`
}

// statusError is a non-2xx backend answer.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("chat backend returned %d: %s", e.Status, e.Body)
}

func (e *statusError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Chat sends one request. Transient failures are retried up to
// Retry.MaxRetries times; everything else fails immediately.
func (c *OllamaClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(ollamaRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Options:  ollamaOptions{Temperature: req.Temperature},
		Stream:   false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	start := time.Now()
	var resp *ChatResponse
	op := func() error {
		r, err := c.do(ctx, body)
		if err != nil {
			if se, ok := err.(*statusError); ok && !se.retryable() {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	}

	if c.Retry.MaxRetries <= 0 {
		if err := op(); err != nil {
			return nil, unwrapPermanent(err)
		}
	} else {
		b := backoff.NewExponentialBackOff()
		if c.Retry.InitBackoff > 0 {
			b.InitialInterval = c.Retry.InitBackoff
		}
		if c.Retry.MaxBackoff > 0 {
			b.MaxInterval = c.Retry.MaxBackoff
		}
		policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.Retry.MaxRetries)), ctx)
		if err := backoff.Retry(op, policy); err != nil {
			return nil, unwrapPermanent(err)
		}
	}
	resp.Duration = time.Since(start)
	return resp, nil
}

func unwrapPermanent(err error) error {
	if p, ok := err.(*backoff.PermanentError); ok {
		return p.Err
	}
	return err
}

func (c *OllamaClient) do(ctx context.Context, body []byte) (*ChatResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat backend unreachable: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read chat response: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, &statusError{Status: httpResp.StatusCode, Body: truncate(string(raw), 300)}
	}

	var out ollamaResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("malformed chat response: %w", err))
	}
	if out.Error != "" {
		return nil, backoff.Permanent(fmt.Errorf("chat backend error: %s", out.Error))
	}
	if strings.TrimSpace(out.Message.Content) == "" {
		return nil, backoff.Permanent(ErrEmptyResponse)
	}
	return &ChatResponse{Content: out.Message.Content, Model: out.Model}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
