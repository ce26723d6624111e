package llm

import (
	"context"
	"sync"
)

type mockStep struct {
	content string
	err     error
}

// MockProvider is a scripted Provider for tests. Scripted steps are consumed
// in order; the last one repeats.
type MockProvider struct {
	mu       sync.Mutex
	steps    []mockStep
	requests []ChatRequest

	// ChatFunc, when set, overrides the script.
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// NewMockProvider creates an empty mock.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// SetResponse replaces the script with a single response.
func (m *MockProvider) SetResponse(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = []mockStep{{content: content}}
}

// QueueResponses appends responses to the script.
func (m *MockProvider) QueueResponses(contents ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range contents {
		m.steps = append(m.steps, mockStep{content: c})
	}
}

// QueueError appends a failing call to the script.
func (m *MockProvider) QueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, mockStep{err: err})
}

func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	req.Messages = append([]Message(nil), req.Messages...)
	m.requests = append(m.requests, req)
	fn := m.ChatFunc
	var step mockStep
	if len(m.steps) > 0 {
		step = m.steps[0]
		if len(m.steps) > 1 {
			m.steps = m.steps[1:]
		}
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if step.err != nil {
		return nil, step.err
	}
	return &ChatResponse{Content: step.content, Model: req.Model}, nil
}

// Requests returns a copy of every request seen so far.
func (m *MockProvider) Requests() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatRequest(nil), m.requests...)
}

// LastRequest returns the most recent request.
func (m *MockProvider) LastRequest() ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return ChatRequest{}
	}
	return m.requests[len(m.requests)-1]
}

// Calls returns the number of Chat calls.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
