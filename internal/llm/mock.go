package llm

import (
	"context"
	"sync"
)

// MockClient is a test double for Client. When CompleteFunc is nil it
// serves Responses in order, then "mock response" once they run out.
type MockClient struct {
	ProviderName string
	CompleteFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Responses    []*CompletionResponse

	mu       sync.Mutex
	requests []CompletionRequest
}

func (m *MockClient) Name() string { return m.ProviderName }

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	n := len(m.requests)
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	if n < len(m.Responses) {
		return m.Responses[n], nil
	}
	return &CompletionResponse{Content: "mock response"}, nil
}

// Requests returns a copy of every request received so far.
func (m *MockClient) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.requests...)
}

// Calls returns the number of Complete calls.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
