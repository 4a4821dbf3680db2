package llm

import (
	"context"
	"sync"
	"time"
)

// MockAdapter is a test implementation of Adapter. It records every
// invocation and answers from a fixed response, an error or InvokeFunc.
type MockAdapter struct {
	Err        error
	InvokeFunc func(ctx context.Context, prompt Prompt) (Response, error)
	id         string
	calls      []Prompt
	Response   Response
	Delay      time.Duration
	mu         sync.Mutex
}

// NewMockAdapter creates a mock adapter that answers with response.
func NewMockAdapter(id string, response Response) *MockAdapter {
	return &MockAdapter{id: id, Response: response}
}

// NewFailingMockAdapter creates a mock adapter that always fails with err.
func NewFailingMockAdapter(id string, err error) *MockAdapter {
	return &MockAdapter{id: id, Err: err}
}

// ID returns the provider id.
func (m *MockAdapter) ID() string {
	return m.id
}

// Invoke records the prompt and returns the configured outcome. A Delay
// is honored unless ctx ends first.
func (m *MockAdapter) Invoke(ctx context.Context, prompt Prompt) (Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, prompt)
	m.mu.Unlock()

	if m.Delay > 0 {
		timer := time.NewTimer(m.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Response{}, &ProviderTimeoutError{Provider: m.id, Timeout: m.Delay, Err: ctx.Err()}
		case <-timer.C:
		}
	}

	if m.InvokeFunc != nil {
		return m.InvokeFunc(ctx, prompt)
	}
	if m.Err != nil {
		return Response{}, m.Err
	}

	response := m.Response
	if response.Provider == "" {
		response.Provider = m.id
	}
	return response, nil
}

// Calls returns a copy of the recorded prompts.
func (m *MockAdapter) Calls() []Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Prompt, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of invocations.
func (m *MockAdapter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
