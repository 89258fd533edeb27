package llm

import (
	"context"
	"sync"
)

// MockGateway is a configurable Gateway for tests.
// Set GenerateFunc to control replies; calls are recorded and safe for concurrent use.
type MockGateway struct {
	// GenerateFunc is called for every Generate. If nil, returns an empty result.
	GenerateFunc func(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error)

	// ModelName is returned by Model. Defaults to "mock-model".
	ModelName string

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records one Generate invocation.
type MockCall struct {
	Prompt string
	Opts   GenerateOptions
}

var _ Gateway = (*MockGateway)(nil)

// NewMockGateway creates a mock with a fixed reply function.
func NewMockGateway(fn func(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error)) *MockGateway {
	return &MockGateway{GenerateFunc: fn, ModelName: "mock-model"}
}

// Generate implements Gateway.
func (m *MockGateway) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Prompt: prompt, Opts: opts})
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt, opts)
	}
	return &GenerateResult{Model: m.Model()}, nil
}

// Model implements Gateway.
func (m *MockGateway) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}

// Calls returns a copy of the recorded calls.
func (m *MockGateway) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Generate calls.
func (m *MockGateway) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// CountWhere returns the number of calls matching pred.
func (m *MockGateway) CountWhere(pred func(MockCall) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if pred(c) {
			n++
		}
	}
	return n
}

// TextReply returns a GenerateFunc-compatible reply of fixed text.
func TextReply(text string) *GenerateResult {
	return &GenerateResult{Text: text, Model: "mock-model"}
}
