package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"horizon/model"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// MockProvider implements model.Provider for testing
type MockProvider struct {
	ChatWithToolsFunc func(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error
	ListModelsFunc    func(ctx context.Context) ([]model.ModelInfo, error)
	PingFunc          func(ctx context.Context) error

	mu           sync.Mutex
	currentModel string
	histories    [][]model.Message
	offered      [][]mcptypes.Tool
}

// NewMockProvider creates a mock provider with default implementations
func NewMockProvider(modelName string) *MockProvider {
	mock := &MockProvider{currentModel: modelName}
	mock.ChatWithToolsFunc = func(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
		return callback("Mock response", nil)
	}
	mock.ListModelsFunc = func(ctx context.Context) ([]model.ModelInfo, error) {
		return []model.ModelInfo{
			{Name: "mock-model-1", Size: 1000, Provider: "mock"},
			{Name: "mock-model-2", Size: 2000, Provider: "mock"},
		}, nil
	}
	mock.PingFunc = func(ctx context.Context) error { return nil }
	return mock
}

// Turn scripts one ChatWithTools call.
type Turn struct {
	Chunks    []string
	ToolCalls []model.ToolCall
	// Err is returned after Chunks and ToolCalls are delivered.
	Err error
	// Hold blocks after delivery until the context is cancelled, simulating
	// a stream that stalls mid-response.
	Hold bool
}

// NewScriptedProvider returns a mock that plays turns in order, one per call.
// Calls beyond the script reply with an empty stream.
func NewScriptedProvider(turns ...Turn) *MockProvider {
	mock := NewMockProvider("scripted")
	var (
		mu   sync.Mutex
		next int
	)
	mock.ChatWithToolsFunc = func(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
		mu.Lock()
		if next >= len(turns) {
			mu.Unlock()
			return nil
		}
		turn := turns[next]
		next++
		mu.Unlock()

		for _, chunk := range turn.Chunks {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := callback(chunk, nil); err != nil {
				return err
			}
		}
		if len(turn.ToolCalls) > 0 {
			if err := callback("", turn.ToolCalls); err != nil {
				return err
			}
		}
		if turn.Hold {
			<-ctx.Done()
			return ctx.Err()
		}
		return turn.Err
	}
	return mock
}

// ToolCall builds a model.ToolCall from a name and a JSON argument literal.
func ToolCall(id, name, args string) model.ToolCall {
	return model.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func (m *MockProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	m.mu.Lock()
	history := make([]model.Message, len(messages))
	for i, msg := range messages {
		history[i] = msg.Clone()
	}
	m.histories = append(m.histories, history)
	m.offered = append(m.offered, tools)
	m.mu.Unlock()

	return m.ChatWithToolsFunc(ctx, messages, tools, callback)
}

// Histories returns the message histories received by ChatWithTools, one per call.
func (m *MockProvider) Histories() [][]model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]model.Message, len(m.histories))
	copy(out, m.histories)
	return out
}

// OfferedTools returns the tool lists received by ChatWithTools, one per call.
func (m *MockProvider) OfferedTools() [][]mcptypes.Tool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]mcptypes.Tool, len(m.offered))
	copy(out, m.offered)
	return out
}

func (m *MockProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	return m.ListModelsFunc(ctx)
}

func (m *MockProvider) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentModel
}

func (m *MockProvider) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentModel = model
}

func (m *MockProvider) Ping(ctx context.Context) error {
	return m.PingFunc(ctx)
}
