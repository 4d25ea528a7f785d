package model

import (
	"context"
	"encoding/json"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// Provider abstracts LLM provider implementations (OpenAI, OpenRouter,
// Anthropic, Ollama) using provider-agnostic types from the model layer.
//
// This interface is defined in the model package (not provider package) to avoid
// import cycles: provider implementations can import model, and the dispatcher
// can use the Provider interface without importing the provider package.
type Provider interface {
	// ChatWithTools sends the history with available tools and streams the
	// response back via callback. The callback receives text deltas in arrival
	// order and, separately, any tool invocations the model requested.
	ChatWithTools(ctx context.Context, messages []Message, tools []mcptypes.Tool, callback StreamCallback) error

	// ListModels returns available models for this provider.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// GetModel returns the currently selected model name.
	GetModel() string

	// SetModel changes the active model.
	SetModel(model string)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}

// StreamCallback is called for each chunk of streamed response. Returning an
// error aborts the stream.
type StreamCallback func(chunk string, toolCalls []ToolCall) error

// ToolCall is a provider-agnostic tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ModelInfo describes a model offered by a provider.
type ModelInfo struct {
	Name     string
	Size     int64
	Provider string
}
