package provider

import (
	"context"
	"fmt"

	"horizon/model"
	"horizon/ollama"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
	log "github.com/sirupsen/logrus"
)

// OllamaProvider wraps ollama.Client to implement the Provider interface.
//
// It converts the conversation log to api.Message, mcptypes.Tool to api.Tool,
// and api.ToolCall back to model.ToolCall.
type OllamaProvider struct {
	client *ollama.Client
}

// NewOllamaProvider creates a new Ollama provider instance.
//
// Parameters:
//   - baseURL: The Ollama server URL. Defaults to "http://localhost:11434".
//   - model: The model name to use. Defaults to "llama3.1:latest".
func NewOllamaProvider(baseURL, model string) (*OllamaProvider, error) {
	client, err := ollama.NewClient(baseURL, model)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}

	return &OllamaProvider{client: client}, nil
}

// ChatWithTools implements Provider.ChatWithTools with type conversions.
func (p *OllamaProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	ollamaTools := ollamaToolsFor(p.client.GetModel(), tools)

	ollamaCallback := func(chunk string, ollamaCalls []api.ToolCall) error {
		if callback == nil {
			return nil
		}
		if chunk == "" && len(ollamaCalls) == 0 {
			return nil
		}
		return callback(chunk, ConvertToProviderToolCalls(ollamaCalls))
	}

	return p.client.ChatWithTools(ctx, ConvertToOllamaMessages(messages), ollamaTools, ollamaCallback)
}

// ollamaToolsFor converts tools for the given model. Families known to reject
// the tools parameter get none and answer in plain text instead of failing
// every turn.
func ollamaToolsFor(modelName string, tools []mcptypes.Tool) []api.Tool {
	if len(tools) == 0 {
		return nil
	}
	supported, known := ollama.ToolSupport(modelName)
	switch {
	case known && !supported:
		log.WithField("model", modelName).Warn("model does not support tool calling, property tools are disabled")
		return nil
	case !known:
		log.WithField("model", modelName).Debug("model is not known to support tool calling, offering tools anyway")
	}
	return ConvertMCPToolsToOllama(tools)
}

// ListModels implements Provider.ListModels (direct passthrough).
func (p *OllamaProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	return p.client.ListModels(ctx)
}

// GetModel implements Provider.GetModel (direct passthrough).
func (p *OllamaProvider) GetModel() string {
	return p.client.GetModel()
}

// SetModel implements Provider.SetModel (direct passthrough).
func (p *OllamaProvider) SetModel(model string) {
	p.client.SetModel(model)
}

// Ping implements Provider.Ping (direct passthrough).
func (p *OllamaProvider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}
