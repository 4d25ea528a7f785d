package provider

import (
	"context"
	"fmt"

	"horizon/model"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	log "github.com/sirupsen/logrus"
)

// OpenAIProvider implements the Provider interface using OpenAI's official API.
type OpenAIProvider struct {
	client  openai.Client
	model   string
	baseURL string
}

// NewOpenAIProvider creates a new OpenAI provider instance.
//
// Parameters:
//   - baseURL: OpenAI API base URL (default: "https://api.openai.com/v1")
//   - apiKey: OpenAI API key (required)
//   - model: Initial model to use (default: "gpt-3.5-turbo")
//
// Returns an error if the API key is missing.
func NewOpenAIProvider(baseURL, apiKey, model string) (*OpenAIProvider, error) {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if model == "" {
		model = "gpt-3.5-turbo"
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &OpenAIProvider{
		client:  client,
		model:   model,
		baseURL: baseURL,
	}, nil
}

// ChatWithTools implements Provider.ChatWithTools with streaming support.
func (p *OpenAIProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	params := openai.ChatCompletionNewParams{
		Messages: ConvertToOpenAIMessages(messages),
		Model:    openai.ChatModel(p.model),
	}
	if len(tools) > 0 {
		params.Tools = ConvertMCPToolsToOpenAIFormat(tools)
	}

	if err := streamChatCompletion(ctx, p.client, params, callback, nil); err != nil {
		return fmt.Errorf("OpenAI streaming error: %w", err)
	}
	return nil
}

// streamChatCompletion runs a streaming chat completion shared by the OpenAI
// and OpenRouter adapters. Text deltas are forwarded as they arrive; each tool
// call is forwarded once its arguments are complete. rename, when set, maps
// wire tool names back to registry names.
func streamChatCompletion(ctx context.Context, client openai.Client, params openai.ChatCompletionNewParams, callback model.StreamCallback, rename func(string) string) error {
	stream := client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if tool, ok := acc.JustFinishedToolCall(); ok && callback != nil {
			name := tool.Name
			if rename != nil {
				name = rename(name)
			}
			log.WithFields(log.Fields{"tool": name, "id": tool.ID}).Debug("tool call finished streaming")
			call := model.ToolCall{
				ID:        callIDOrNew(tool.ID),
				Name:      name,
				Arguments: toolArguments(tool.Arguments),
			}
			if err := callback("", []model.ToolCall{call}); err != nil {
				return err
			}
		}

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" && callback != nil {
			if err := callback(chunk.Choices[0].Delta.Content, nil); err != nil {
				return err
			}
		}
	}

	return stream.Err()
}

// ListModels implements Provider.ListModels.
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	modelsPage, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list OpenAI models: %w", err)
	}

	result := make([]model.ModelInfo, 0, len(modelsPage.Data))
	for _, m := range modelsPage.Data {
		result = append(result, model.ModelInfo{
			Name:     m.ID,
			Provider: string(ProviderTypeOpenAI),
		})
	}

	return result, nil
}

// GetModel implements Provider.GetModel.
func (p *OpenAIProvider) GetModel() string {
	return p.model
}

// SetModel implements Provider.SetModel.
func (p *OpenAIProvider) SetModel(model string) {
	p.model = model
}

// Ping implements Provider.Ping by attempting to list models.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("OpenAI ping failed: %w", err)
	}
	return nil
}

// ConvertToOpenAIMessages converts the conversation log to OpenAI format.
// Tool-call parts become assistant tool_calls; tool-result parts become tool
// messages answering the same call ID.
func ConvertToOpenAIMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, msg := range messages {
		if msg.IsText() {
			switch msg.Role {
			case model.RoleSystem:
				result = append(result, openai.SystemMessage(msg.Content))
			case model.RoleAssistant:
				result = append(result, openai.AssistantMessage(msg.Content))
			default:
				result = append(result, openai.UserMessage(msg.Content))
			}
			continue
		}

		for _, part := range msg.Parts {
			switch part.Type {
			case model.PartToolCall:
				args := string(part.Args)
				if args == "" {
					args = "{}"
				}
				result = append(result, openai.ChatCompletionMessageParamUnion{
					OfAssistant: &openai.ChatCompletionAssistantMessageParam{
						ToolCalls: []openai.ChatCompletionMessageToolCallUnionParam{{
							OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
								ID: part.ToolCallID,
								Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
									Name:      part.ToolName,
									Arguments: args,
								},
							},
						}},
					},
				})
			case model.PartToolResult:
				result = append(result, openai.ToolMessage(string(part.Result), part.ToolCallID))
			}
		}
	}

	return result
}
