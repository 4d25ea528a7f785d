package provider

import (
	"encoding/json"
	"strings"

	"horizon/model"

	"github.com/ollama/ollama/api"
	log "github.com/sirupsen/logrus"
)

// ConvertToOllamaMessages converts the conversation log to Ollama api.Message.
//
// Tool-call messages become assistant messages carrying ToolCalls, and
// tool-result messages become "tool" messages tagged with the tool name.
// Ollama has no call IDs, so pairing relies on message order, which the
// conversation log already guarantees.
func ConvertToOllamaMessages(messages []model.Message) []api.Message {
	result := make([]api.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.IsText() {
			result = append(result, api.Message{
				Role:    string(msg.Role),
				Content: msg.Content,
			})
			continue
		}

		for _, part := range msg.Parts {
			switch part.Type {
			case model.PartToolCall:
				result = append(result, api.Message{
					Role: string(model.RoleAssistant),
					ToolCalls: []api.ToolCall{{
						Function: api.ToolCallFunction{
							Name:      part.ToolName,
							Arguments: rawToOllamaArgs(part.Args),
						},
					}},
				})
			case model.PartToolResult:
				result = append(result, api.Message{
					Role:     string(model.RoleTool),
					Content:  string(part.Result),
					ToolName: part.ToolName,
				})
			}
		}
	}
	return result
}

// ConvertToProviderToolCalls converts Ollama api.ToolCall to provider-agnostic
// model.ToolCall. Ollama does not assign call IDs, so each call gets a fresh one.
//
// Returns nil if the input is nil or empty.
func ConvertToProviderToolCalls(ollamaCalls []api.ToolCall) []model.ToolCall {
	if len(ollamaCalls) == 0 {
		return nil
	}

	result := make([]model.ToolCall, len(ollamaCalls))
	for i, call := range ollamaCalls {
		args, err := json.Marshal(call.Function.Arguments)
		if err != nil {
			args = json.RawMessage("{}")
		}
		result[i] = model.ToolCall{
			ID:        model.NewID(),
			Name:      call.Function.Name,
			Arguments: args,
		}
	}
	return result
}

func rawToOllamaArgs(raw json.RawMessage) api.ToolCallFunctionArguments {
	args := api.ToolCallFunctionArguments{}
	if len(raw) == 0 {
		return args
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		log.WithError(err).Debug("dropping unparseable tool-call arguments")
	}
	return args
}

// toolArguments normalizes an SDK argument string into raw JSON. Streaming
// APIs may deliver an empty string for a call without arguments.
func toolArguments(s string) json.RawMessage {
	s = strings.TrimSpace(s)
	if s == "" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(s)
}

// callIDOrNew keeps a provider-assigned call ID and fills in one when the
// backend left it blank.
func callIDOrNew(id string) string {
	if id != "" {
		return id
	}
	return model.NewID()
}
