package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message in the conversation log.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// PartType tags a structured content record.
type PartType string

const (
	PartToolCall   PartType = "tool-call"
	PartToolResult PartType = "tool-result"
)

// Part is a structured tool-call or tool-result record carried by a message.
// A tool-call part carries Args, a tool-result part carries Result. Both share
// the ToolCallID that pairs them in the log.
type Part struct {
	Type       PartType        `json:"type"`
	ToolName   string          `json:"toolName"`
	ToolCallID string          `json:"toolCallId"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// Message represents a chat message in the conversation.
//
// Content holds plain text. Parts holds the ordered tool-call/tool-result
// records; a message uses one or the other, never both.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content,omitempty"`
	Parts     []Part    `json:"parts,omitempty"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewID returns a fresh opaque identifier for messages, chats and tool calls.
func NewID() string {
	return uuid.NewString()
}

// NewTextMessage builds a plain-text message with a fresh ID.
func NewTextMessage(role Role, content string) Message {
	return Message{
		ID:        NewID(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewToolCallMessage builds the assistant message recording a tool invocation.
func NewToolCallMessage(toolName, callID string, args json.RawMessage) Message {
	return Message{
		ID:   NewID(),
		Role: RoleAssistant,
		Parts: []Part{{
			Type:       PartToolCall,
			ToolName:   toolName,
			ToolCallID: callID,
			Args:       args,
		}},
		CreatedAt: time.Now(),
	}
}

// NewToolResultMessage builds the tool message answering a tool invocation.
func NewToolResultMessage(toolName, callID string, result json.RawMessage) Message {
	return Message{
		ID:   NewID(),
		Role: RoleTool,
		Parts: []Part{{
			Type:       PartToolResult,
			ToolName:   toolName,
			ToolCallID: callID,
			Result:     result,
		}},
		CreatedAt: time.Now(),
	}
}

// IsText reports whether the message carries plain text rather than tool records.
func (m Message) IsText() bool {
	return len(m.Parts) == 0
}

// Clone returns a deep copy so snapshots never alias the live log.
func (m Message) Clone() Message {
	c := m
	if m.Parts != nil {
		c.Parts = make([]Part, len(m.Parts))
		for i, p := range m.Parts {
			c.Parts[i] = p
			c.Parts[i].Args = cloneRaw(p.Args)
			c.Parts[i].Result = cloneRaw(p.Result)
		}
	}
	return c
}

func cloneRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	out := make(json.RawMessage, len(r))
	copy(out, r)
	return out
}
