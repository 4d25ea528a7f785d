package model

import (
	"encoding/json"
	"testing"
)

func TestRoleValid(t *testing.T) {
	tests := []struct {
		role Role
		want bool
	}{
		{RoleUser, true},
		{RoleAssistant, true},
		{RoleSystem, true},
		{RoleTool, true},
		{Role("function"), false},
		{Role(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			if got := tt.role.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToolMessagesShareCallID(t *testing.T) {
	callID := NewID()
	call := NewToolCallMessage("showPropertyDetails", callID, json.RawMessage(`{"id":"P1"}`))
	result := NewToolResultMessage("showPropertyDetails", callID, json.RawMessage(`{"id":"P1"}`))

	if call.Role != RoleAssistant {
		t.Errorf("call role = %q, want assistant", call.Role)
	}
	if result.Role != RoleTool {
		t.Errorf("result role = %q, want tool", result.Role)
	}
	if call.Parts[0].ToolCallID != result.Parts[0].ToolCallID {
		t.Errorf("call id mismatch: %q vs %q", call.Parts[0].ToolCallID, result.Parts[0].ToolCallID)
	}
	if call.ID == result.ID {
		t.Error("messages must have distinct ids")
	}
	if call.IsText() || result.IsText() {
		t.Error("tool messages should not report IsText")
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	orig := NewToolCallMessage("listTrendingProperties", "c1", json.RawMessage(`{"a":1}`))
	clone := orig.Clone()

	clone.Parts[0].ToolName = "changed"
	clone.Parts[0].Args[2] = 'b'

	if orig.Parts[0].ToolName != "listTrendingProperties" {
		t.Errorf("original part mutated: %q", orig.Parts[0].ToolName)
	}
	if string(orig.Parts[0].Args) != `{"a":1}` {
		t.Errorf("original args mutated: %s", orig.Parts[0].Args)
	}
}
