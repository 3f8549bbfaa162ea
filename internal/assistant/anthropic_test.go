package assistant

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"skribe/api/internal/editor"
)

func TestConvertMessagesKeepsToolRoundTrip(t *testing.T) {
	exchanges := []Exchange{
		{Role: RoleUser, Text: "fix the typo"},
		{Role: RoleAssistant, Text: "On it.", ToolCalls: []ToolCall{{ID: "call_1", Name: editor.ToolFindAndReplace, Input: map[string]any{"find_text": "teh"}}}},
		{Role: RoleUser, Results: []ToolResult{{CallID: "call_1", Content: "Replaced 1 occurrence.", IsError: false}}},
		{Role: RoleAssistant},
	}

	msgs := convertMessages(exchanges)
	if len(msgs) != 3 {
		t.Fatalf("empty exchanges should be dropped, got %d messages", len(msgs))
	}

	first := msgs[0]
	if first.Role != anthropic.MessageParamRoleUser || len(first.Content) != 1 || first.Content[0].OfText == nil {
		t.Fatalf("unexpected user message %+v", first)
	}
	if first.Content[0].OfText.Text != "fix the typo" {
		t.Fatalf("unexpected user text %q", first.Content[0].OfText.Text)
	}

	second := msgs[1]
	if second.Role != anthropic.MessageParamRoleAssistant || len(second.Content) != 2 || second.Content[1].OfToolUse == nil {
		t.Fatalf("unexpected assistant message %+v", second)
	}
	if use := second.Content[1].OfToolUse; use.ID != "call_1" || use.Name != editor.ToolFindAndReplace {
		t.Fatalf("unexpected tool use %+v", use)
	}

	third := msgs[2]
	if third.Role != anthropic.MessageParamRoleUser || len(third.Content) != 1 || third.Content[0].OfToolResult == nil {
		t.Fatalf("unexpected tool result message %+v", third)
	}
	if third.Content[0].OfToolResult.ToolUseID != "call_1" {
		t.Fatalf("tool result answers %q", third.Content[0].OfToolResult.ToolUseID)
	}
}

func TestConvertToolsCarriesSchema(t *testing.T) {
	tools := convertTools(editor.Definitions(false))
	if len(tools) != 4 {
		t.Fatalf("expected 4 tools, got %d", len(tools))
	}
	for _, tool := range tools {
		if tool.OfTool == nil || tool.OfTool.Name == "" || len(tool.OfTool.InputSchema.Required) == 0 {
			t.Fatalf("incomplete tool %+v", tool)
		}
	}
	if tools[0].OfTool.Name != editor.ToolInsertAtPosition {
		t.Fatalf("unexpected first tool %q", tools[0].OfTool.Name)
	}
}
