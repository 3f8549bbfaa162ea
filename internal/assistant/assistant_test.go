package assistant

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"skribe/api/internal/editor"
	"skribe/api/internal/selection"
)

type scriptedModel struct {
	turns    []Turn
	err      error
	requests []Request
}

func (m *scriptedModel) Stream(_ context.Context, req Request, onText func(string)) (Turn, error) {
	req.Messages = append([]Exchange(nil), req.Messages...)
	m.requests = append(m.requests, req)
	if m.err != nil {
		return Turn{}, m.err
	}
	if len(m.turns) == 0 {
		return Turn{Text: "done"}, nil
	}
	turn := m.turns[0]
	m.turns = m.turns[1:]
	if turn.Text != "" {
		onText(turn.Text)
	}
	return turn, nil
}

func toolTurn(calls ...ToolCall) Turn {
	return Turn{ToolCalls: calls, StopReason: "tool_use"}
}

func TestRunAppliesToolCallsInOrder(t *testing.T) {
	model := &scriptedModel{turns: []Turn{
		toolTurn(
			ToolCall{ID: "t1", Name: editor.ToolFindAndReplace, Input: map[string]any{"find_text": "draft", "replace_with": "plan"}},
			ToolCall{ID: "t2", Name: editor.ToolInsertAtPosition, Input: map[string]any{"position": "end", "content": "## Risks"}},
		),
		{Text: "Renamed and added risks."},
	}}

	var events []Event
	out, err := New(model).Run(context.Background(), Input{
		DocumentType: "strategy",
		Title:        "Plan",
		Content:      "# The draft",
		Message:      "tidy this up",
	}, func(e Event) { events = append(events, e) })
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Content != "# The plan\n\n## Risks" || !out.Changed || out.Truncated {
		t.Fatalf("unexpected output %+v", out)
	}
	if out.Reply != "Renamed and added risks." {
		t.Fatalf("unexpected reply %q", out.Reply)
	}
	if len(out.Edits) != 2 || !out.Edits[0].Success || !out.Edits[1].Success {
		t.Fatalf("unexpected edits %+v", out.Edits)
	}

	if len(model.requests) != 2 {
		t.Fatalf("expected 2 model requests, got %d", len(model.requests))
	}
	second := model.requests[1]
	if len(second.Messages) != 3 {
		t.Fatalf("expected 3 messages in the follow-up, got %d", len(second.Messages))
	}
	results := second.Messages[2].Results
	if len(results) != 2 || results[0].CallID != "t1" || results[0].IsError {
		t.Fatalf("unexpected tool results %+v", results)
	}
	if !strings.Contains(second.System, "# The plan") {
		t.Fatalf("follow-up prompt should carry the edited content")
	}

	var kinds []EventType
	for _, e := range events {
		kinds = append(kinds, e.Type)
	}
	if !reflect.DeepEqual(kinds, []EventType{EventEdit, EventEdit, EventText}) {
		t.Fatalf("unexpected event order %v", kinds)
	}
	if events[0].Content != "# The plan" {
		t.Fatalf("first edit event carries %q", events[0].Content)
	}
}

func TestRunReportsFailedToolAsError(t *testing.T) {
	model := &scriptedModel{turns: []Turn{
		toolTurn(ToolCall{ID: "t1", Name: editor.ToolReplaceSection, Input: map[string]any{"section_heading": "Missing", "new_content": "x"}}),
		{Text: "Could not find that section."},
	}}

	out, err := New(model).Run(context.Background(), Input{Content: "# Here\n", Message: "fix Missing"}, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Changed || out.Content != "# Here\n" {
		t.Fatalf("failed edit changed the document: %+v", out)
	}
	if len(out.Edits) != 1 || out.Edits[0].Success {
		t.Fatalf("unexpected edits %+v", out.Edits)
	}
	if !model.requests[1].Messages[2].Results[0].IsError {
		t.Fatalf("failed tool should be reported as an error result")
	}
}

func TestRunSelectionOnlyUntilContentChanges(t *testing.T) {
	content := "Hello brave world"
	for name, snapshot := range map[string]string{"with snapshot": content, "without snapshot": ""} {
		t.Run(name, func(t *testing.T) {
			sel := &selection.Context{Text: "brave", StartOffset: 6, EndOffset: 11, ContentSnapshot: snapshot}
			model := &scriptedModel{turns: []Turn{
				toolTurn(
					ToolCall{ID: "a", Name: editor.ToolReplaceSelection, Input: map[string]any{"new_content": "bold"}},
					ToolCall{ID: "b", Name: editor.ToolReplaceSelection, Input: map[string]any{"new_content": "again"}},
				),
			}}

			out, err := New(model).Run(context.Background(), Input{Content: content, Selection: sel, Message: "make it bolder"}, nil)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if out.Content != "Hello bold world" {
				t.Fatalf("unexpected content %q", out.Content)
			}
			if len(out.Edits) != 2 || !out.Edits[0].Success || out.Edits[1].Success {
				t.Fatalf("selection must apply once, got %+v", out.Edits)
			}
			if len(model.requests[0].Tools) != 5 {
				t.Fatalf("expected replace_selection to be offered, got %d tools", len(model.requests[0].Tools))
			}
			if !strings.Contains(model.requests[0].System, "<selection>\nbrave\n</selection>") {
				t.Fatalf("prompt should quote the selection:\n%s", model.requests[0].System)
			}
			if len(model.requests) > 1 && strings.Contains(model.requests[1].System, "<selection>") {
				t.Fatalf("selection should be dropped once the content changed")
			}
		})
	}
}

func TestRunIgnoresStaleSelection(t *testing.T) {
	tests := []struct {
		name string
		sel  *selection.Context
	}{
		{name: "snapshot differs", sel: &selection.Context{Text: "old", StartOffset: 0, EndOffset: 3, ContentSnapshot: "old text"}},
		{name: "out of range", sel: &selection.Context{Text: "far", StartOffset: 20, EndOffset: 23}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &scriptedModel{turns: []Turn{{Text: "ok"}}}
			if _, err := New(model).Run(context.Background(), Input{Content: "new text", Selection: tt.sel, Message: "hi"}, nil); err != nil {
				t.Fatalf("run: %v", err)
			}
			if len(model.requests[0].Tools) != 4 {
				t.Fatalf("expected 4 tools, got %d", len(model.requests[0].Tools))
			}
			if strings.Contains(model.requests[0].System, "<selection>") {
				t.Fatalf("unusable selection leaked into the prompt")
			}
		})
	}
}

func TestRunStopsAtMaxToolRounds(t *testing.T) {
	turns := make([]Turn, 0, MaxToolRounds+2)
	for i := 0; i < MaxToolRounds+2; i++ {
		turns = append(turns, toolTurn(ToolCall{ID: "x", Name: editor.ToolInsertAtPosition, Input: map[string]any{"position": "end", "content": "more"}}))
	}
	model := &scriptedModel{turns: turns}

	out, err := New(model).Run(context.Background(), Input{Content: "start", Message: "keep going"}, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !out.Truncated {
		t.Fatalf("expected truncated output")
	}
	if len(model.requests) != MaxToolRounds || len(out.Edits) != MaxToolRounds {
		t.Fatalf("expected %d rounds, got %d requests and %d edits", MaxToolRounds, len(model.requests), len(out.Edits))
	}
	if got := strings.Count(out.Content, "more"); got != MaxToolRounds {
		t.Fatalf("expected %d inserts, got %d", MaxToolRounds, got)
	}
}

func TestRunModelError(t *testing.T) {
	model := &scriptedModel{err: errors.New("overloaded")}
	_, err := New(model).Run(context.Background(), Input{Content: "x", Message: "hi"}, nil)
	if err == nil || !strings.Contains(err.Error(), "overloaded") {
		t.Fatalf("expected the model error, got %v", err)
	}
}

func TestRunRejectsEmptyMessage(t *testing.T) {
	_, err := New(&scriptedModel{}).Run(context.Background(), Input{Content: "x", Message: "  "}, nil)
	if !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestHistoryExchanges(t *testing.T) {
	got := historyExchanges([]ChatMessage{
		{Role: RoleAssistant, Content: "welcome"},
		{Role: RoleUser, Content: "one"},
		{Role: RoleUser, Content: "two"},
		{Role: RoleAssistant, Content: "reply"},
		{Role: RoleUser, Content: "   "},
		{Role: RoleUser, Content: "dangling"},
	})
	want := []Exchange{
		{Role: RoleUser, Text: "one\n\ntwo"},
		{Role: RoleAssistant, Text: "reply"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected history %+v", got)
	}
}

func TestSystemPromptByType(t *testing.T) {
	okrs := SystemPrompt("okrs", "Q3", "body", nil)
	if !strings.Contains(okrs, "key results") {
		t.Fatalf("okrs guidance missing:\n%s", okrs)
	}
	if !strings.Contains(okrs, "<document title=\"Q3\" type=\"okrs\">\nbody\n</document>") {
		t.Fatalf("document block missing:\n%s", okrs)
	}

	unknown := SystemPrompt("memo", "M", "", nil)
	if !strings.Contains(unknown, typeGuidance["custom"]) {
		t.Fatalf("unknown types should fall back to custom guidance")
	}
}
