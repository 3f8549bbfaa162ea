// Package assistant runs a chat turn against a document: the model is given
// the editing tools and every tool call it makes is applied to the running
// copy of the document.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"skribe/api/internal/editor"
	"skribe/api/internal/selection"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MaxToolRounds bounds how many model turns with tool calls one run may take.
const MaxToolRounds = 8

var ErrEmptyMessage = errors.New("message is required")

type ChatMessage struct {
	Role    string
	Content string
}

// EditRecord is one applied (or rejected) tool call.
type EditRecord struct {
	Tool    string         `json:"tool"`
	Input   map[string]any `json:"input"`
	Success bool           `json:"success"`
	Message string         `json:"message"`
}

type EventType string

const (
	EventText EventType = "text"
	EventEdit EventType = "edit"
)

type Event struct {
	Type    EventType
	Text    string
	Edit    *EditRecord
	Content string
}

type Input struct {
	DocumentType string
	Title        string
	Content      string
	Selection    *selection.Context
	History      []ChatMessage
	Message      string
}

type Output struct {
	Reply   string
	Content string
	Edits   []EditRecord
	Changed bool
	// Truncated is set when the run stopped at MaxToolRounds with the model
	// still asking for tools.
	Truncated bool
}

type Assistant struct {
	model Model
}

func New(model Model) *Assistant {
	return &Assistant{model: model}
}

// Run executes one chat turn. emit may be nil.
func (a *Assistant) Run(ctx context.Context, in Input, emit func(Event)) (Output, error) {
	if strings.TrimSpace(in.Message) == "" {
		return Output{}, ErrEmptyMessage
	}
	if emit == nil {
		emit = func(Event) {}
	}

	content := in.Content
	withSelection := in.Selection != nil && !in.Selection.Stale(content) && in.Selection.Valid(content)
	// The selection only describes the content it was resolved against.
	// Once a tool changes the document it is dropped, snapshot or not.
	activeSelection := func() *selection.Context {
		if withSelection && content == in.Content {
			return in.Selection
		}
		return nil
	}
	req := Request{
		System:   SystemPrompt(in.DocumentType, in.Title, content, activeSelection()),
		Messages: append(historyExchanges(in.History), Exchange{Role: RoleUser, Text: in.Message}),
		Tools:    editor.Definitions(withSelection),
	}

	out := Output{Content: content, Edits: []EditRecord{}}
	var reply strings.Builder
	onText := func(text string) {
		reply.WriteString(text)
		emit(Event{Type: EventText, Text: text})
	}

	for round := 0; ; round++ {
		if round == MaxToolRounds {
			out.Truncated = true
			break
		}
		turn, err := a.model.Stream(ctx, req, onText)
		if err != nil {
			return out, fmt.Errorf("model turn %d: %w", round+1, err)
		}
		if len(turn.ToolCalls) == 0 {
			break
		}

		results := make([]ToolResult, 0, len(turn.ToolCalls))
		for _, call := range turn.ToolCalls {
			res := editor.Execute(call.Name, call.Input, content, activeSelection().Selection())
			if res.Success && res.NewContent != content {
				content = res.NewContent
				out.Changed = true
			}
			record := EditRecord{Tool: call.Name, Input: call.Input, Success: res.Success, Message: res.Message}
			out.Edits = append(out.Edits, record)
			emit(Event{Type: EventEdit, Edit: &record, Content: content})
			results = append(results, ToolResult{CallID: call.ID, Content: res.Message, IsError: !res.Success})
		}

		req.Messages = append(req.Messages,
			Exchange{Role: RoleAssistant, Text: turn.Text, ToolCalls: turn.ToolCalls},
			Exchange{Role: RoleUser, Results: results},
		)
		req.System = SystemPrompt(in.DocumentType, in.Title, content, activeSelection())
	}

	out.Reply = strings.TrimSpace(reply.String())
	out.Content = content
	return out, nil
}

// historyExchanges turns stored chat history into a valid alternating
// conversation: it drops leading assistant messages and merges runs of the
// same role.
func historyExchanges(history []ChatMessage) []Exchange {
	out := make([]Exchange, 0, len(history))
	for _, msg := range history {
		text := strings.TrimSpace(msg.Content)
		if text == "" {
			continue
		}
		role := RoleUser
		if msg.Role == RoleAssistant {
			role = RoleAssistant
		}
		if len(out) == 0 && role == RoleAssistant {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Text += "\n\n" + text
			continue
		}
		out = append(out, Exchange{Role: role, Text: text})
	}
	if n := len(out); n > 0 && out[n-1].Role == RoleUser {
		out = out[:n-1]
	}
	return out
}
