package assistant

import (
	"context"

	"skribe/api/internal/editor"
)

// ToolCall is a tool_use block requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResult answers a ToolCall.
type ToolResult struct {
	CallID  string
	Content string
	IsError bool
}

// Exchange is one message of the running conversation. User exchanges carry
// Text or Results; assistant exchanges carry Text and ToolCalls.
type Exchange struct {
	Role      string
	Text      string
	ToolCalls []ToolCall
	Results   []ToolResult
}

type Request struct {
	System   string
	Messages []Exchange
	Tools    []editor.Definition
}

// Turn is one complete model response.
type Turn struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason string
}

// Model produces a Turn for a Request, forwarding text deltas to onText as
// they arrive.
type Model interface {
	Stream(ctx context.Context, req Request, onText func(string)) (Turn, error)
}
