package assistant

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"skribe/api/internal/editor"
)

// AnthropicModel talks to the Messages API with streaming enabled.
type AnthropicModel struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

func NewAnthropicModel(apiKey, model string, maxTokens int) *AnthropicModel {
	return &AnthropicModel{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: int64(maxTokens),
	}
}

func (m *AnthropicModel) Stream(ctx context.Context, req Request, onText func(string)) (Turn, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: m.maxTokens,
		Messages:  convertMessages(req.Messages),
		Tools:     convertTools(req.Tools),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	stream := m.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return Turn{}, fmt.Errorf("accumulate stream event: %w", err)
		}
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && onText != nil {
				onText(text.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return Turn{}, fmt.Errorf("anthropic stream: %w", err)
	}

	turn := Turn{StopReason: string(message.StopReason)}
	for _, block := range message.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			turn.Text += b.Text
		case anthropic.ToolUseBlock:
			input := map[string]any{}
			if len(b.Input) > 0 {
				if err := json.Unmarshal(b.Input, &input); err != nil {
					return Turn{}, fmt.Errorf("decode %s input: %w", b.Name, err)
				}
			}
			turn.ToolCalls = append(turn.ToolCalls, ToolCall{ID: b.ID, Name: b.Name, Input: input})
		}
	}
	return turn, nil
}

func convertMessages(exchanges []Exchange) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(exchanges))
	for _, ex := range exchanges {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(ex.ToolCalls)+len(ex.Results))
		if ex.Text != "" {
			blocks = append(blocks, anthropic.NewTextBlock(ex.Text))
		}
		for _, call := range ex.ToolCalls {
			blocks = append(blocks, anthropic.ContentBlockParamUnion{
				OfToolUse: &anthropic.ToolUseBlockParam{ID: call.ID, Name: call.Name, Input: call.Input},
			})
		}
		for _, res := range ex.Results {
			blocks = append(blocks, anthropic.NewToolResultBlock(res.CallID, res.Content, res.IsError))
		}
		if len(blocks) == 0 {
			continue
		}
		if ex.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func convertTools(defs []editor.Definition) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, len(defs))
	for i, def := range defs {
		tools[i] = anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        def.Name,
			Description: anthropic.String(def.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: def.Properties(),
				Required:   def.Required(),
			},
		}}
	}
	return tools
}
