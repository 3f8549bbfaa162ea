// Package editor applies the document editing tools the assistant can call.
//
// Every tool is a pure transform over a markdown string. A call either
// returns the complete new document or leaves the input untouched, and the
// outcome is always reported as a Result rather than an error so the message
// can be shown to the user as-is.
package editor

import (
	"fmt"
	"unicode/utf8"
)

const (
	ToolReplaceSelection = "replace_selection"
	ToolInsertAtPosition = "insert_at_position"
	ToolReplaceSection   = "replace_section"
	ToolFindAndReplace   = "find_and_replace"
	ToolRewriteDocument  = "rewrite_document"
)

// Selection is a range of the raw markdown the user had selected when the
// tool was requested. Offsets count characters (runes), not bytes.
type Selection struct {
	Text        string `json:"text"`
	StartOffset int    `json:"startOffset"`
	EndOffset   int    `json:"endOffset"`
}

// Invocation is a tool call as emitted by the model.
type Invocation struct {
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// Result is the outcome of a tool call. On failure NewContent is the
// unchanged input.
type Result struct {
	Success    bool   `json:"success"`
	NewContent string `json:"newContent"`
	Message    string `json:"message"`
	// Replacements is set by find_and_replace.
	Replacements int `json:"replacements,omitempty"`
}

// Execute runs the named tool against content.
func Execute(name string, input map[string]any, content string, sel *Selection) Result {
	switch name {
	case ToolReplaceSelection:
		return replaceSelection(input, content, sel)
	case ToolInsertAtPosition:
		return insertAtPosition(input, content)
	case ToolReplaceSection:
		return replaceSection(input, content)
	case ToolFindAndReplace:
		return findAndReplace(input, content)
	case ToolRewriteDocument:
		return rewriteDocument(input, content)
	default:
		return fail(content, "Unknown tool: %s", name)
	}
}

// Apply is Execute for an Invocation.
func Apply(inv Invocation, content string, sel *Selection) Result {
	return Execute(inv.Name, inv.Input, content, sel)
}

// Names lists the tools Execute understands.
func Names() []string {
	return []string{
		ToolReplaceSelection,
		ToolInsertAtPosition,
		ToolReplaceSection,
		ToolFindAndReplace,
		ToolRewriteDocument,
	}
}

func ok(content, format string, args ...any) Result {
	return Result{Success: true, NewContent: content, Message: fmt.Sprintf(format, args...)}
}

func fail(content, format string, args ...any) Result {
	return Result{Success: false, NewContent: content, Message: fmt.Sprintf(format, args...)}
}

// stringParam reads a required string argument.
func stringParam(input map[string]any, key string) (string, bool) {
	raw, exists := input[key]
	if !exists {
		return "", false
	}
	value, isString := raw.(string)
	return value, isString
}

// boolParam reads an optional boolean argument. Missing or mistyped values
// count as false.
func boolParam(input map[string]any, key string) bool {
	value, _ := input[key].(bool)
	return value
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func preview(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
