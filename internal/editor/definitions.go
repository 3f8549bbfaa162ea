package editor

// Definition describes a tool to the model. Parameters is a JSON schema
// object.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Properties returns the schema's property map.
func (d Definition) Properties() map[string]any {
	props, _ := d.Parameters["properties"].(map[string]any)
	return props
}

// Required returns the schema's required property names.
func (d Definition) Required() []string {
	required, _ := d.Parameters["required"].([]string)
	return required
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func object(properties map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// Definitions returns the editing tools. replace_selection is only offered
// when the user has an active selection.
func Definitions(withSelection bool) []Definition {
	defs := make([]Definition, 0, 5)
	if withSelection {
		defs = append(defs, Definition{
			Name:        ToolReplaceSelection,
			Description: "Replace the text the user currently has selected in the document with new content.",
			Parameters: object(map[string]any{
				"new_content": stringProp("The markdown that replaces the selected text."),
			}, "new_content"),
		})
	}
	defs = append(defs,
		Definition{
			Name: ToolInsertAtPosition,
			Description: "Insert new markdown into the document. position is \"start\", \"end\", " +
				"\"after:<heading text>\" to insert right after a heading, or \"line:<number>\" to insert before a 1-based line.",
			Parameters: object(map[string]any{
				"position": stringProp("Where to insert: start, end, after:<heading text>, or line:<number>."),
				"content":  stringProp("The markdown to insert."),
			}, "position", "content"),
		},
		Definition{
			Name: ToolReplaceSection,
			Description: "Replace a whole section: the heading line and everything under it up to the next heading " +
				"of the same or higher level. Include the heading in new_content if it should be kept.",
			Parameters: object(map[string]any{
				"section_heading": stringProp("The exact heading text, without the leading # characters."),
				"new_content":     stringProp("The markdown that replaces the section."),
			}, "section_heading", "new_content"),
		},
		Definition{
			Name:        ToolFindAndReplace,
			Description: "Find exact text in the document and replace it. Replaces the first occurrence unless replace_all is true.",
			Parameters: object(map[string]any{
				"find_text":    stringProp("The exact text to find. Matching is case-sensitive."),
				"replace_with": stringProp("The replacement text."),
				"replace_all": map[string]any{
					"type":        "boolean",
					"description": "Replace every occurrence instead of only the first.",
				},
			}, "find_text", "replace_with"),
		},
		Definition{
			Name:        ToolRewriteDocument,
			Description: "Replace the entire document. Use only when the user asks for a rewrite or the changes touch most of the document.",
			Parameters: object(map[string]any{
				"new_content": stringProp("The complete new document in markdown."),
				"summary":     stringProp("A one-sentence summary of what changed."),
			}, "new_content", "summary"),
		},
	)
	return defs
}
