package assistant

import (
	"fmt"
	"strings"

	"skribe/api/internal/selection"
)

var typeGuidance = map[string]string{
	"vision": "A vision document states where the product is going and why it matters. " +
		"Keep it inspiring but concrete: the problem, who has it, the future state, and what success looks like in three to five years.",
	"strategy": "A strategy document explains how the team will win. " +
		"Name the diagnosis, the guiding policy, and the coherent actions. Call out trade-offs and what the team will not do.",
	"product_brief": "A product brief scopes one initiative. " +
		"Cover the problem, target users, goals and non-goals, requirements, success metrics, and open questions.",
	"roadmap": "A roadmap sequences work over time. " +
		"Group items into Now, Next and Later (or quarters), tie each item to an outcome, and keep dates honest about uncertainty.",
	"okrs": "OKRs pair qualitative objectives with measurable key results. " +
		"Each objective should have two to four key results with a baseline and a target. Avoid tasks disguised as key results.",
	"custom": "This is a free-form planning document. Follow the structure the author has already set up.",
}

// SystemPrompt builds the instructions for one chat run. sel is included
// only when it still matches content.
func SystemPrompt(docType, title, content string, sel *selection.Context) string {
	var b strings.Builder
	b.WriteString("You are Skribe, a writing partner for product managers. ")
	b.WriteString("You help draft and refine planning documents written in markdown.\n\n")

	guidance, ok := typeGuidance[docType]
	if !ok {
		guidance = typeGuidance["custom"]
	}
	b.WriteString(guidance)
	b.WriteString("\n\n")

	b.WriteString("Edit the document only through the provided tools. Prefer the smallest edit that does the job: ")
	b.WriteString("replace_selection for selected text, replace_section for one section, find_and_replace for a phrase, ")
	b.WriteString("insert_at_position for new material, and rewrite_document only when asked for a full rewrite. ")
	b.WriteString("If a tool reports a failure, read the message and try a different approach. ")
	b.WriteString("After editing, reply with a short summary of what changed. When the user only asks a question, answer without editing.\n\n")

	fmt.Fprintf(&b, "<document title=%q type=%q>\n%s\n</document>\n", title, docType, content)

	if sel != nil && !sel.Stale(content) && sel.Valid(content) {
		fmt.Fprintf(&b, "\nThe user has selected the following text (characters %d to %d). "+
			"Requests like \"this\" or \"make it shorter\" refer to it:\n<selection>\n%s\n</selection>\n",
			sel.StartOffset, sel.EndOffset, sel.Text)
	}
	return b.String()
}
