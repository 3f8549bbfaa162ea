package editor

import (
	"strconv"
	"strings"
)

func replaceSelection(input map[string]any, content string, sel *Selection) Result {
	if sel == nil {
		return fail(content, "No text is selected. Select the text you want to change and try again.")
	}
	newContent, isString := stringParam(input, "new_content")
	if !isString {
		return fail(content, "new_content must be a string.")
	}
	if sel.StartOffset < 0 || sel.EndOffset < 0 {
		return fail(content, "The selection has invalid offsets (%d-%d).", sel.StartOffset, sel.EndOffset)
	}
	if sel.StartOffset > sel.EndOffset {
		return fail(content, "The selection start (%d) is after its end (%d).", sel.StartOffset, sel.EndOffset)
	}
	runes := []rune(content)
	if sel.EndOffset > len(runes) {
		return fail(content, "The selection (%d-%d) is outside the document (%d characters). The document may have changed; select the text again.", sel.StartOffset, sel.EndOffset, len(runes))
	}

	updated := string(runes[:sel.StartOffset]) + newContent + string(runes[sel.EndOffset:])
	return ok(updated, "Replaced the selected text (%d characters) with %d characters.", sel.EndOffset-sel.StartOffset, runeLen(newContent))
}

func insertAtPosition(input map[string]any, content string) Result {
	position, isString := stringParam(input, "position")
	if !isString {
		return fail(content, "position must be a string.")
	}
	insert, isString := stringParam(input, "content")
	if !isString {
		return fail(content, "content must be a string.")
	}

	position = strings.TrimSpace(position)
	keyword, argument, _ := strings.Cut(position, ":")
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	argument = strings.TrimSpace(argument)

	switch {
	case position == "":
		return fail(content, "position is required.")
	case keyword == "start" && argument == "":
		return ok(insert+"\n\n"+content, "Inserted content at the start of the document.")
	case keyword == "end" && argument == "":
		return ok(content+"\n\n"+insert, "Inserted content at the end of the document.")
	case keyword == "after" || keyword == "after_heading":
		h, found := findHeading(content, argument)
		if !found {
			return fail(content, "Heading %q was not found in the document.", argument)
		}
		updated := content[:h.end] + "\n\n" + insert + content[h.end:]
		return ok(updated, "Inserted content after heading %q.", argument)
	case keyword == "line":
		return insertAtLine(content, insert, argument)
	default:
		if _, err := strconv.Atoi(position); err == nil {
			return insertAtLine(content, insert, position)
		}
		return fail(content, "Unrecognized position %q. Use \"start\", \"end\", \"after:<heading>\" or \"line:<number>\".", position)
	}
}

func insertAtLine(content, insert, raw string) Result {
	line, err := strconv.Atoi(raw)
	if err != nil {
		return fail(content, "Unrecognized line number %q.", raw)
	}
	lines := strings.Split(content, "\n")
	if line < 1 || line > len(lines)+1 {
		return fail(content, "Line %d is out of range; the document has %d lines.", line, len(lines))
	}

	updated := make([]string, 0, len(lines)+1)
	updated = append(updated, lines[:line-1]...)
	updated = append(updated, insert)
	updated = append(updated, lines[line-1:]...)
	return ok(strings.Join(updated, "\n"), "Inserted content at line %d.", line)
}

func replaceSection(input map[string]any, content string) Result {
	sectionHeading, isString := stringParam(input, "section_heading")
	if !isString {
		return fail(content, "section_heading must be a string.")
	}
	newContent, isString := stringParam(input, "new_content")
	if !isString {
		return fail(content, "new_content must be a string.")
	}

	h, found := findHeading(content, sectionHeading)
	if !found {
		return fail(content, "Section %q was not found in the document.", strings.TrimSpace(sectionHeading))
	}
	end := sectionEnd(content, h)

	before := content[:h.start]
	after := content[end:]
	if after == "" {
		return ok(before+newContent, "Replaced section %q.", strings.TrimSpace(sectionHeading))
	}
	updated := before + strings.TrimRight(newContent, "\n") + "\n\n" + after
	return ok(updated, "Replaced section %q.", strings.TrimSpace(sectionHeading))
}

func findAndReplace(input map[string]any, content string) Result {
	findText, isString := stringParam(input, "find_text")
	if !isString {
		return fail(content, "find_text must be a string.")
	}
	replaceWith, isString := stringParam(input, "replace_with")
	if !isString {
		return fail(content, "replace_with must be a string.")
	}
	if findText == "" {
		return fail(content, "find_text must not be empty.")
	}

	count := strings.Count(content, findText)
	if count == 0 {
		return fail(content, "Could not find %q in the document.", preview(findText, 80))
	}
	if boolParam(input, "replace_all") {
		res := ok(strings.ReplaceAll(content, findText, replaceWith), "Replaced %d occurrence(s) of %q.", count, preview(findText, 80))
		res.Replacements = count
		return res
	}
	res := ok(strings.Replace(content, findText, replaceWith, 1), "Replaced 1 occurrence of %q.", preview(findText, 80))
	res.Replacements = 1
	return res
}

func rewriteDocument(input map[string]any, content string) Result {
	newContent, _ := stringParam(input, "new_content")
	summary, _ := stringParam(input, "summary")
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return ok(newContent, "Rewrote the document.")
	}
	return ok(newContent, "Rewrote the document: %s", summary)
}
