package editor

import (
	"regexp"
	"strconv"
	"strings"
)

// heading is a located heading line. start and end are byte offsets of the
// line itself, without its line ending.
type heading struct {
	start int
	end   int
	level int
}

// findHeading returns the first line that is exactly a markdown heading
// (levels 1-6) with the given text. Matching is case-sensitive.
func findHeading(content, text string) (heading, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return heading{}, false
	}
	pattern := regexp.MustCompile(`(?m)^(#{1,6})[ \t]*` + regexp.QuoteMeta(text) + `[ \t]*(\r?)$`)
	loc := pattern.FindStringSubmatchIndex(content)
	if loc == nil {
		return heading{}, false
	}
	return heading{
		start: loc[0],
		end:   loc[4],
		level: loc[3] - loc[2],
	}, true
}

// sectionEnd returns the byte offset where the section opened by h stops:
// the start of the next heading of the same or a shallower level, or the
// end of content.
func sectionEnd(content string, h heading) int {
	next := regexp.MustCompile(`(?m)^#{1,` + strconv.Itoa(h.level) + `}\s`)
	rest := content[h.end:]
	loc := next.FindStringIndex(rest)
	if loc == nil {
		return len(content)
	}
	return h.end + loc[0]
}
