// Package selection maps a selection made in rendered markdown back to
// character offsets in the raw markdown source.
//
// Rendering strips markup, so positions in the rendered text only
// approximate positions in the source. Reconcile uses the approximation to
// pick a search window and then looks for the selected text inside it,
// first verbatim and then with whitespace collapsed.
package selection

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"skribe/api/internal/editor"
)

// searchRadius bounds how far from the approximate offset a match may start.
const searchRadius = 500

// Point is a position inside the Node-th rendered text node of the tracked
// container. A negative Node means the point lies outside the container.
type Point struct {
	Node   int `json:"node"`
	Offset int `json:"offset"`
}

// Range is a live selection. Anchor and Focus may come in either order.
type Range struct {
	Anchor Point `json:"anchor"`
	Focus  Point `json:"focus"`
}

// Context is a selection resolved against a specific content snapshot.
// Offsets are rune indices into ContentSnapshot and Text is the snapshot
// slice they cover.
type Context struct {
	Text            string `json:"text"`
	StartOffset     int    `json:"startOffset"`
	EndOffset       int    `json:"endOffset"`
	ContentSnapshot string `json:"contentSnapshot"`
}

// Valid reports whether the offsets still fit inside current. The content
// itself is not compared.
func (c *Context) Valid(current string) bool {
	if c == nil {
		return false
	}
	return c.StartOffset >= 0 && c.StartOffset <= c.EndOffset && c.EndOffset <= utf8.RuneCountInString(current)
}

// Stale reports whether current differs from the snapshot the selection was
// taken against. A context sent without a snapshot is never stale; only its
// bounds can be checked, with Valid.
func (c *Context) Stale(current string) bool {
	if c == nil {
		return true
	}
	return c.ContentSnapshot != "" && c.ContentSnapshot != current
}

// Selection converts the context into the form the edit tools take.
func (c *Context) Selection() *editor.Selection {
	if c == nil {
		return nil
	}
	return &editor.Selection{Text: c.Text, StartOffset: c.StartOffset, EndOffset: c.EndOffset}
}

// Match is a located selection.
type Match struct {
	Text   string
	Start  int
	End    int
	Approx int
	Fuzzy  bool
}

// Reconcile resolves r, taken over the rendered text nodes, to a Context
// over source. It returns nil when there is nothing usable to resolve.
func Reconcile(nodes []string, r *Range, source string) *Context {
	m, found := Locate(nodes, r, source)
	if !found {
		return nil
	}
	return &Context{
		Text:            m.Text,
		StartOffset:     m.Start,
		EndOffset:       m.End,
		ContentSnapshot: source,
	}
}

// Locate is Reconcile without building the Context.
func Locate(nodes []string, r *Range, source string) (Match, bool) {
	if r == nil {
		return Match{}, false
	}
	start, end := ordered(r.Anchor, r.Focus)
	if start == end {
		return Match{}, false
	}
	if !inside(nodes, start) || !inside(nodes, end) {
		return Match{}, false
	}

	selected := selectedText(nodes, start, end)
	trimmed := strings.TrimLeftFunc(selected, unicode.IsSpace)
	leading := utf8.RuneCountInString(selected) - utf8.RuneCountInString(trimmed)
	trimmed = strings.TrimRightFunc(trimmed, unicode.IsSpace)
	if trimmed == "" {
		return Match{}, false
	}

	approx := start.Offset + leading
	for i := 0; i < start.Node; i++ {
		approx += utf8.RuneCountInString(nodes[i])
	}

	src := []rune(source)
	want := []rune(trimmed)
	winEnd := min(len(src), approx+searchRadius+len(want))
	winStart := min(max(0, approx-searchRadius), winEnd)
	window := string(src[winStart:winEnd])

	if idx := strings.Index(window, trimmed); idx >= 0 {
		begin := winStart + utf8.RuneCountInString(window[:idx])
		return Match{
			Text:   string(src[begin : begin+len(want)]),
			Start:  begin,
			End:    begin + len(want),
			Approx: approx,
		}, true
	}

	begin, finish, found := fuzzyIndex(src[winStart:winEnd], want)
	if !found {
		return Match{}, false
	}
	begin += winStart
	finish += winStart
	return Match{
		Text:   string(src[begin:finish]),
		Start:  begin,
		End:    finish,
		Approx: approx,
		Fuzzy:  true,
	}, true
}

func ordered(a, b Point) (Point, Point) {
	if a.Node > b.Node || (a.Node == b.Node && a.Offset > b.Offset) {
		return b, a
	}
	return a, b
}

func inside(nodes []string, p Point) bool {
	if p.Node < 0 || p.Node >= len(nodes) {
		return false
	}
	return p.Offset >= 0 && p.Offset <= utf8.RuneCountInString(nodes[p.Node])
}

func selectedText(nodes []string, start, end Point) string {
	if start.Node == end.Node {
		runes := []rune(nodes[start.Node])
		return string(runes[start.Offset:end.Offset])
	}
	var b strings.Builder
	b.WriteString(string([]rune(nodes[start.Node])[start.Offset:]))
	for i := start.Node + 1; i < end.Node; i++ {
		b.WriteString(nodes[i])
	}
	b.WriteString(string([]rune(nodes[end.Node])[:end.Offset]))
	return b.String()
}

// fuzzyIndex finds want in window with every whitespace run on both sides
// treated as a single space. It returns rune offsets into window; the first
// match wins.
func fuzzyIndex(window, want []rune) (int, int, bool) {
	normWindow, starts, ends := collapse(window)
	normWant, _, _ := collapse(want)
	if len(normWant) == 0 {
		return 0, 0, false
	}

	haystack := string(normWindow)
	idx := strings.Index(haystack, string(normWant))
	if idx < 0 {
		return 0, 0, false
	}
	first := utf8.RuneCountInString(haystack[:idx])
	last := first + len(normWant) - 1
	return starts[first], ends[last], true
}

// collapse replaces whitespace runs with one space. For each rune of the
// result, starts and ends hold the half-open range of input runes it stands
// for.
func collapse(in []rune) ([]rune, []int, []int) {
	out := make([]rune, 0, len(in))
	starts := make([]int, 0, len(in))
	ends := make([]int, 0, len(in))
	for i := 0; i < len(in); {
		if !unicode.IsSpace(in[i]) {
			out = append(out, in[i])
			starts = append(starts, i)
			ends = append(ends, i+1)
			i++
			continue
		}
		j := i
		for j < len(in) && unicode.IsSpace(in[j]) {
			j++
		}
		out = append(out, ' ')
		starts = append(starts, i)
		ends = append(ends, j)
		i = j
	}
	return out, starts, ends
}
