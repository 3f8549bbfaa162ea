package selection

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderedNodes returns the text nodes a browser shows for the rendered
// markdown, in document order. Block boundaries contribute a "\n" node, the
// way the newlines between block elements appear in the DOM.
func RenderedNodes(source string) []string {
	src := []byte(source)
	doc := markdown.Parser().Parse(text.NewReader(src))

	nodes := make([]string, 0)
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if closesLine(n) {
				nodes = append(nodes, "\n")
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			value := string(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				value += "\n"
			}
			if value != "" {
				nodes = append(nodes, value)
			}
		case *ast.String:
			nodes = append(nodes, string(node.Value))
		case *ast.AutoLink:
			nodes = append(nodes, string(node.Label(src)))
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			var b strings.Builder
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				segment := lines.At(i)
				b.Write(segment.Value(src))
			}
			if b.Len() > 0 {
				nodes = append(nodes, b.String())
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return nodes
}

func closesLine(n ast.Node) bool {
	switch n.(type) {
	case *ast.Paragraph, *ast.Heading, *ast.TextBlock, *ast.FencedCodeBlock, *ast.CodeBlock, *ast.ThematicBreak:
		return true
	}
	return false
}
