package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var documentTemplate = template.Must(template.New("document.html").Funcs(template.FuncMap{
	"typeLabel": typeLabel,
}).ParseFS(templateFS, "templates/document.html"))

// TemplateData holds data for document template rendering
type TemplateData struct {
	Document
	ContentHTML template.HTML
}

// RenderDocumentHTML renders a standalone HTML page for doc.
func RenderDocumentHTML(doc Document) (string, error) {
	body, err := MarkdownToHTML(doc.Content)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, TemplateData{Document: doc, ContentHTML: template.HTML(body)}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// typeLabel turns "product_brief" into "Product Brief". OKRs keeps its
// casing.
func typeLabel(docType string) string {
	if docType == "okrs" {
		return "OKRs"
	}
	words := strings.Fields(strings.ReplaceAll(docType, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
