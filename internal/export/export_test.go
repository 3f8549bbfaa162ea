package export

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type recordingUploader struct {
	keys []string
	err  error
}

func (r *recordingUploader) Upload(_ context.Context, key string, _ []byte, _, _ string) (string, error) {
	r.keys = append(r.keys, key)
	if r.err != nil {
		return "", r.err
	}
	return "https://files.example.com/" + key, nil
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input string
		want  Format
		ok    bool
	}{
		{"", FormatMarkdown, true},
		{"markdown", FormatMarkdown, true},
		{"PDF", FormatPDF, true},
		{" docx ", FormatDOCX, true},
		{"html", FormatHTML, true},
		{"odt", "", false},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if tt.ok && (err != nil || got != tt.want) {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", tt.input, got, err, tt.want)
		}
		if !tt.ok && !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("ParseFormat(%q) expected ErrUnsupportedFormat, got %v", tt.input, err)
		}
	}
}

func TestMarkdownToHTML(t *testing.T) {
	html, err := MarkdownToHTML("# Vision\n\n| Goal | Owner |\n|---|---|\n| Grow | Ada |\n\n- [x] shipped\n\n<script>alert(1)</script>\n")
	if err != nil {
		t.Fatalf("MarkdownToHTML() error = %v", err)
	}
	for _, want := range []string{`<h1 id="vision">Vision</h1>`, "<table>", "<td>Grow</td>", `type="checkbox"`} {
		if !strings.Contains(html, want) {
			t.Errorf("expected %q in %s", want, html)
		}
	}
	if strings.Contains(html, "<script>") {
		t.Error("raw HTML must not pass through")
	}
}

func TestRenderDocumentHTML(t *testing.T) {
	html, err := RenderDocumentHTML(Document{
		Title:       "Q3 <Plan>",
		Type:        "product_brief",
		Content:     "This is the **content**.",
		Author:      "Test Author",
		ProjectName: "Launch",
		UpdatedAt:   time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("RenderDocumentHTML() error = %v", err)
	}
	for _, want := range []string{"Q3 &lt;Plan&gt;", "Product Brief", "<strong>content</strong>", "Launch", "Test Author", "Mar 4, 2026"} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
}

func TestTypeLabel(t *testing.T) {
	for input, want := range map[string]string{"vision": "Vision", "product_brief": "Product Brief", "okrs": "OKRs", "": ""} {
		if got := typeLabel(input); got != want {
			t.Errorf("typeLabel(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestExportFormats(t *testing.T) {
	svc := NewService(nil)
	svc.pdf = func(_ context.Context, html string) ([]byte, error) { return []byte("%PDF " + html[:15]), nil }
	svc.docx = func(context.Context, string) ([]byte, error) { return nil, ErrDOCXDependencyMissing }
	doc := Document{ID: "doc_1", Title: "Product Vision", Content: "# Vision\n"}

	md, err := svc.Export(context.Background(), doc, FormatMarkdown)
	if err != nil {
		t.Fatalf("markdown export error = %v", err)
	}
	if string(md.Data) != doc.Content || md.Filename != "Product-Vision.md" || md.URL != "" {
		t.Fatalf("unexpected markdown result %+v", md)
	}

	pdf, err := svc.Export(context.Background(), doc, FormatPDF)
	if err != nil {
		t.Fatalf("pdf export error = %v", err)
	}
	if !strings.HasPrefix(string(pdf.Data), "%PDF <!DOCTYPE html>") || pdf.MimeType != "application/pdf" {
		t.Fatalf("unexpected pdf result %q %s", pdf.Data, pdf.MimeType)
	}

	if _, err := svc.Export(context.Background(), doc, FormatDOCX); !errors.Is(err, ErrDOCXDependencyMissing) {
		t.Fatalf("expected ErrDOCXDependencyMissing, got %v", err)
	}
	if _, err := svc.Export(context.Background(), doc, Format("odt")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestExportUploads(t *testing.T) {
	uploader := &recordingUploader{}
	svc := NewService(uploader)
	svc.now = func() time.Time { return time.Unix(1700000000, 0) }

	res, err := svc.Export(context.Background(), Document{ID: "doc_1", Title: "Roadmap", Content: "x"}, FormatHTML)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if res.URL != "https://files.example.com/exports/doc_1/1700000000-Roadmap.html" {
		t.Fatalf("unexpected URL %q", res.URL)
	}

	uploader.err = errors.New("bucket offline")
	res, err = svc.Export(context.Background(), Document{ID: "doc_1", Title: "Roadmap", Content: "x"}, FormatMarkdown)
	if err != nil {
		t.Fatalf("upload failures must not fail the export: %v", err)
	}
	if res.URL != "" || len(res.Data) == 0 {
		t.Fatalf("unexpected result after failed upload %+v", res)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"My Document v1.2", "My-Document-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "document"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := sanitizeFilename(tt.input); result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"normal-text.txt", "normal-text.txt"},
		{"é", "%C3%A9"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := percentEncodeForDataURL(tt.input); result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
