// Package export renders documents as markdown, HTML, PDF or DOCX.
package export

import (
	"errors"
	"strings"
	"time"
)

type Format string

const (
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
)

// ParseFormat accepts a format name case-insensitively. An empty value means
// markdown.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case "", FormatMarkdown, "markdown":
		return FormatMarkdown, nil
	case FormatHTML:
		return FormatHTML, nil
	case FormatPDF:
		return FormatPDF, nil
	case FormatDOCX:
		return FormatDOCX, nil
	}
	return "", ErrUnsupportedFormat
}

// Document is what gets exported.
type Document struct {
	ID          string
	Title       string
	Type        string
	Content     string
	Author      string
	ProjectName string
	UpdatedAt   time.Time
}

// Result contains the export output. URL is set when the artifact was also
// uploaded to object storage.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
	URL      string
}

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
