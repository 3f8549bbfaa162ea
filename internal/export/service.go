package export

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Uploader persists an artifact and returns a download URL.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType, filename string) (string, error)
}

type converter func(ctx context.Context, html string) ([]byte, error)

// Service provides document export functionality
type Service struct {
	uploader Uploader
	pdf      converter
	docx     converter
	now      func() time.Time
}

// NewService creates an export service. uploader may be nil, in which case
// artifacts are only returned inline.
func NewService(uploader Uploader) *Service {
	return &Service{
		uploader: uploader,
		pdf:      renderPDF,
		docx:     renderDOCX,
		now:      time.Now,
	}
}

// Export renders doc in the requested format. Upload failures are logged and
// do not fail the export.
func (s *Service) Export(ctx context.Context, doc Document, format Format) (*Result, error) {
	result := &Result{Filename: sanitizeFilename(doc.Title) + "." + string(format)}

	switch format {
	case FormatMarkdown:
		result.Data = []byte(doc.Content)
		result.MimeType = "text/markdown; charset=utf-8"
	case FormatHTML, FormatPDF, FormatDOCX:
		html, err := RenderDocumentHTML(doc)
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		switch format {
		case FormatHTML:
			result.Data = []byte(html)
			result.MimeType = "text/html; charset=utf-8"
		case FormatPDF:
			if result.Data, err = s.pdf(ctx, html); err != nil {
				return nil, err
			}
			result.MimeType = "application/pdf"
		case FormatDOCX:
			if result.Data, err = s.docx(ctx, html); err != nil {
				return nil, err
			}
			result.MimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	if s.uploader != nil {
		key := fmt.Sprintf("exports/%s/%d-%s", doc.ID, s.now().Unix(), result.Filename)
		url, err := s.uploader.Upload(ctx, key, result.Data, result.MimeType, result.Filename)
		if err != nil {
			log.Printf("export: upload %s: %v", key, err)
		} else {
			result.URL = url
		}
	}
	return result, nil
}
