// Package pipeline runs one conversion: Markdown to HTML fragment, fragment to
// document, document to PDF.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"md2pdf/internal/document"
	"md2pdf/internal/domain"
	"md2pdf/internal/infra/cache"
	"md2pdf/internal/infra/logging"
	"md2pdf/internal/markdown"
	"md2pdf/internal/pdf"
)

// PDFRenderer prints a composed document.
type PDFRenderer interface {
	RenderToPDF(ctx context.Context, html string, opts pdf.Options) ([]byte, error)
}

// Cache stores finished PDFs. A nil Cache disables caching.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte)
}

// Service wires the conversion stages together.
type Service struct {
	markdown *markdown.Renderer
	composer *document.Composer
	pdf      PDFRenderer
	cache    Cache
	marginMM float64
}

// Option customizes a Service.
type Option func(*Service)

// WithCache enables output caching.
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithMargin sets the page margin in millimetres on all sides.
func WithMargin(mm float64) Option {
	return func(s *Service) { s.marginMM = mm }
}

// New returns a Service. The composer stylesheet includes the highlighter CSS
// of md.
func New(md *markdown.Renderer, renderer PDFRenderer, opts ...Option) *Service {
	s := &Service{
		markdown: md,
		composer: document.NewComposer(md.StyleSheet()),
		pdf:      renderer,
		marginMM: 10,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ComposeHTML renders req to a complete HTML document. The title falls back
// to the front matter title, then to domain.DefaultTitle.
func (s *Service) ComposeHTML(req domain.ConversionRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	body, metaTitle := s.markdown.Prepare(req.Markdown)
	fragment, err := s.markdown.Render(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrRenderFailure, err)
	}
	return s.composer.Compose(resolveTitle(req.Title, metaTitle), fragment), nil
}

// Convert produces the PDF for req.
func (s *Service) Convert(ctx context.Context, req domain.ConversionRequest) (domain.PDFOutput, error) {
	if err := req.Validate(); err != nil {
		return domain.PDFOutput{}, err
	}
	start := time.Now()

	var key string
	if s.cache != nil {
		key = cache.Key(req.Markdown, req.Format, req.Title, s.marginMM)
		if data, err := s.cache.Get(ctx, key); err == nil && data != nil {
			return domain.PDFOutput{Data: data, Filename: req.Filename}, nil
		}
	}

	htmlDoc, err := s.ComposeHTML(req)
	if err != nil {
		return domain.PDFOutput{}, err
	}

	data, err := s.pdf.RenderToPDF(ctx, htmlDoc, pdf.Options{Format: req.Format, MarginMM: s.marginMM})
	if err != nil {
		return domain.PDFOutput{}, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, data)
	}
	logging.Info("PDF generated", "bytes", len(data), "format", req.Format, "duration_ms", time.Since(start).Milliseconds())
	return domain.PDFOutput{Data: data, Filename: req.Filename}, nil
}

func resolveTitle(requested, meta string) string {
	switch {
	case requested != "":
		return requested
	case meta != "":
		return meta
	default:
		return domain.DefaultTitle
	}
}
