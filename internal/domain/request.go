package domain

import "strings"

// Defaults applied when a request leaves a field empty.
const (
	DefaultFilename = "document"
	DefaultTitle    = "Document"
	DefaultFormat   = "A4"
)

// ConversionRequest is the canonical request produced from any wire encoding.
type ConversionRequest struct {
	Markdown string
	Filename string
	Title    string
	Format   string
}

// Validate rejects requests without Markdown content.
func (r ConversionRequest) Validate() error {
	if strings.TrimSpace(r.Markdown) == "" {
		return ErrInvalidInput
	}
	return nil
}

// PDFOutput is a rendered PDF plus the base name suggested for download.
type PDFOutput struct {
	Data     []byte
	Filename string
}
