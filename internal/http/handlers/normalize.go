package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gofiber/fiber/v2"

	"md2pdf/internal/domain"
)

// Normalizer turns any supported request encoding into a ConversionRequest.
type Normalizer struct {
	maxFileBytes int64
}

// NewNormalizer returns a Normalizer rejecting uploads larger than maxFileBytes.
func NewNormalizer(maxFileBytes int64) *Normalizer {
	return &Normalizer{maxFileBytes: maxFileBytes}
}

// Normalize extracts the Markdown and the optional fields of c. Requests
// without Markdown fail with domain.ErrInvalidInput.
func (n *Normalizer) Normalize(c *fiber.Ctx) (domain.ConversionRequest, error) {
	req := domain.ConversionRequest{
		Format: strings.TrimSpace(c.Query("format")),
		Title:  strings.TrimSpace(c.Query("title")),
	}

	ctype := strings.ToLower(strings.TrimSpace(strings.SplitN(c.Get(fiber.HeaderContentType), ";", 2)[0]))

	var err error
	switch ctype {
	case fiber.MIMEMultipartForm:
		err = n.fromMultipart(c, &req)
	case fiber.MIMEApplicationJSON:
		err = fromJSON(c, &req)
	case fiber.MIMETextPlain:
		req.Markdown = string(c.Body())
	default:
		req.Markdown = sniffText(c.Body())
	}
	if err != nil {
		return domain.ConversionRequest{}, err
	}
	if err := req.Validate(); err != nil {
		return domain.ConversionRequest{}, err
	}
	return req, nil
}

// fromMultipart walks the parts in wire order. The file part always replaces
// the Markdown; text and markdown fields only fill it while it is empty.
func (n *Normalizer) fromMultipart(c *fiber.Ctx, req *domain.ConversionRequest) error {
	boundary := string(c.Request().Header.MultipartFormBoundary())
	if boundary == "" {
		return fmt.Errorf("%w: multipart body without boundary", domain.ErrInvalidInput)
	}

	var uploadName, explicitName string
	mr := multipart.NewReader(bytes.NewReader(c.Body()), boundary)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: malformed multipart body: %v", domain.ErrInvalidInput, err)
		}

		data, err := n.readLimited(part)
		_ = part.Close()
		if err != nil {
			return err
		}

		switch part.FormName() {
		case "file":
			// Only real uploads count. A plain field named file, or the empty
			// part of an untouched file input, carries no filename.
			fn := part.FileName()
			if fn == "" {
				continue
			}
			req.Markdown = string(data)
			uploadName = strings.TrimSuffix(fn, path.Ext(fn))
		case "text", "markdown":
			if req.Markdown == "" {
				req.Markdown = string(data)
			}
		case "filename":
			if v := strings.TrimSpace(string(data)); v != "" {
				explicitName = v
			}
		case "format":
			if v := strings.TrimSpace(string(data)); v != "" {
				req.Format = v
			}
		case "title":
			if v := strings.TrimSpace(string(data)); v != "" {
				req.Title = v
			}
		}
	}

	req.Filename = uploadName
	if explicitName != "" {
		req.Filename = explicitName
	}
	return nil
}

func (n *Normalizer) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, n.maxFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read multipart part: %v", domain.ErrInvalidInput, err)
	}
	if int64(len(data)) > n.maxFileBytes {
		return nil, fmt.Errorf("%w: upload exceeds %d bytes", domain.ErrInvalidInput, n.maxFileBytes)
	}
	return data, nil
}

// fromJSON reads markdown (or text) plus the optional fields. Values that are
// not strings are ignored.
func fromJSON(c *fiber.Ctx, req *domain.ConversionRequest) error {
	var payload map[string]any
	if err := c.App().Config().JSONDecoder(c.Body(), &payload); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", domain.ErrInvalidInput, err)
	}
	str := func(key string) string {
		s, _ := payload[key].(string)
		return s
	}

	req.Markdown = str("markdown")
	if req.Markdown == "" {
		req.Markdown = str("text")
	}
	if v := strings.TrimSpace(str("filename")); v != "" {
		req.Filename = v
	}
	if v := strings.TrimSpace(str("format")); v != "" {
		req.Format = v
	}
	if v := strings.TrimSpace(str("title")); v != "" {
		req.Title = v
	}
	return nil
}

// sniffText returns body when its content is textual and "" otherwise.
func sniffText(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	for mt := mimetype.Detect(body); mt != nil; mt = mt.Parent() {
		if mt.Is(fiber.MIMETextPlain) {
			return string(body)
		}
	}
	return ""
}
