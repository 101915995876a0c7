package markdown

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"

	"md2pdf/internal/config"
)

// ErrRender indicates goldmark failed to convert the source.
var ErrRender = errors.New("markdown render failed")

// Renderer converts Markdown to HTML. It is safe for concurrent use.
type Renderer struct {
	md          goldmark.Markdown
	code        *codeBlockRenderer
	frontMatter bool
}

// New builds a Renderer from the markdown section of the configuration.
func New(cfg config.MarkdownConfig) *Renderer {
	code := newCodeBlockRenderer(cfg.HighlightStyle)

	exts := []goldmark.Extender{
		extension.Table,
		extension.Strikethrough,
		extension.TaskList,
	}
	if cfg.Linkify {
		exts = append(exts, extension.Linkify)
	}
	if cfg.Typographer {
		exts = append(exts, extension.Typographer)
	}

	rendererOptions := []renderer.Option{
		// Lower value wins over goldmark's default HTML renderer (1000).
		renderer.WithNodeRenderers(util.Prioritized(code, 200)),
	}
	if cfg.AllowHTML {
		rendererOptions = append(rendererOptions, html.WithUnsafe())
	}
	if cfg.HardWraps {
		rendererOptions = append(rendererOptions, html.WithHardWraps())
	}

	md := goldmark.New(
		goldmark.WithExtensions(exts...),
		goldmark.WithRendererOptions(rendererOptions...),
	)
	return &Renderer{md: md, code: code, frontMatter: cfg.FrontMatter}
}

// Render converts Markdown text into an HTML fragment.
func (r *Renderer) Render(text string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRender, err)
	}
	return buf.String(), nil
}

// Prepare strips YAML front matter when enabled and returns the body with
// the front matter title, if any. With front matter disabled the text is
// returned untouched.
func (r *Renderer) Prepare(text string) (body string, title string) {
	if !r.frontMatter {
		return text, ""
	}
	meta, rest, err := ParseFrontMatter(text)
	if err != nil {
		return text, ""
	}
	return rest, strings.TrimSpace(meta.Title)
}

// StyleSheet returns the CSS for the highlighter's token classes.
func (r *Renderer) StyleSheet() string {
	return r.code.styleSheet()
}
