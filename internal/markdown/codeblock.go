package markdown

import (
	"bytes"
	"html"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

const (
	codeBlockOpen  = `<pre class="hljs chroma"><code>`
	codeBlockClose = "</code></pre>\n"
)

// codeBlockRenderer renders fenced code blocks with chroma.
type codeBlockRenderer struct {
	style     *chroma.Style
	formatter *chromahtml.Formatter
}

func newCodeBlockRenderer(styleName string) *codeBlockRenderer {
	if styleName == "" {
		styleName = "github"
	}
	return &codeBlockRenderer{
		style: styles.Get(styleName),
		formatter: chromahtml.New(
			chromahtml.WithClasses(true),
			chromahtml.PreventSurroundingPre(true),
		),
	}
}

// RegisterFuncs implements renderer.NodeRenderer.
func (r *codeBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.renderFencedCodeBlock)
}

func (r *codeBlockRenderer) renderFencedCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.FencedCodeBlock)

	var code strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		code.Write(seg.Value(source))
	}

	var lang string
	if n.Info != nil {
		lang = string(n.Language(source))
	}

	_, _ = w.WriteString(codeBlockOpen)
	if highlighted, ok := r.highlight(lang, code.String()); ok {
		_, _ = w.WriteString(highlighted)
	} else {
		_, _ = w.WriteString(html.EscapeString(code.String()))
	}
	_, _ = w.WriteString(codeBlockClose)
	return ast.WalkContinue, nil
}

// highlight returns chroma markup for code, or false when the language is
// unknown or highlighting failed.
func (r *codeBlockRenderer) highlight(lang, code string) (out string, ok bool) {
	if lang == "" {
		return "", false
	}
	lexer := lexers.Get(lang)
	if lexer == nil {
		return "", false
	}

	defer func() {
		if recover() != nil {
			out, ok = "", false
		}
	}()

	iterator, err := chroma.Coalesce(lexer).Tokenise(nil, code)
	if err != nil {
		return "", false
	}
	var buf bytes.Buffer
	if err := r.formatter.Format(&buf, r.style, iterator); err != nil {
		return "", false
	}
	return buf.String(), true
}

func (r *codeBlockRenderer) styleSheet() string {
	var buf bytes.Buffer
	if err := r.formatter.WriteCSS(&buf, r.style); err != nil {
		return ""
	}
	return buf.String()
}
