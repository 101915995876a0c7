// Package document wraps rendered Markdown in a print-ready HTML document.
package document

import (
	_ "embed"
	"html"
	"strings"

	"md2pdf/internal/domain"
)

//go:embed style.css
var baseStyle string

// Composer builds complete HTML documents around rendered fragments.
type Composer struct {
	css string
}

// NewComposer returns a Composer whose stylesheet is the base print style
// followed by extraCSS (the highlighter's token classes).
func NewComposer(extraCSS string) *Composer {
	css := baseStyle
	if extraCSS != "" {
		css += "\n" + extraCSS
	}
	return &Composer{css: css}
}

// Compose embeds fragment into a full document. The title is escaped; an
// empty title becomes domain.DefaultTitle.
func (c *Composer) Compose(title, fragment string) string {
	if strings.TrimSpace(title) == "" {
		title = domain.DefaultTitle
	}

	var b strings.Builder
	b.Grow(len(fragment) + len(c.css) + 256)
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
	b.WriteString("<title>")
	b.WriteString(html.EscapeString(title))
	b.WriteString("</title>\n<style>\n")
	b.WriteString(c.css)
	b.WriteString("\n</style>\n</head>\n<body>\n")
	b.WriteString(fragment)
	b.WriteString("\n</body>\n</html>\n")
	return b.String()
}
