package markdown

import (
	"fmt"
	"strings"

	"github.com/adrg/frontmatter"
)

// FrontMatter is the subset of document metadata the service uses.
type FrontMatter struct {
	Title string `yaml:"title" toml:"title" json:"title"`
}

// ParseFrontMatter splits leading front matter from the Markdown body.
// Text without front matter is returned unchanged.
func ParseFrontMatter(text string) (FrontMatter, string, error) {
	var meta FrontMatter
	body, err := frontmatter.Parse(strings.NewReader(text), &meta)
	if err != nil {
		return FrontMatter{}, text, fmt.Errorf("parse front matter: %w", err)
	}
	return meta, string(body), nil
}
