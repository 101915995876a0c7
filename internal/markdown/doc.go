// Package markdown renders Markdown into an HTML fragment.
//
// It wraps goldmark with tables, strikethrough, task lists, autolinks and
// typographic substitutions, and replaces goldmark's fenced code block output
// with chroma highlighting. Fenced blocks whose language chroma does not know,
// or that fail to highlight, are emitted as escaped text in the same wrapper.
package markdown
