package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
)

// MarkdownString renders md for the terminal, or returns it unchanged when
// rendering fails.
func MarkdownString(md string) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}

// RenderMarkdown prints md to stderr.
func RenderMarkdown(md string) {
	fmt.Fprint(os.Stderr, MarkdownString(md))
}
