package tui

import (
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// wordWrap is the rendered line width.
const wordWrap = 100

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// NewRenderer returns a function that renders markdown for w using glamour.
// Terminals get an auto-detected light or dark style; anything else gets plain text.
func NewRenderer(w io.Writer) func(string) (string, error) {
	opts := []glamour.TermRendererOption{
		glamour.WithStandardStyle(styles.NoTTYStyle),
		glamour.WithColorProfile(termenv.Ascii),
	}
	if IsTerminal(w) {
		opts = []glamour.TermRendererOption{glamour.WithAutoStyle()}
	}
	r, err := glamour.NewTermRenderer(append(opts, glamour.WithWordWrap(wordWrap))...)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}
