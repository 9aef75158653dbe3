package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// renderMarkdown renders markdown content, using glamour for terminal output or plain text otherwise
func renderMarkdown(markdown string, theme string, tty bool) string {
	if !tty {
		return markdown
	}
	if theme == "" {
		theme = "auto"
	}
	rendered, err := glamour.Render(markdown, theme)
	if err != nil {
		// Fall back to plain markdown if rendering fails
		return markdown
	}
	return rendered
}

// printMarkdown renders and prints markdown using the context's theme
func printMarkdown(w io.Writer, cc *CliContext, markdown string) error {
	theme := "auto"
	if cc != nil && cc.Context != nil {
		theme = cc.Context.Rendering.Theme
	}
	_, err := fmt.Fprint(w, renderMarkdown(markdown, theme, isTerminal(w)))
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
