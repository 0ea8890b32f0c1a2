package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// newRenderer returns a markdown renderer for TTY output and a pass-through otherwise.
func newRenderer(plain bool) func(string) string {
	if plain || !term.IsTerminal(int(os.Stdout.Fd())) {
		return func(s string) string { return s + "\n" }
	}

	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return func(s string) string { return s + "\n" }
	}
	return func(s string) string {
		out, err := r.Render(s)
		if err != nil {
			return s + "\n"
		}
		return out
	}
}

func printBanner(w io.Writer, server, threadID string) {
	p := termenv.ColorProfile()
	title := termenv.String("✈  Flight Assistant").Bold().Foreground(p.Color("#38bdf8"))
	hint := termenv.String("Type a question, /reset to start over, exit to quit.").Faint()

	fmt.Fprintln(w, title)
	fmt.Fprintf(w, "%s  thread=%s\n", termenv.String(server).Foreground(p.Color("#a78bfa")), threadID)
	fmt.Fprintln(w, hint)
	fmt.Fprintln(w)
}

func prompt(w io.Writer) {
	p := termenv.ColorProfile()
	fmt.Fprint(w, termenv.String("> ").Foreground(p.Color("#34d399")))
}
