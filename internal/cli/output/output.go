// Package output renders command results for terminals, agents and scripts.
//
// Text mode uses go-pretty tables and colors, markdown mode emits the same
// tables as markdown, and JSON mode encodes the raw values.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"
)

// OutputMode selects how results are rendered.
type OutputMode string

// Output modes.
const (
	ModeAuto     OutputMode = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	ModeText     OutputMode = "text"
	ModeMarkdown OutputMode = "markdown"
	ModeJSON     OutputMode = "json"
)

// Mode converts a configured output format into an OutputMode.
// Unknown values fall back to ModeAuto.
func Mode(s string) OutputMode {
	switch OutputMode(strings.ToLower(s)) {
	case ModeText:
		return ModeText
	case ModeMarkdown:
		return ModeMarkdown
	case ModeJSON:
		return ModeJSON
	}
	return ModeAuto
}

// Renderer writes command output in one mode.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   OutputMode
	isTTY  bool
}

// NewRenderer creates a renderer. The TTY state is detected from out.
func NewRenderer(out, errOut io.Writer, mode OutputMode) *Renderer {
	return NewRendererWithTTY(out, errOut, isTerminal(out), mode)
}

// NewRendererWithTTY creates a renderer with an explicit TTY state.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode OutputMode) *Renderer {
	return &Renderer{out: out, errOut: errOut, mode: mode, isTTY: isTTY}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// EffectiveMode resolves ModeAuto against the TTY state.
func (r *Renderer) EffectiveMode() OutputMode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeMarkdown
}

// Out returns the standard output writer.
func (r *Renderer) Out() io.Writer {
	return r.out
}

func (r *Renderer) colored() bool {
	return r.isTTY && r.EffectiveMode() == ModeText
}

func (r *Renderer) paint(s string, colors ...text.Color) string {
	if !r.colored() {
		return s
	}
	return text.Colors(colors).Sprint(s)
}

// Println writes a line to standard output.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Header writes a section header.
func (r *Renderer) Header(level int, title string) {
	if r.EffectiveMode() == ModeMarkdown {
		_, _ = fmt.Fprintf(r.out, "%s %s\n\n", strings.Repeat("#", max(level, 1)), title)
		return
	}
	_, _ = fmt.Fprintln(r.out, r.paint(title, text.Bold))
	_, _ = fmt.Fprintln(r.out)
}

// Success writes a success message to standard output.
func (r *Renderer) Success(msg string) {
	_, _ = fmt.Fprintln(r.out, r.paint(msg, text.FgGreen))
}

// Muted writes secondary information to standard output.
func (r *Renderer) Muted(msg string) {
	_, _ = fmt.Fprintln(r.out, r.paint(msg, text.Faint))
}

// Error writes an error message to standard error.
func (r *Renderer) Error(msg string) {
	if r.isTTY {
		msg = text.Colors{text.FgRed}.Sprint(msg)
	}
	_, _ = fmt.Fprintln(r.errOut, msg)
}

// Table writes rows under header as a table, or as markdown in markdown mode.
func (r *Renderer) Table(header []string, rows [][]any) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	if r.colored() {
		t.Style().Color.Header = text.Colors{text.Bold}
	}

	headerRow := make(table.Row, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	t.AppendHeader(headerRow)
	for _, row := range rows {
		t.AppendRow(table.Row(row))
	}

	if r.EffectiveMode() == ModeMarkdown {
		t.RenderMarkdown()
		_, _ = fmt.Fprintln(r.out)
		return
	}
	t.Render()
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
