package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/samsaffron/term-chat/internal/llm"
)

// DefaultWidth is used when the terminal width is unknown.
const DefaultWidth = 80

// CancelledMarker is appended to a reply whose generation was cancelled.
const CancelledMarker = "[generation cancelled]"

// Renderer writes session events to a terminal. Text deltas are written
// verbatim; tool progress and notices get their own dimmed line, truncated
// to the terminal width.
type Renderer struct {
	out    io.Writer
	styles *Styles
	width  int

	midLine bool // last write did not end with a newline
}

// NewRenderer creates a renderer for out. A width <= 0 means DefaultWidth.
func NewRenderer(out io.Writer, styles *Styles, width int) *Renderer {
	if width <= 0 {
		width = DefaultWidth
	}
	if styles == nil {
		styles = NewStyles(out)
	}
	return &Renderer{out: out, styles: styles, width: width}
}

// Event renders one session event.
func (r *Renderer) Event(ev llm.Event) {
	switch ev.Type {
	case llm.EventTextDelta:
		r.write(ev.Text)
	case llm.EventToolProgress:
		r.line(r.progress(ev.Text))
	case llm.EventNotice:
		r.line(r.styles.Warning.Render(Truncate(oneLine(ev.Text), r.width)))
	}
}

// Error renders the error that ended a session in place of the reply.
func (r *Renderer) Error(err error) {
	if errors.Is(err, llm.ErrCancelled) {
		if r.midLine {
			r.write(" ")
		}
		r.write(r.styles.Muted.Render(CancelledMarker))
		r.Finish()
		return
	}
	r.line(r.styles.Error.Render("Error: " + err.Error()))
}

// Finish ends the current reply with a newline if one is pending.
func (r *Renderer) Finish() {
	if r.midLine {
		r.write("\n")
	}
}

func (r *Renderer) progress(text string) string {
	text = Truncate(oneLine(text), r.width)
	switch {
	case strings.HasPrefix(text, SuccessIcon):
		return r.styles.FormatResult(true, r.styles.Muted.Render(strings.TrimSpace(strings.TrimPrefix(text, SuccessIcon))))
	case strings.HasPrefix(text, FailIcon):
		return r.styles.FormatResult(false, r.styles.Muted.Render(strings.TrimSpace(strings.TrimPrefix(text, FailIcon))))
	default:
		return r.styles.Muted.Render(text)
	}
}

func (r *Renderer) line(s string) {
	r.Finish()
	r.write(s + "\n")
}

func (r *Renderer) write(s string) {
	if s == "" {
		return
	}
	fmt.Fprint(r.out, s)
	r.midLine = !strings.HasSuffix(s, "\n")
}

// oneLine collapses whitespace runs, including newlines, to single spaces.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
