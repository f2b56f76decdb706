package pipeline

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	styleDone    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleError   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	styleStage   = lipgloss.NewStyle().Bold(true)
)

// ConsoleSink renders stage events as they arrive, in the style a terminal
// progress view would: a bold stage id and a colored status line.
type ConsoleSink struct {
	w io.Writer
}

// NewConsoleSink wraps w (typically os.Stderr, keeping stdout free for
// the report's own output) as a Progress Sink.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

func (s *ConsoleSink) Stage(ev StageEvent) {
	var marker string
	switch ev.Status {
	case Running:
		marker = styleRunning.Render("...")
	case Done:
		marker = styleDone.Render("ok")
	case Errored:
		marker = styleError.Render("FAIL")
	}
	fmt.Fprintf(s.w, "%s %-10s %s\n", marker, styleStage.Render(ev.ID), ev.Label)
}

func (s *ConsoleSink) Results(r Report) {
	fmt.Fprintf(s.w, "%s %s — %d sections, %d instructions\n",
		styleDone.Render("done"), r.File.Name, len(r.Sections), len(r.Disasm.Instructions))
}

func (s *ConsoleSink) Error(stage string, err error) {
	fmt.Fprintf(s.w, "%s stage %s: %v\n", styleError.Render("error"), stage, err)
}
