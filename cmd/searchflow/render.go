package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/aixgo-dev/searchflow/internal/pipeline"
)

// printer writes a run's progress to errOut and its final answer to out.
type printer struct {
	out      io.Writer
	errOut   io.Writer
	renderer *glamour.TermRenderer
	verbose  bool
}

// newPrinter renders markdown unless raw is set.
func newPrinter(out, errOut io.Writer, raw, verbose bool, width int) (*printer, error) {
	p := &printer{out: out, errOut: errOut, verbose: verbose}
	if raw {
		return p, nil
	}
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, fmt.Errorf("markdown renderer: %w", err)
	}
	p.renderer = r
	return p, nil
}

// errRunFailed wraps the content of an error event.
var errRunFailed = errors.New("search failed")

// consume drains events. It returns an error wrapping errRunFailed when the run
// ends with an error event.
func (p *printer) consume(events <-chan pipeline.Event) error {
	var runErr error
	for e := range events {
		switch {
		case e.Type == pipeline.EventStatus:
			fmt.Fprintf(p.errOut, "… %s\n", e.Content)
		case e.Type == pipeline.EventResults:
			if err := p.answer(e.Content); err != nil {
				return err
			}
		case e.IsPhase():
			fmt.Fprintf(p.errOut, "✓ %s done\n", e.Type)
			if p.verbose {
				if e.Reasoning != "" {
					fmt.Fprintf(p.errOut, "  reasoning: %s\n", e.Reasoning)
				}
				fmt.Fprintf(p.errOut, "%s\n\n", indent(e.Content))
			}
		case e.Type == pipeline.EventComplete:
			fmt.Fprintf(p.errOut, "%s\n", e.Content)
		case e.Type == pipeline.EventError:
			runErr = fmt.Errorf("%w: %s", errRunFailed,
				strings.TrimPrefix(e.Content, pipeline.ErrorMessagePrefix))
		}
	}
	return runErr
}

func (p *printer) answer(md string) error {
	if p.renderer == nil {
		_, err := fmt.Fprintln(p.out, md)
		return err
	}
	rendered, err := p.renderer.Render(md)
	if err != nil {
		return fmt.Errorf("render answer: %w", err)
	}
	_, err = io.WriteString(p.out, rendered)
	return err
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}
