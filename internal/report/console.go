// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package report

import (
	"fmt"
	"io"
	"sync"

	"github.com/matt-FFFFFF/nipipe/internal/color"
	"github.com/matt-FFFFFF/nipipe/internal/progress"
)

// Console prints batch events as plain lines. It is the observer used when the TUI is off.
type Console struct {
	w       io.Writer
	mu      sync.Mutex
	verbose bool
	percent int
}

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// WithProcessOutput also prints every output line of the running tools.
func WithProcessOutput() ConsoleOption {
	return func(c *Console) {
		c.verbose = true
	}
}

// NewConsole creates a Console writing to w.
func NewConsole(w io.Writer, opts ...ConsoleOption) *Console {
	c := &Console{w: w, percent: -1}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

var _ progress.Listener = (*Console)(nil)

// OnEvent implements progress.Listener.
func (c *Console) OnEvent(e progress.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e.Type {
	case progress.EventBatchStarted, progress.EventLog:
		c.line(color.Render(color.Bold, e.Message))
	case progress.EventPhaseStarted:
		c.line(fmt.Sprintf("[%3d%%] %s", max(c.percent, 0), e.Message))
	case progress.EventPhaseCompleted:
		c.line(color.Render(color.Success, "  ✓ "+e.Message))
	case progress.EventPhaseSkipped:
		c.line(color.Render(color.Faint, "  ~ "+e.Message))
	case progress.EventPhaseFailed:
		c.line(color.Render(color.Failure, "  ✗ "+e.Message))
	case progress.EventStopping, progress.EventForcing:
		c.line(color.Render(color.Warning, e.Message))
	case progress.EventOutput:
		if c.verbose {
			c.line(color.Render(color.Faint, "    "+e.Data.OutputLine))
		}
	case progress.EventItemResult:
		style := color.Faint
		if e.Data.Result != nil {
			style = color.ForStatus(e.Data.Result.Status)
		}

		c.line(color.Render(style, e.Message))
	case progress.EventProgress:
		c.percent = e.Progress.Percent
	case progress.EventBatchReport:
		if e.Data.Report != nil {
			c.line(color.Render(summaryStyle(e.Data.Report), Summary(e.Data.Report)))
		}
	}
}

// Percent returns the last overall percentage seen, or -1.
func (c *Console) Percent() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.percent
}

func (c *Console) line(s string) {
	fmt.Fprintln(c.w, s) // nolint:errcheck
}
