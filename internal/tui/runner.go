// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package tui

import (
	"context"
	"errors"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/matt-FFFFFF/nipipe/internal/pipeline"
	events "github.com/matt-FFFFFF/nipipe/internal/progress"
)

// ErrTUI is returned when the terminal interface fails.
var ErrTUI = errors.New("terminal interface failed")

// Batch is a started batch the runner can stop and wait for.
type Batch interface {
	Stopper
	Done() <-chan struct{}
	Wait(ctx context.Context) (*pipeline.Report, error)
}

// StartFunc starts a batch that reports to reporter.
type StartFunc func(reporter events.Reporter) (Batch, error)

// Runner owns the tea program for the lifetime of a batch.
type Runner struct {
	model    *Model
	program  *tea.Program
	reporter *Reporter
}

// Reporter implements progress.Reporter and forwards events to the TUI.
type Reporter struct {
	program *tea.Program
	closed  bool
	mutex   sync.RWMutex
}

// Report implements progress.Reporter.
func (tr *Reporter) Report(event events.Event) {
	tr.mutex.RLock()
	defer tr.mutex.RUnlock()

	if tr.closed || tr.program == nil {
		return
	}

	tr.program.Send(EventMsg{Event: event})
}

// Close implements progress.Reporter.
func (tr *Reporter) Close() {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()

	tr.closed = true
}

// NewRunner creates a runner for model. Extra program options are used by tests.
func NewRunner(model *Model, opts ...tea.ProgramOption) *Runner {
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	program := tea.NewProgram(model, opts...)

	return &Runner{
		model:    model,
		program:  program,
		reporter: &Reporter{program: program},
	}
}

// Run shows the TUI, starts the batch and returns its report once the batch
// has finished and the user has quit. If the TUI fails while the batch runs
// the batch is killed.
func (r *Runner) Run(ctx context.Context, start StartFunc) (*pipeline.Report, error) {
	tuiDone := make(chan error, 1)

	go func() {
		_, err := r.program.Run()
		tuiDone <- err
	}()

	b, err := start(r.reporter)
	if err != nil {
		r.reporter.Close()
		r.program.Quit()
		<-tuiDone

		return nil, err
	}

	r.program.Send(AttachMsg{Stopper: b})

	var tuiErr error

	select {
	case <-b.Done():
		rep, _ := b.Wait(ctx)
		r.program.Send(DoneMsg{Report: rep})

		tuiErr = <-tuiDone
	case tuiErr = <-tuiDone:
		b.Force()
	case <-ctx.Done():
		b.Force()
		r.program.Quit()

		tuiErr = <-tuiDone
	}

	r.reporter.Close()

	// The batch always finishes once forced, the wait is not bounded by ctx.
	rep, err := b.Wait(context.Background())
	if err != nil {
		return nil, err
	}

	if tuiErr != nil && !errors.Is(tuiErr, tea.ErrProgramKilled) {
		return rep, errors.Join(ErrTUI, tuiErr)
	}

	return rep, nil
}
