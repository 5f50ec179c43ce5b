// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
	"github.com/matt-FFFFFF/nipipe/internal/pipeline"
	events "github.com/matt-FFFFFF/nipipe/internal/progress"
)

// RowStatus is the display state of an item row.
type RowStatus int

const (
	RowPending RowStatus = iota
	RowRunning
	RowSucceeded
	RowFailed
	RowCancelled
)

// String returns a string representation of the row status.
func (s RowStatus) String() string {
	switch s {
	case RowPending:
		return "pending"
	case RowRunning:
		return "running"
	case RowSucceeded:
		return "succeeded"
	case RowFailed:
		return "failed"
	case RowCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ItemRow is the display state of one item.
type ItemRow struct {
	ID         string
	Name       string
	Status     RowStatus
	Phase      string // Label of the current or failing phase.
	PhaseIndex int
	PhaseCount int
	LastOutput string
	Detail     string
	StartTime  time.Time
	EndTime    time.Time
}

// UpdateOutput keeps the last non-empty line of output.
func (r *ItemRow) UpdateOutput(output string) {
	output = strings.TrimSpace(output)
	if output == "" {
		return
	}

	lines := strings.Split(output, "\n")
	r.LastOutput = strings.TrimSpace(lines[len(lines)-1])
}

// StopState is how far a user requested stop has escalated.
type StopState int

const (
	StopNone StopState = iota
	StopRequested
	StopForced
)

// Stopper is the part of a batch handle the TUI controls.
type Stopper interface {
	RequestStop() bool
	Force() bool
}

// Model represents the TUI application state.
type Model struct {
	title     string
	rows      []*ItemRow
	index     map[string]*ItemRow
	phases    map[string]string // Phase name to label.
	stopper   Stopper
	stop      StopState
	percent   int
	lastLine  string
	report    *pipeline.Report
	completed bool
	quitting  bool
	notice    string
	width     int
	height    int
	bar       progress.Model
	viewport  viewport.Model
	styles    *Styles
}

// Styles contains all the styling for the TUI.
type Styles struct {
	Title     lipgloss.Style
	Pending   lipgloss.Style
	Running   lipgloss.Style
	Succeeded lipgloss.Style
	Failed    lipgloss.Style
	Cancelled lipgloss.Style
	Output    lipgloss.Style
	Help      lipgloss.Style
	Border    lipgloss.Style
}

// NewStyles creates the default styling for the TUI.
func NewStyles() *Styles {
	return &Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")),
		Pending: lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")),
		Running: lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true),
		Succeeded: lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")),
		Failed: lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")),
		Cancelled: lipgloss.NewStyle().
			Foreground(lipgloss.Color("3")),
		Output: lipgloss.NewStyle().
			Foreground(lipgloss.Color("7")).
			Italic(true),
		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")),
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")),
	}
}

const (
	defaultWidth  = 80
	defaultHeight = 24
	// title, bar, status, borders, summary and help
	reservedLines = 9
)

// NewModel creates a model with a pending row per item.
func NewModel(def *pipeline.Definition, items []pipeline.Item) *Model {
	m := &Model{
		title:  "nipipe: " + def.Name,
		rows:   make([]*ItemRow, 0, len(items)),
		index:  make(map[string]*ItemRow, len(items)),
		phases: make(map[string]string, len(def.Phases)),
		bar:    progress.New(progress.WithDefaultGradient()),
		styles: NewStyles(),
	}

	for _, p := range def.Phases {
		m.phases[p.Name] = p.DisplayName()
	}

	for _, it := range items {
		row := &ItemRow{ID: it.ID, Name: it.DisplayName(), PhaseCount: len(def.Phases)}
		m.rows = append(m.rows, row)
		m.index[it.ID] = row
	}

	m.resize(defaultWidth, defaultHeight)

	return m
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.bar.Width = max(width-8, 10)

	vw := max(width-2, 20)
	vh := max(height-reservedLines, 3)

	if m.viewport.Width == 0 {
		m.viewport = viewport.New(vw, vh)
		return
	}

	m.viewport.Width = vw
	m.viewport.Height = vh
}

// Rows returns the item rows in input order.
func (m *Model) Rows() []*ItemRow {
	return m.rows
}

// Percent returns the overall progress.
func (m *Model) Percent() int {
	return m.percent
}

// Stop returns how far the user has escalated a stop.
func (m *Model) Stop() StopState {
	return m.stop
}

// Completed reports whether the batch has finished.
func (m *Model) Completed() bool {
	return m.completed
}

func (m *Model) row(id string) *ItemRow {
	if r, ok := m.index[id]; ok {
		return r
	}

	r := &ItemRow{ID: id, Name: id}
	m.rows = append(m.rows, r)
	m.index[id] = r

	return r
}

func (m *Model) phaseLabel(name string) string {
	if l, ok := m.phases[name]; ok {
		return l
	}

	return name
}

// processEvent applies a batch event to the rows.
func (m *Model) processEvent(e events.Event) {
	if e.Type == events.EventProgress || e.Type == events.EventBatchStarted {
		m.percent = max(m.percent, e.Progress.Percent)
	}

	if e.Item == "" {
		if e.Message != "" && e.Type != events.EventProgress {
			m.lastLine = e.Message
		}

		if e.Type == events.EventBatchReport && e.Data.Report != nil {
			m.report = e.Data.Report
		}

		return
	}

	r := m.row(e.Item)

	switch e.Type {
	case events.EventLog:
		if r.Status == RowPending {
			r.Status = RowRunning
			r.StartTime = e.Timestamp
		}
	case events.EventPhaseStarted:
		r.Status = RowRunning
		r.Phase = m.phaseLabel(e.Phase)
		r.PhaseIndex = e.Progress.PhaseIndex
		r.PhaseCount = max(r.PhaseCount, e.Progress.PhaseCount)
		r.LastOutput = ""

		if r.StartTime.IsZero() {
			r.StartTime = e.Timestamp
		}
	case events.EventOutput:
		r.UpdateOutput(e.Data.OutputLine)
	case events.EventStopping, events.EventForcing:
		r.LastOutput = e.Message
	case events.EventPhaseFailed:
		r.Detail = e.Message
	case events.EventItemResult:
		r.EndTime = e.Timestamp
		r.LastOutput = ""

		res := e.Data.Result
		if res == nil {
			return
		}

		r.Detail = res.Detail

		switch res.Status {
		case pipeline.StatusSucceeded:
			r.Status = RowSucceeded
			r.Phase = ""
		case pipeline.StatusCancelled:
			r.Status = RowCancelled
			r.Phase = m.phaseLabel(res.FailingPhase)
		default:
			r.Status = RowFailed
			r.Phase = m.phaseLabel(res.FailingPhase)
		}
	}
}
