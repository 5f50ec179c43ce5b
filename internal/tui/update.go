// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/matt-FFFFFF/nipipe/internal/pipeline"
	events "github.com/matt-FFFFFF/nipipe/internal/progress"
	"github.com/matt-FFFFFF/nipipe/internal/report"
)

const durationRounding = 100 * time.Millisecond

// EventMsg wraps a batch event for the tea framework.
type EventMsg struct {
	Event events.Event
}

// AttachMsg hands the running batch to the model so keys can stop it.
type AttachMsg struct {
	Stopper Stopper
}

// DoneMsg indicates that the batch has finished.
type DoneMsg struct {
	Report *pipeline.Report
}

// Init implements bubbletea.Model.Init.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements bubbletea.Model.Update.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case EventMsg:
		m.processEvent(msg.Event)
		return m, nil

	case AttachMsg:
		m.stopper = msg.Stopper
		return m, nil

	case DoneMsg:
		m.completed = true
		m.notice = ""

		if msg.Report != nil {
			m.report = msg.Report
		}

		if m.report != nil && m.report.State == pipeline.StateCompleted {
			m.percent = 100
		}

		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)

	return m, cmd
}

// handleKeyPress processes keyboard input. Scrolling keys go to the viewport.
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		if m.completed {
			m.quitting = true
			return m, tea.Quit
		}

		m.notice = "Batch is still running, press s to stop it"

		return m, nil

	case "s", "ctrl+c":
		if m.completed {
			if msg.String() == "ctrl+c" {
				m.quitting = true
				return m, tea.Quit
			}

			return m, nil
		}

		m.escalate()

		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)

	return m, cmd
}

func (m *Model) escalate() {
	if m.stopper == nil {
		return
	}

	switch m.stop {
	case StopNone:
		m.stopper.RequestStop()
		m.stop = StopRequested
		m.notice = "Stopping after the running phase, press s again to kill it"
	case StopRequested:
		m.stopper.Force()
		m.stop = StopForced
		m.notice = "Killing the running process"
	}
}

// View implements bubbletea.Model.View.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var content strings.Builder
	for _, r := range m.rows {
		m.renderRow(&content, r)
	}

	m.viewport.SetContent(strings.TrimSuffix(content.String(), "\n"))

	var view strings.Builder

	view.WriteString(m.styles.Title.Render(m.title))
	view.WriteString("\n")
	view.WriteString(m.bar.ViewAs(float64(m.percent) / 100))
	view.WriteString("\n")
	view.WriteString(m.statusLine())
	view.WriteString("\n")
	view.WriteString(m.styles.Border.Render(m.viewport.View()))
	view.WriteString("\n")

	if m.completed && m.report != nil {
		view.WriteString(report.Summary(m.report))
		view.WriteString("\n")
	}

	view.WriteString(m.styles.Help.Render(m.help()))

	return view.String()
}

func (m *Model) statusLine() string {
	switch {
	case m.notice != "":
		return m.styles.Cancelled.Render(m.notice)
	case m.completed && m.report != nil:
		return fmt.Sprintf("Batch %s", m.report.State)
	default:
		return m.styles.Output.Render(m.lastLine)
	}
}

func (m *Model) help() string {
	switch {
	case m.completed:
		return "↑/↓ to scroll, q to quit"
	case m.stop == StopRequested:
		return "↑/↓ to scroll, s to kill the running process"
	case m.stop == StopForced:
		return "↑/↓ to scroll, waiting for the batch to finish"
	default:
		return "↑/↓ to scroll, s to stop"
	}
}

func (m *Model) renderRow(b *strings.Builder, r *ItemRow) {
	var icon, name string

	switch r.Status {
	case RowRunning:
		icon, name = "⚡", m.styles.Running.Render(r.Name)
	case RowSucceeded:
		icon, name = "✓", m.styles.Succeeded.Render(r.Name)
	case RowFailed:
		icon, name = "✗", m.styles.Failed.Render(r.Name)
	case RowCancelled:
		icon, name = "~", m.styles.Cancelled.Render(r.Name)
	default:
		icon, name = "·", m.styles.Pending.Render(r.Name)
	}

	line := fmt.Sprintf("%s %s", icon, name)

	if r.Status == RowRunning && r.Phase != "" {
		line += fmt.Sprintf(" [%d/%d %s]", r.PhaseIndex+1, r.PhaseCount, r.Phase)
	}

	if !r.StartTime.IsZero() {
		end := r.EndTime
		if end.IsZero() {
			end = time.Now()
		}

		line += m.styles.Output.Render(fmt.Sprintf(" (%v)", end.Sub(r.StartTime).Round(durationRounding)))
	}

	var detail string

	switch r.Status {
	case RowRunning:
		detail = m.styles.Output.Render(r.LastOutput)
	case RowFailed, RowCancelled:
		if r.Phase != "" {
			detail = m.styles.Failed.Render(fmt.Sprintf("%s: %s", r.Phase, r.Detail))
		} else {
			detail = m.styles.Failed.Render(r.Detail)
		}
	}

	if detail != "" {
		line += "  " + detail
	}

	b.WriteString(truncate(line, m.viewport.Width))
	b.WriteString("\n")
}

func truncate(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}

	return text.Trim(s, width-1) + "…"
}
