// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package color

import (
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
	"github.com/matt-FFFFFF/nipipe/internal/pipeline"
	"golang.org/x/term"
)

const (
	// NoColor is the environment variable that disables color output.
	NoColor = "NO_COLOR"
	// ForceColor is the environment variable that forces color output.
	ForceColor = "FORCE_COLOR"
)

// Styles used across the application.
var (
	Faint     = lipgloss.NewStyle().Faint(true)
	Bold      = lipgloss.NewStyle().Bold(true)
	Highlight = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	Debug     = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	Info      = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	Success   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	Warning   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	Failure   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	Critical  = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
)

var enabled atomic.Bool

func init() {
	enabled.Store(isColorCapable())
}

// Enabled reports whether colour output is enabled.
func Enabled() bool {
	return enabled.Load()
}

// SetEnabled overrides colour detection and returns the previous setting.
func SetEnabled(on bool) bool {
	return enabled.Swap(on)
}

// Render applies style to s when colour is enabled.
func Render(style lipgloss.Style, s string) string {
	if !Enabled() {
		return s
	}

	return style.Render(s)
}

// ForLevel returns the style of a log level.
func ForLevel(level slog.Level) lipgloss.Style {
	switch {
	case level <= slog.LevelDebug:
		return Debug
	case level <= slog.LevelInfo:
		return Info
	case level < slog.LevelError:
		return Warning
	case level <= slog.LevelError+1:
		return Failure
	default:
		return Critical
	}
}

// ForStatus returns the style of an item status.
func ForStatus(s pipeline.ItemStatus) lipgloss.Style {
	switch s {
	case pipeline.StatusSucceeded:
		return Success
	case pipeline.StatusFailed:
		return Failure
	case pipeline.StatusCancelled:
		return Warning
	default:
		return Faint
	}
}

func isColorCapable() bool {
	if nc := os.Getenv(NoColor); nc != "" {
		return false
	}

	if fc := os.Getenv(ForceColor); fc != "" {
		return true
	}

	return term.IsTerminal(int(os.Stdout.Fd()))
}
