// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package color holds the lipgloss styles shared by the logger, the report
// tables and the TUI. Colour is enabled when stdout is a terminal, unless the
// NO_COLOR environment variable is set. FORCE_COLOR enables it regardless of
// the terminal.
package color
