// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package report

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/matt-FFFFFF/nipipe/internal/color"
	"github.com/matt-FFFFFF/nipipe/internal/pipeline"
)

// OutputOptions controls what WriteText includes.
type OutputOptions struct {
	ShowArtifacts bool // List the artifacts of succeeded items.
	MaxDetail     int  // Truncate failure details in the table, 0 means no limit.
}

// DefaultOutputOptions returns the options used by the run command.
func DefaultOutputOptions() *OutputOptions {
	return &OutputOptions{MaxDetail: 60}
}

// WriteText writes a header, a table of item results and the summary line.
func WriteText(w io.Writer, r *pipeline.Report, opts *OutputOptions) error {
	if opts == nil {
		opts = DefaultOutputOptions()
	}

	header := fmt.Sprintf("Batch %s: %s, %s", r.BatchID, r.Pipeline, r.State)
	if d := r.Duration(); d > 0 {
		header += fmt.Sprintf(" in %s", d.Round(time.Second))
	}

	if _, err := fmt.Fprintln(w, color.Render(color.Bold, header)); err != nil {
		return err
	}

	if len(r.Results) > 0 {
		if _, err := fmt.Fprintln(w, resultsTable(r, opts)); err != nil {
			return err
		}
	}

	if opts.ShowArtifacts {
		for _, res := range r.Results {
			if res.Status != pipeline.StatusSucceeded {
				continue
			}

			if err := writeArtifacts(w, res); err != nil {
				return err
			}
		}
	}

	_, err := fmt.Fprintln(w, color.Render(summaryStyle(r), Summary(r)))

	return err
}

func resultsTable(r *pipeline.Report, opts *OutputOptions) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "Item", "Status", "Phase", "Kind", "Detail"})

	for i, res := range r.Results {
		tw.AppendRow(table.Row{
			strconv.Itoa(i + 1),
			res.Item.DisplayName(),
			color.Render(color.ForStatus(res.Status), statusMark(res.Status)+" "+res.Status.String()),
			res.FailingPhase,
			kind(res),
			truncate(res.Detail, opts.MaxDetail),
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	return tw.Render()
}

func writeArtifacts(w io.Writer, res *pipeline.ItemResult) error {
	if len(res.Artifacts) == 0 {
		return nil
	}

	if _, err := fmt.Fprintf(w, "%s %s\n", color.Render(color.Success, "✓"), res.Item.DisplayName()); err != nil {
		return err
	}

	for _, name := range slices.Sorted(maps.Keys(res.Artifacts)) {
		if _, err := fmt.Fprintf(w, "  ➜ %s: %s\n", name, res.Artifacts[name]); err != nil {
			return err
		}
	}

	return nil
}

func statusMark(s pipeline.ItemStatus) string {
	switch s {
	case pipeline.StatusSucceeded:
		return "✓"
	case pipeline.StatusFailed:
		return "✗"
	case pipeline.StatusCancelled:
		return "~"
	default:
		return "?"
	}
}

func kind(res *pipeline.ItemResult) string {
	if res.Kind == pipeline.FailureNone {
		return ""
	}

	if res.Kind == pipeline.FailureUnknownError && res.ExitCode != 0 {
		return fmt.Sprintf("%s (%d)", res.Kind, res.ExitCode)
	}

	return res.Kind.String()
}

func summaryStyle(r *pipeline.Report) lipgloss.Style {
	switch r.Summary() {
	case pipeline.SummaryAllSucceeded:
		return color.Success
	case pipeline.SummaryAllFailed:
		return color.Failure
	default:
		return color.Warning
	}
}

func truncate(s string, n int) string {
	if n <= 0 || text.RuneWidthWithoutEscSequences(s) <= n {
		return s
	}

	return text.Trim(s, n-1) + "…"
}
