// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/matt-FFFFFF/nipipe/internal/color"
	"github.com/matt-FFFFFF/nipipe/internal/pipeline"
	"github.com/matt-FFFFFF/nipipe/internal/workspace"
)

// WriteEligibility writes a table with a row per patient and a column per requirement,
// followed by a count of eligible patients.
func WriteEligibility(w io.Writer, entries []workspace.Eligibility, reqs []pipeline.Requirement) error {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := table.Row{"Patient"}
	for _, r := range reqs {
		header = append(header, r.DisplayName())
	}

	header = append(header, "Status")
	tw.AppendHeader(header)

	eligible := 0

	for _, e := range entries {
		row := table.Row{e.Patient.ID}

		for _, r := range reqs {
			row = append(row, matchCell(e, r))
		}

		row = append(row, eligibilityStatus(e))
		tw.AppendRow(row)

		if e.Eligible {
			eligible++
		}
	}

	configs := make([]table.ColumnConfig, 0, len(reqs))
	for i := range reqs {
		configs = append(configs, table.ColumnConfig{Number: i + 2, Align: text.AlignCenter})
	}

	tw.SetColumnConfigs(configs)

	if _, err := fmt.Fprintln(w, tw.Render()); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "%d of %d patients eligible\n", eligible, len(entries))

	return err
}

func matchCell(e workspace.Eligibility, r pipeline.Requirement) string {
	n := len(e.Matches[r.Name])

	switch {
	case n == 0 && r.Optional:
		return color.Render(color.Faint, "-")
	case n == 0:
		return color.Render(color.Failure, "✗")
	case n == 1:
		return color.Render(color.Success, "✓")
	default:
		return color.Render(color.Warning, "✓ "+strconv.Itoa(n))
	}
}

func eligibilityStatus(e workspace.Eligibility) string {
	switch {
	case !e.Eligible:
		return color.Render(color.Failure, "missing "+strings.Join(e.Missing, ", "))
	case e.NeedRevision():
		return color.Render(color.Warning, "eligible, review "+strings.Join(e.Ambiguous, ", "))
	default:
		return color.Render(color.Success, "eligible")
	}
}
