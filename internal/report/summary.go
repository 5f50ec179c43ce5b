// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package report

import (
	"fmt"
	"strings"

	"github.com/matt-FFFFFF/nipipe/internal/pipeline"
)

// Summary returns the one line outcome of a batch, e.g.
// "1 of 3 items succeeded, 1 failed: sub-02, 1 cancelled (1 not started)".
func Summary(r *pipeline.Report) string {
	total := len(r.Results)

	var sb strings.Builder

	switch r.Summary() {
	case pipeline.SummaryNoItems:
		sb.WriteString("No items processed")
	case pipeline.SummaryAllSucceeded:
		fmt.Fprintf(&sb, "All %d %s succeeded", total, plural(total))
	case pipeline.SummaryAllFailed:
		fmt.Fprintf(&sb, "All %d %s failed", total, plural(total))
	case pipeline.SummaryAllCancelled:
		fmt.Fprintf(&sb, "All %d %s cancelled", total, plural(total))
	case pipeline.SummaryPartiallySucceeded, pipeline.SummaryNoneSucceeded:
		fmt.Fprintf(&sb, "%d of %d %s succeeded", r.Succeeded, total, plural(total))

		if r.Failed > 0 {
			fmt.Fprintf(&sb, ", %d failed: %s", r.Failed, strings.Join(names(r, pipeline.StatusFailed), ", "))
		}

		if r.Cancelled > 0 {
			fmt.Fprintf(&sb, ", %d cancelled", r.Cancelled)
		}
	}

	if n := len(r.NotStarted()); n > 0 {
		fmt.Fprintf(&sb, " (%d not started)", n)
	}

	if r.FatalError != "" {
		fmt.Fprintf(&sb, "; batch aborted: %s", r.FatalError)
	}

	return sb.String()
}

func names(r *pipeline.Report, status pipeline.ItemStatus) []string {
	var out []string

	for _, res := range r.Results {
		if res.Status == status {
			out = append(out, res.Item.DisplayName())
		}
	}

	return out
}

func plural(n int) string {
	if n == 1 {
		return "item"
	}

	return "items"
}

// Reprocess returns the items of r that did not succeed, in their original
// order, ready to be submitted as a new batch.
func Reprocess(r *pipeline.Report) []pipeline.Item {
	failed := r.Unsucceeded()
	items := make([]pipeline.Item, 0, len(failed))

	for _, res := range failed {
		items = append(items, res.Item)
	}

	return items
}
