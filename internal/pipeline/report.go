// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package pipeline

import (
	"time"
)

// Summary classifies a finished batch by how many of its items succeeded.
type Summary int

const (
	// SummaryNoItems is a report without any results.
	SummaryNoItems Summary = iota
	// SummaryAllSucceeded means every item succeeded.
	SummaryAllSucceeded
	// SummaryPartiallySucceeded means at least one, but not every, item succeeded.
	SummaryPartiallySucceeded
	// SummaryAllFailed means every item failed.
	SummaryAllFailed
	// SummaryAllCancelled means every item was cancelled.
	SummaryAllCancelled
	// SummaryNoneSucceeded means no item succeeded, some failed and some were cancelled.
	SummaryNoneSucceeded
)

// String implements fmt.Stringer.
func (s Summary) String() string {
	switch s {
	case SummaryNoItems:
		return "no items"
	case SummaryAllSucceeded:
		return "all succeeded"
	case SummaryPartiallySucceeded:
		return "partially succeeded"
	case SummaryAllFailed:
		return "all failed"
	case SummaryAllCancelled:
		return "all cancelled"
	case SummaryNoneSucceeded:
		return "none succeeded"
	}

	return "unknown"
}

// Report is the outcome of a batch. Results are in input order.
type Report struct {
	BatchID    string        `json:"batch_id"`
	Pipeline   string        `json:"pipeline"`
	State      BatchState    `json:"state"`
	Results    []*ItemResult `json:"results"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Cancelled  int           `json:"cancelled"`
	OutputRoot string        `json:"output_root"`
	StartedAt  time.Time     `json:"started_at,omitzero"`
	FinishedAt time.Time     `json:"finished_at,omitzero"`
	FatalError string        `json:"fatal_error,omitempty"`
}

// Tally recomputes the succeeded, failed and cancelled counters from the results.
func (r *Report) Tally() {
	r.Succeeded, r.Failed, r.Cancelled = 0, 0, 0

	for _, res := range r.Results {
		switch res.Status {
		case StatusSucceeded:
			r.Succeeded++
		case StatusFailed:
			r.Failed++
		case StatusCancelled:
			r.Cancelled++
		}
	}
}

// Summary classifies the report from its counters. Cancelled items are not
// failures: a batch stopped before any item ran is all cancelled.
func (r *Report) Summary() Summary {
	total := len(r.Results)

	switch {
	case total == 0:
		return SummaryNoItems
	case r.Succeeded == total:
		return SummaryAllSucceeded
	case r.Failed == total:
		return SummaryAllFailed
	case r.Cancelled == total:
		return SummaryAllCancelled
	case r.Succeeded == 0:
		return SummaryNoneSucceeded
	default:
		return SummaryPartiallySucceeded
	}
}

// Unsucceeded returns the results of items that failed or were cancelled.
func (r *Report) Unsucceeded() []*ItemResult {
	out := make([]*ItemResult, 0, r.Failed+r.Cancelled)

	for _, res := range r.Results {
		if res.Status != StatusSucceeded {
			out = append(out, res)
		}
	}

	return out
}

// NotStarted returns the results of items that never ran a phase.
func (r *Report) NotStarted() []*ItemResult {
	var out []*ItemResult

	for _, res := range r.Results {
		if !res.Started {
			out = append(out, res)
		}
	}

	return out
}

// Duration returns the wall time of the batch.
func (r *Report) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}

	return r.FinishedAt.Sub(r.StartedAt)
}
